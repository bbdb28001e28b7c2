package sync

import (
	"time"

	"github.com/iudanet/offsync/internal/models"
)

// EventKind тип события синхронизации.
type EventKind string

// Emitted event kinds
const (
	// EventSyncStarted цикл синхронизации начался.
	EventSyncStarted EventKind = "sync_started"
	// EventSyncProgress batch отправлен, несет текущую статистику.
	EventSyncProgress EventKind = "sync_progress"
	// EventSyncCompleted цикл синхронизации завершился успешно.
	EventSyncCompleted EventKind = "sync_completed"
	// EventSyncFailed цикл синхронизации завершился с ошибкой.
	EventSyncFailed EventKind = "sync_failed"
	// EventConflictDetected сервер сообщил о конфликте; событие несет
	// сам конфликт и вовлеченную операцию.
	EventConflictDetected EventKind = "conflict_detected"
	// EventStateChanged движок перешел в новое состояние.
	EventStateChanged EventKind = "state_changed"
)

// Event событие жизненного цикла синхронизации.
// Поля заполняются в зависимости от Kind: progress несет Stats,
// completed несет Duration, failed несет Error, conflict несет
// Conflict и Operation.
type Event struct {
	At        time.Time
	Stats     Stats
	Conflict  *models.Conflict
	Operation *models.Operation
	Kind      EventKind
	State     State
	Error     string
	Duration  time.Duration
	Pushed    int
}

// Stats накопительная статистика движка синхронизации.
// Счетчики монотонны, кроме PendingOperations (текущая глубина очереди).
type Stats struct {
	LastSyncAt        time.Time
	LastError         string
	LastSyncDuration  time.Duration
	BytesUp           int64
	BytesDown         int64
	SyncCycles        int
	OperationsPushed  int
	OperationsFailed  int
	Conflicts         int
	ConflictsResolved int
	PendingOperations int
}
