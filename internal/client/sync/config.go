package sync

import (
	"time"

	"github.com/iudanet/offsync/internal/client/resolver"
	"github.com/iudanet/offsync/internal/crdt"
)

// Config конфигурация движка синхронизации.
type Config struct {
	// NodeID уникальный идентификатор локального узла.
	// Пустое значение означает сгенерировать новый.
	NodeID string
	// ConflictResolution стратегия разрешения конфликтов по умолчанию.
	ConflictResolution resolver.Strategy
	// SyncInterval период автоматической синхронизации.
	SyncInterval time.Duration
	// RetryDelay минимальная пауза перед повторной отправкой неуспешной
	// операции. Ноль означает немедленный повтор в следующем цикле.
	RetryDelay time.Duration
	// BatchSize максимальное число операций в одном запросе к серверу.
	BatchSize int
	// MaxPendingOperations предел глубины очереди операций.
	MaxPendingOperations int
	// RetryAttempts число повторов операции до признания ее терминально
	// неуспешной.
	RetryAttempts int
	// AutoSync включает фоновую синхронизацию по таймеру и по событиям
	// восстановления сети.
	AutoSync bool
}

// DefaultConfig returns default sync engine configuration
func DefaultConfig() Config {
	return Config{
		NodeID:               crdt.NewNodeID(),
		ConflictResolution:   resolver.StrategyLastWriteWins,
		SyncInterval:         30 * time.Second,
		RetryDelay:           2 * time.Second,
		BatchSize:            50,
		MaxPendingOperations: 10000,
		RetryAttempts:        5,
		AutoSync:             true,
	}
}
