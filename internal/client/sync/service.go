package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	httpClient "github.com/iudanet/offsync/internal/client/api"
	"github.com/iudanet/offsync/internal/client/netmon"
	"github.com/iudanet/offsync/internal/client/queue"
	"github.com/iudanet/offsync/internal/client/resolver"
	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/crdt"
	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/pkg/api"
)

// State состояние движка синхронизации.
type State string

// Engine states
const (
	// StateIdle нет активной синхронизации.
	StateIdle State = "idle"
	// StateSyncing цикл синхронизации выполняется.
	StateSyncing State = "syncing"
	// StateWaitingForNetwork есть отложенные операции, сеть недоступна.
	StateWaitingForNetwork State = "waiting_for_network"
	// StatePaused синхронизация приостановлена явно.
	StatePaused State = "paused"
)

// Engine errors
var (
	// ErrPaused indicates that sync was requested while the engine is paused
	ErrPaused = errors.New("sync engine is paused")

	// ErrConflictNotFound indicates that no pending manual conflict exists
	// for the requested entity
	ErrConflictNotFound = errors.New("pending conflict not found")
)

// parkedConflict конфликт, ожидающий ручного решения, вместе с ID
// исходной операции. Операция завершается только после ResolveManual,
// чтобы зависимые от нее операции не разблокировались раньше времени.
type parkedConflict struct {
	conflict *models.Conflict
	opID     string
}

// Metadata keys
const (
	metaKeyNodeID      = "node_id"
	metaKeyVectorClock = "vector_clock"
	metaKeyLastSync    = "last_sync_at"
)

// Service управляет жизненным циклом офлайн-синхронизации: локальные
// мутации применяются немедленно и ставятся в durable очередь, фоновый
// цикл отправляет batch операций на сервер, конфликты разрешаются
// настроенной стратегией.
type Service struct {
	cfg      Config
	queue    *queue.Queue
	records  storage.RecordStorage
	metadata storage.MetadataStorage
	monitor  *netmon.Monitor
	resolver *resolver.Resolver
	client   httpClient.ClientAPI
	logger   *slog.Logger

	clock crdt.Clock
	state State
	stats Stats

	pendingConflicts map[string]*parkedConflict
	listeners        map[int]func(Event)
	nextSub          int

	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
	mu          sync.RWMutex
}

// New creates a sync engine wired to the given storage, queue, network
// monitor, conflict resolver and server API client
func New(
	cfg Config,
	q *queue.Queue,
	records storage.RecordStorage,
	metadata storage.MetadataStorage,
	monitor *netmon.Monitor,
	res *resolver.Resolver,
	client httpClient.ClientAPI,
	logger *slog.Logger,
) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	return &Service{
		cfg:              cfg,
		queue:            q,
		records:          records,
		metadata:         metadata,
		monitor:          monitor,
		resolver:         res,
		client:           client,
		logger:           logger,
		clock:            crdt.NewClock(),
		state:            StateIdle,
		pendingConflicts: make(map[string]*parkedConflict),
		listeners:        make(map[int]func(Event)),
	}
}

// Start восстанавливает состояние движка (векторные часы, очередь) и
// запускает фоновые циклы: монитор сети, авто-синхронизацию по таймеру
// и ре-триггер синхронизации при восстановлении связности.
func (s *Service) Start(ctx context.Context) error {
	if err := s.loadClock(ctx); err != nil {
		return fmt.Errorf("failed to load vector clock: %w", err)
	}
	if err := s.queue.Load(ctx); err != nil {
		return fmt.Errorf("failed to load operation queue: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.monitor.Start(ctx)

	// Восстановление сети: отложенные операции отправляются сразу,
	// не дожидаясь следующего тика
	unsubscribe := s.monitor.Subscribe(func(state netmon.State) {
		if state != netmon.StateOnline && state != netmon.StateDegraded {
			return
		}
		if s.queue.Size() == 0 {
			return
		}
		// Цикл, запаркованный в ожидании сети, возобновляется и без
		// AutoSync: его уже запросили явно
		if !s.cfg.AutoSync && s.State() != StateWaitingForNetwork {
			return
		}
		s.triggerSync(ctx)
	})
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	if s.cfg.AutoSync && s.cfg.SyncInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(s.cfg.SyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if s.queue.Size() == 0 {
						continue
					}
					if err := s.Sync(ctx); err != nil {
						s.logger.Warn("Periodic sync failed", "error", err)
					}
				}
			}
		}()
	}

	s.logger.Info("Sync engine started",
		"node_id", s.cfg.NodeID,
		"auto_sync", s.cfg.AutoSync,
		"pending", s.queue.Size())
	return nil
}

// Stop останавливает фоновые циклы движка.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	unsubscribe := s.unsubscribe
	s.cancel = nil
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	s.monitor.Stop()
	s.wg.Wait()
}

// Create применяет создание сущности локально и ставит операцию в очередь.
// Мутация видна немедленно независимо от состояния сети.
func (s *Service) Create(ctx context.Context, entityType, entityID string, data []byte, priority models.Priority) error {
	return s.applyLocal(ctx, models.KindCreate, entityType, entityID, data, priority)
}

// Update применяет обновление сущности локально и ставит операцию в очередь.
func (s *Service) Update(ctx context.Context, entityType, entityID string, data []byte, priority models.Priority) error {
	return s.applyLocal(ctx, models.KindUpdate, entityType, entityID, data, priority)
}

// Delete помечает сущность удаленной (tombstone) и ставит операцию в очередь.
func (s *Service) Delete(ctx context.Context, entityType, entityID string, priority models.Priority) error {
	version := s.mintVersion(ctx, nil)

	if err := s.records.DeleteRecord(ctx, entityType, entityID, version); err != nil {
		return fmt.Errorf("failed to tombstone record: %w", err)
	}

	op := &models.Operation{
		EntityID:   entityID,
		EntityType: entityType,
		Kind:       models.KindDelete,
		Version:    version,
		Priority:   priority,
	}
	if _, err := s.queue.Enqueue(ctx, op); err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}

	s.maybeTriggerSync(ctx)
	return nil
}

// Get возвращает локальную запись сущности.
func (s *Service) Get(ctx context.Context, entityType, entityID string) (*models.Record, error) {
	return s.records.GetRecord(ctx, entityType, entityID)
}

// List возвращает локальные записи заданного типа.
func (s *Service) List(ctx context.Context, entityType string, limit int) ([]*models.Record, error) {
	return s.records.ListRecords(ctx, entityType, limit)
}

// applyLocal записывает мутацию в локальное хранилище и очередь.
func (s *Service) applyLocal(ctx context.Context, kind models.Kind, entityType, entityID string, data []byte, priority models.Priority) error {
	version := s.mintVersion(ctx, data)

	now := time.Now()
	record := &models.Record{
		EntityID:   entityID,
		EntityType: entityType,
		Data:       data,
		Version:    version,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, err := s.records.GetRecordIncludingDeleted(ctx, entityType, entityID); err == nil {
		record.CreatedAt = existing.CreatedAt
		record.SchemaVersion = existing.SchemaVersion
	}

	if err := s.records.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	op := &models.Operation{
		EntityID:   entityID,
		EntityType: entityType,
		Kind:       kind,
		Payload:    data,
		Version:    version,
		Priority:   priority,
	}
	if _, err := s.queue.Enqueue(ctx, op); err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}

	s.maybeTriggerSync(ctx)
	return nil
}

// mintVersion инкрементирует локальные часы и строит версию мутации.
// Часы персистируются сразу: потеря инкремента после рестарта могла бы
// привести к повторному использованию счетчика.
func (s *Service) mintVersion(ctx context.Context, data []byte) models.Version {
	s.mu.Lock()
	s.clock.Increment(s.cfg.NodeID)
	clock := s.clock.Clone()
	s.mu.Unlock()

	if err := s.persistClock(ctx, clock); err != nil {
		s.logger.Warn("Failed to persist vector clock", "error", err)
	}

	return models.NewVersion(clock, s.cfg.NodeID, data)
}

// maybeTriggerSync запускает фоновую синхронизацию после локальной
// мутации, если это разрешено конфигурацией и сеть доступна.
func (s *Service) maybeTriggerSync(ctx context.Context) {
	if !s.cfg.AutoSync || !s.monitor.IsOnline() {
		return
	}
	s.triggerSync(ctx)
}

// triggerSync запускает цикл синхронизации в фоне.
func (s *Service) triggerSync(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Sync(ctx); err != nil {
			s.logger.Debug("Background sync failed", "error", err)
		}
	}()
}

// Sync выполняет один цикл синхронизации: batch за batch отправляет
// готовые операции на сервер, применяет результаты и разрешает конфликты.
// Повторный вызов во время активного цикла не выполняет ничего.
// При недоступной сети движок переходит в StateWaitingForNetwork, и цикл
// будет перезапущен подпиской на восстановление связности.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateSyncing:
		s.mu.Unlock()
		return nil
	case StatePaused:
		s.mu.Unlock()
		return ErrPaused
	}

	if !s.monitor.IsOnline() {
		s.setStateLocked(StateWaitingForNetwork)
		s.mu.Unlock()
		s.emit(Event{Kind: EventSyncStarted, At: time.Now()})
		s.logger.Info("Sync deferred, network unavailable")
		return nil
	}

	s.setStateLocked(StateSyncing)
	s.stats.SyncCycles++
	s.mu.Unlock()

	s.emit(Event{Kind: EventSyncStarted, At: time.Now()})
	s.logger.Info("Sync cycle started", "pending", s.queue.Size())

	started := time.Now()
	pushed, err := s.runCycle(ctx)
	duration := time.Since(started)

	s.mu.Lock()
	s.stats.LastSyncAt = time.Now()
	s.stats.LastSyncDuration = duration
	s.stats.PendingOperations = s.queue.Size()
	if err != nil {
		s.stats.LastError = err.Error()
	} else {
		s.stats.LastError = ""
	}

	switch {
	case err != nil && !s.monitor.IsOnline():
		// Сеть пропала посреди цикла: это не ошибка синхронизации
		s.setStateLocked(StateWaitingForNetwork)
		s.mu.Unlock()
		s.logger.Info("Sync interrupted, waiting for network")
		return nil
	case err != nil:
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.emit(Event{Kind: EventSyncFailed, At: time.Now(), Error: err.Error(), Pushed: pushed})
		return err
	default:
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.emit(Event{Kind: EventSyncCompleted, At: time.Now(), Duration: duration, Pushed: pushed})
		s.logger.Info("Sync cycle completed", "pushed", pushed, "duration_ms", duration.Milliseconds())
		return nil
	}
}

// runCycle прокачивает очередь до опустошения или отсутствия прогресса.
func (s *Service) runCycle(ctx context.Context) (int, error) {
	totalPushed := 0

	if err := s.persistLastSync(ctx); err != nil {
		s.logger.Warn("Failed to persist sync timestamp", "error", err)
	}

	for {
		batch := s.queue.DequeueBatch(s.cfg.BatchSize)
		if len(batch) == 0 {
			return totalPushed, nil
		}

		applied, err := s.pushBatch(ctx, batch)
		totalPushed += applied
		if err != nil {
			return totalPushed, err
		}

		s.emit(Event{Kind: EventSyncProgress, At: time.Now(), Stats: s.Stats(), Pushed: totalPushed})

		// Без прогресса выходим из цикла: операции, вернувшиеся в
		// очередь, будут повторены в следующем цикле после RetryDelay
		if applied == 0 {
			return totalPushed, nil
		}
	}
}

// pushBatch отправляет batch на сервер одним запросом и применяет
// результаты по каждой операции. Возвращает число успешно завершенных
// операций.
func (s *Service) pushBatch(ctx context.Context, batch []*models.Operation) (int, error) {
	req := api.PushRequest{
		NodeID:     s.cfg.NodeID,
		Operations: make([]api.Operation, 0, len(batch)),
	}
	for _, op := range batch {
		req.Operations = append(req.Operations, toWireOperation(op))
	}

	resp, err := s.client.Push(ctx, req)
	if err != nil {
		// Транспортный сбой: возвращаем весь batch в очередь
		for _, op := range batch {
			op.RetryCount++
			op.LastError = err.Error()
			s.deferRetry(op)
			if reqErr := s.queue.Requeue(ctx, op); reqErr != nil {
				s.logger.Error("Failed to requeue operation", "operation_id", op.ID, "error", reqErr)
			}
		}
		return 0, fmt.Errorf("push failed: %w", err)
	}

	var bytesUp, bytesDown int64
	for _, op := range batch {
		bytesUp += int64(len(op.Payload))
	}

	results := make(map[string]api.OperationResult, len(resp.Results))
	for _, res := range resp.Results {
		results[res.OperationID] = res
		bytesDown += int64(len(res.Data))
	}

	s.mu.Lock()
	s.stats.BytesUp += bytesUp
	s.stats.BytesDown += bytesDown
	s.mu.Unlock()

	applied := 0
	for _, op := range batch {
		res, ok := results[op.ID]
		if !ok {
			// Сервер не ответил по операции: считаем неуспехом
			res = api.OperationResult{OperationID: op.ID, Error: "no result from server"}
		}

		done, err := s.applyResult(ctx, op, res)
		if err != nil {
			s.logger.Error("Failed to apply sync result", "operation_id", op.ID, "error", err)
			continue
		}
		if done {
			applied++
		}
	}

	return applied, nil
}

// applyResult применяет результат одной операции.
// Возвращает true, если операция завершена (успех или разрешенный
// конфликт) и удалена из очереди.
func (s *Service) applyResult(ctx context.Context, op *models.Operation, res api.OperationResult) (bool, error) {
	switch {
	case res.Applied:
		if err := s.queue.MarkCompleted(ctx, op.ID); err != nil {
			return false, err
		}
		s.mu.Lock()
		s.stats.OperationsPushed++
		s.mu.Unlock()
		return true, nil

	case res.Conflict:
		return s.handleConflict(ctx, op, res)

	default:
		// Ошибка уровня операции
		op.RetryCount++
		op.LastError = res.Error
		s.deferRetry(op)
		s.mu.Lock()
		s.stats.OperationsFailed++
		s.mu.Unlock()

		if op.RetryCount >= s.cfg.RetryAttempts {
			s.logger.Warn("Operation exhausted retries",
				"operation_id", op.ID,
				"entity_id", op.EntityID,
				"retries", op.RetryCount,
				"error", res.Error)
		}
		if err := s.queue.Requeue(ctx, op); err != nil {
			return false, err
		}
		return false, nil
	}
}

// deferRetry откладывает повторную выборку неуспешной операции
// на RetryDelay.
func (s *Service) deferRetry(op *models.Operation) {
	if s.cfg.RetryDelay > 0 {
		op.NextAttemptAt = time.Now().Add(s.cfg.RetryDelay)
	}
}

// handleConflict строит конфликт из ответа сервера и разрешает его
// настроенной стратегией. Ручная стратегия паркует конфликт до явного
// решения через ResolveManual.
func (s *Service) handleConflict(ctx context.Context, op *models.Operation, res api.OperationResult) (bool, error) {
	s.mu.Lock()
	s.stats.Conflicts++
	s.mu.Unlock()

	conflict := &models.Conflict{
		EntityID:     op.EntityID,
		EntityType:   op.EntityType,
		LocalData:    op.Payload,
		LocalVersion: op.Version,
		RemoteData:   res.Data,
		DetectedAt:   time.Now(),
	}
	if res.Version != nil {
		conflict.RemoteVersion = fromWireVersion(*res.Version)
	}

	s.emit(Event{Kind: EventConflictDetected, At: time.Now(), Conflict: conflict, Operation: op.Clone()})

	resolution, err := s.resolver.Resolve(conflict)
	if errors.Is(err, resolver.ErrManualResolution) {
		s.mu.Lock()
		s.pendingConflicts[conflictKey(op.EntityType, op.EntityID)] = &parkedConflict{
			conflict: conflict,
			opID:     op.ID,
		}
		s.mu.Unlock()

		// Операция снимается с отправки, но не помечается завершенной:
		// зависимые операции остаются заблокированными до явного решения
		if err := s.queue.Remove(ctx, op.ID); err != nil {
			return false, err
		}
		s.logger.Info("Conflict parked for manual resolution",
			"entity_id", op.EntityID,
			"entity_type", op.EntityType)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve conflict: %w", err)
	}

	if err := s.applyResolution(ctx, op, conflict, resolution); err != nil {
		return false, err
	}

	if err := s.queue.MarkCompleted(ctx, op.ID); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.stats.ConflictsResolved++
	s.mu.Unlock()

	s.logger.Info("Conflict resolved",
		"entity_id", op.EntityID,
		"strategy", resolution.Strategy)
	return true, nil
}

// applyResolution записывает результат разрешения в локальное хранилище.
// Если авторитетное состояние отличается от серверного, оно ставится в
// очередь повторной отправкой, чтобы сервер сошелся к тому же значению.
func (s *Service) applyResolution(ctx context.Context, op *models.Operation, conflict *models.Conflict, resolution *models.Resolution) error {
	now := time.Now()
	record := &models.Record{
		EntityID:   conflict.EntityID,
		EntityType: conflict.EntityType,
		Data:       resolution.Data,
		Version:    resolution.Version,
		UpdatedAt:  now,
		CreatedAt:  now,
	}
	if existing, err := s.records.GetRecordIncludingDeleted(ctx, conflict.EntityType, conflict.EntityID); err == nil {
		record.CreatedAt = existing.CreatedAt
		record.SchemaVersion = existing.SchemaVersion
	}

	if err := s.records.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to save resolved record: %w", err)
	}

	// Часы локального узла подтягиваются к результату слияния
	s.mu.Lock()
	s.clock = crdt.Max(s.clock, resolution.Version.Clock)
	clock := s.clock.Clone()
	s.mu.Unlock()
	if err := s.persistClock(ctx, clock); err != nil {
		s.logger.Warn("Failed to persist vector clock", "error", err)
	}

	if resolution.Version.ContentHash == conflict.RemoteVersion.ContentHash {
		// Сервер уже хранит авторитетное состояние
		return nil
	}

	followup := &models.Operation{
		EntityID:   conflict.EntityID,
		EntityType: conflict.EntityType,
		Kind:       models.KindUpdate,
		Payload:    resolution.Data,
		Version:    resolution.Version,
		Priority:   op.Priority,
	}
	if _, err := s.queue.Enqueue(ctx, followup); err != nil {
		return fmt.Errorf("failed to enqueue resolution: %w", err)
	}
	return nil
}

// PendingConflicts возвращает конфликты, ожидающие ручного решения.
func (s *Service) PendingConflicts() []*models.Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Conflict, 0, len(s.pendingConflicts))
	for _, parked := range s.pendingConflicts {
		out = append(out, parked.conflict)
	}
	return out
}

// ResolveManual применяет явное решение по запаркованному конфликту:
// данные записываются локально с новой версией и ставятся в очередь.
// Исходная операция конфликта помечается завершенной только здесь, что
// разблокирует зависимые от нее операции.
func (s *Service) ResolveManual(ctx context.Context, entityType, entityID string, data []byte) (*models.Resolution, error) {
	key := conflictKey(entityType, entityID)

	s.mu.Lock()
	parked, ok := s.pendingConflicts[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrConflictNotFound
	}
	delete(s.pendingConflicts, key)
	conflict := parked.conflict

	// Новая версия доминирует над обеими сторонами конфликта
	s.clock = crdt.Max(s.clock, conflict.LocalVersion.Clock)
	s.clock = crdt.Max(s.clock, conflict.RemoteVersion.Clock)
	s.clock.Increment(s.cfg.NodeID)
	clock := s.clock.Clone()
	s.mu.Unlock()

	if err := s.persistClock(ctx, clock); err != nil {
		s.logger.Warn("Failed to persist vector clock", "error", err)
	}

	resolution := &models.Resolution{
		Data:     data,
		Strategy: string(resolver.StrategyManual),
		Version:  models.NewVersion(clock, s.cfg.NodeID, data),
		Manual:   true,
	}

	now := time.Now()
	record := &models.Record{
		EntityID:   entityID,
		EntityType: entityType,
		Data:       data,
		Version:    resolution.Version,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, err := s.records.GetRecordIncludingDeleted(ctx, entityType, entityID); err == nil {
		record.CreatedAt = existing.CreatedAt
		record.SchemaVersion = existing.SchemaVersion
	}
	if err := s.records.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save resolved record: %w", err)
	}

	op := &models.Operation{
		EntityID:   entityID,
		EntityType: entityType,
		Kind:       models.KindUpdate,
		Payload:    data,
		Version:    resolution.Version,
		Priority:   models.PriorityHigh,
	}
	if _, err := s.queue.Enqueue(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to enqueue operation: %w", err)
	}

	if err := s.queue.MarkCompleted(ctx, parked.opID); err != nil {
		return nil, fmt.Errorf("failed to complete conflicted operation: %w", err)
	}

	s.mu.Lock()
	s.stats.ConflictsResolved++
	s.mu.Unlock()

	s.maybeTriggerSync(ctx)
	return resolution, nil
}

// Pause приостанавливает синхронизацию. Локальные мутации продолжают
// накапливаться в очереди.
func (s *Service) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(StatePaused)
}

// Resume снимает паузу и запускает синхронизацию, если есть отложенные
// операции.
func (s *Service) Resume(ctx context.Context) {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	// Снятие паузы возобновляет отправку независимо от AutoSync
	if s.queue.Size() > 0 {
		s.triggerSync(ctx)
	}
}

// State возвращает текущее состояние движка.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats возвращает снимок статистики движка.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.PendingOperations = s.queue.Size()
	return stats
}

// Queue открывает доступ к очереди операций (инспекция, зависимости, теги).
func (s *Service) Queue() *queue.Queue {
	return s.queue
}

// Subscribe регистрирует слушателя событий синхронизации.
// Возвращает функцию отписки.
func (s *Service) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// setStateLocked обновляет состояние. Вызывается под мьютексом.
func (s *Service) setStateLocked(state State) {
	if s.state == state {
		return
	}
	previous := s.state
	s.state = state

	listeners := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}

	event := Event{Kind: EventStateChanged, At: time.Now(), State: state}
	go func() {
		for _, fn := range listeners {
			fn(event)
		}
	}()

	s.logger.Debug("Sync state changed", "from", previous, "to", state)
}

// emit рассылает событие слушателям.
func (s *Service) emit(event Event) {
	s.mu.RLock()
	listeners := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// loadClock восстанавливает идентичность узла и векторные часы.
func (s *Service) loadClock(ctx context.Context) error {
	if nodeID, err := s.metadata.GetMetadata(ctx, metaKeyNodeID); err == nil {
		s.cfg.NodeID = string(nodeID)
	} else if errors.Is(err, storage.ErrMetadataNotFound) {
		if s.cfg.NodeID == "" {
			s.cfg.NodeID = crdt.NewNodeID()
		}
		if err := s.metadata.SetMetadata(ctx, metaKeyNodeID, []byte(s.cfg.NodeID)); err != nil {
			return err
		}
	} else {
		return err
	}
	s.resolver.SetNodeID(s.cfg.NodeID)

	raw, err := s.metadata.GetMetadata(ctx, metaKeyVectorClock)
	if errors.Is(err, storage.ErrMetadataNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var clock crdt.Clock
	if err := json.Unmarshal(raw, &clock); err != nil {
		return fmt.Errorf("failed to decode vector clock: %w", err)
	}

	s.mu.Lock()
	s.clock = clock
	s.mu.Unlock()
	return nil
}

func (s *Service) persistClock(ctx context.Context, clock crdt.Clock) error {
	raw, err := json.Marshal(clock)
	if err != nil {
		return err
	}
	return s.metadata.SetMetadata(ctx, metaKeyVectorClock, raw)
}

func (s *Service) persistLastSync(ctx context.Context) error {
	return s.metadata.SetMetadata(ctx, metaKeyLastSync,
		[]byte(time.Now().UTC().Format(time.RFC3339)))
}

func conflictKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}

// toWireOperation конвертирует операцию в формат API.
func toWireOperation(op *models.Operation) api.Operation {
	return api.Operation{
		ID:         op.ID,
		EntityID:   op.EntityID,
		EntityType: op.EntityType,
		Kind:       string(op.Kind),
		Payload:    op.Payload,
		Version: api.Version{
			Clock:       op.Version.Clock,
			NodeID:      op.Version.NodeID,
			ContentHash: op.Version.ContentHash,
			Timestamp:   op.Version.Timestamp,
		},
	}
}

// fromWireVersion конвертирует версию из формата API.
func fromWireVersion(v api.Version) models.Version {
	return models.Version{
		Clock:       v.Clock,
		NodeID:      v.NodeID,
		ContentHash: v.ContentHash,
		Timestamp:   v.Timestamp,
	}
}
