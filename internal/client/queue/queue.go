package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/models"
)

// completedSetCapacity ограничивает размер completed-set: хранятся только
// последние завершенные операции, достаточные для проверки зависимостей.
const completedSetCapacity = 1000

// Queue errors
var (
	// ErrQueueFull indicates that the queue reached its configured maximum
	ErrQueueFull = errors.New("operation queue is full")

	// ErrOperationNotFound indicates that operation is not in the queue
	ErrOperationNotFound = errors.New("operation not found in queue")
)

// Stats статистика очереди с разбивкой по приоритетам и типам операций.
type Stats struct {
	ByPriority map[models.Priority]int
	ByKind     map[models.Kind]int
	Total      int
}

// Queue представляет durable очередь отложенных операций с приоритетами
// и зависимостями. Состояние в памяти является индексом над персистентным
// хранилищем и восстанавливается из него через Load после рестарта.
type Queue struct {
	ops        map[string]*models.Operation
	completed  *completedSet
	storage    storage.OperationStorage
	logger     *slog.Logger
	maxPending int
	mu         sync.RWMutex
}

// New creates a new operation queue backed by the given storage
// maxPending limits the queue size; Enqueue fails with ErrQueueFull beyond it
func New(opStorage storage.OperationStorage, maxPending int, logger *slog.Logger) *Queue {
	return &Queue{
		ops:        make(map[string]*models.Operation),
		completed:  newCompletedSet(completedSetCapacity),
		storage:    opStorage,
		logger:     logger,
		maxPending: maxPending,
	}
}

// Load восстанавливает очередь из персистентного хранилища.
// Вызывается один раз при старте движка.
func (q *Queue) Load(ctx context.Context) error {
	ops, err := q.storage.ListPendingOperations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending operations: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = make(map[string]*models.Operation, len(ops))
	for _, op := range ops {
		q.ops[op.ID] = op
	}

	q.logger.Info("Operation queue loaded", "pending", len(ops))
	return nil
}

// Enqueue assigns an ID and queue time to the operation, persists it and
// adds it to the queue. Returns ErrQueueFull when the queue is at capacity.
func (q *Queue) Enqueue(ctx context.Context, op *models.Operation) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxPending > 0 && len(q.ops) >= q.maxPending {
		return "", ErrQueueFull
	}

	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.QueuedAt.IsZero() {
		op.QueuedAt = time.Now()
	}

	// Сначала персистентность: операция не должна потеряться при рестарте
	if err := q.storage.SaveOperation(ctx, op); err != nil {
		return "", fmt.Errorf("failed to persist operation: %w", err)
	}

	q.ops[op.ID] = op

	q.logger.Debug("Operation enqueued",
		"operation_id", op.ID,
		"entity_id", op.EntityID,
		"kind", op.Kind,
		"priority", op.Priority.String())

	return op.ID, nil
}

// Dequeue извлекает из очереди готовую операцию с наивысшим приоритетом
// (при равенстве - самую старую). Возвращает nil, если готовых операций
// нет: очередь пуста либо все операции заблокированы зависимостями.
// Персистентная копия остается до MarkCompleted.
func (q *Queue) Dequeue() *models.Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	op := q.selectReady()
	if op == nil {
		return nil
	}

	delete(q.ops, op.ID)
	return op
}

// Peek возвращает операцию, которую выбрал бы Dequeue, не извлекая ее.
func (q *Queue) Peek() *models.Operation {
	q.mu.RLock()
	defer q.mu.RUnlock()

	op := q.selectReady()
	if op == nil {
		return nil
	}
	return op.Clone()
}

// DequeueBatch извлекает до limit готовых операций в порядке выбора.
func (q *Queue) DequeueBatch(limit int) []*models.Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	var batch []*models.Operation
	for len(batch) < limit {
		op := q.selectReady()
		if op == nil {
			break
		}
		delete(q.ops, op.ID)
		batch = append(batch, op)
	}
	return batch
}

// selectReady выбирает готовую операцию. Вызывается под мьютексом.
// Операция готова, когда все ее зависимости находятся в completed-set
// и время отложенного повтора (если назначено) уже наступило.
func (q *Queue) selectReady() *models.Operation {
	var best *models.Operation
	for _, op := range q.ops {
		if !q.ready(op) {
			continue
		}
		if best == nil || betterCandidate(op, best) {
			best = op
		}
	}
	return best
}

// betterCandidate сообщает, должен ли a быть выбран раньше b.
// Приоритет по убыванию, затем время постановки по возрастанию,
// затем ID для детерминизма.
func betterCandidate(a, b *models.Operation) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.QueuedAt.Equal(b.QueuedAt) {
		return a.QueuedAt.Before(b.QueuedAt)
	}
	return a.ID < b.ID
}

func (q *Queue) ready(op *models.Operation) bool {
	if !op.NextAttemptAt.IsZero() && time.Now().Before(op.NextAttemptAt) {
		return false
	}
	for _, dep := range op.Dependencies {
		if !q.completed.has(dep) {
			return false
		}
	}
	return true
}

// Requeue возвращает операцию в очередь (после неуспешной попытки),
// сохраняя обновленное состояние (retry count, last error).
func (q *Queue) Requeue(ctx context.Context, op *models.Operation) error {
	if err := q.storage.SaveOperation(ctx, op); err != nil {
		return fmt.Errorf("failed to persist operation: %w", err)
	}

	q.mu.Lock()
	q.ops[op.ID] = op
	q.mu.Unlock()

	return nil
}

// MarkCompleted записывает ID в ограниченный completed-set (для проверки
// зависимостей) и удаляет операцию из памяти и хранилища.
func (q *Queue) MarkCompleted(ctx context.Context, id string) error {
	q.mu.Lock()
	q.completed.add(id)
	delete(q.ops, id)
	q.mu.Unlock()

	if err := q.storage.DeleteOperation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return nil
}

// Remove удаляет операцию из памяти и хранилища, не помечая ее
// завершенной: ID не попадает в completed-set, и зависимые операции
// остаются заблокированными до явного MarkCompleted.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	delete(q.ops, id)
	q.mu.Unlock()

	if err := q.storage.DeleteOperation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return nil
}

// AddDependency добавляет зависимость к операции и ре-персистирует ее.
func (q *Queue) AddDependency(ctx context.Context, opID, dependsOn string) error {
	return q.mutate(ctx, opID, func(op *models.Operation) {
		for _, dep := range op.Dependencies {
			if dep == dependsOn {
				return
			}
		}
		op.Dependencies = append(op.Dependencies, dependsOn)
	})
}

// AddTag добавляет тег к операции и ре-персистирует ее.
func (q *Queue) AddTag(ctx context.Context, opID, tag string) error {
	return q.mutate(ctx, opID, func(op *models.Operation) {
		for _, existing := range op.Tags {
			if existing == tag {
				return
			}
		}
		op.Tags = append(op.Tags, tag)
	})
}

func (q *Queue) mutate(ctx context.Context, opID string, fn func(*models.Operation)) error {
	q.mu.Lock()
	op, ok := q.ops[opID]
	if !ok {
		q.mu.Unlock()
		return ErrOperationNotFound
	}
	fn(op)
	clone := op.Clone()
	q.mu.Unlock()

	if err := q.storage.SaveOperation(ctx, clone); err != nil {
		return fmt.Errorf("failed to persist operation: %w", err)
	}
	return nil
}

// Get возвращает копию операции по ID, включая терминально неуспешные.
func (q *Queue) Get(id string) (*models.Operation, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	op, ok := q.ops[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return op.Clone(), nil
}

// Size возвращает текущую глубину очереди.
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.ops)
}

// IsCompleted сообщает, находится ли ID в completed-set.
func (q *Queue) IsCompleted(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.completed.has(id)
}

// Clear удаляет все операции из памяти и хранилища.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	ids := make([]string, 0, len(q.ops))
	for id := range q.ops {
		ids = append(ids, id)
	}
	q.ops = make(map[string]*models.Operation)
	q.mu.Unlock()

	for _, id := range ids {
		if err := q.storage.DeleteOperation(ctx, id); err != nil {
			return fmt.Errorf("failed to delete operation %s: %w", id, err)
		}
	}
	return nil
}

// Stats возвращает статистику очереди с разбивкой по приоритетам и типам.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := Stats{
		ByPriority: make(map[models.Priority]int),
		ByKind:     make(map[models.Kind]int),
		Total:      len(q.ops),
	}
	for _, op := range q.ops {
		stats.ByPriority[op.Priority]++
		stats.ByKind[op.Kind]++
	}
	return stats
}

// completedSet ограниченное множество недавно завершенных операций.
// При переполнении вытесняется самый старый ID (FIFO).
type completedSet struct {
	order []string
	set   map[string]struct{}
	cap   int
}

func newCompletedSet(capacity int) *completedSet {
	return &completedSet{
		set: make(map[string]struct{}, capacity),
		cap: capacity,
	}
}

func (c *completedSet) add(id string) {
	if _, ok := c.set[id]; ok {
		return
	}
	c.set[id] = struct{}{}
	c.order = append(c.order, id)

	if len(c.order) > c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.set, oldest)
	}
}

func (c *completedSet) has(id string) bool {
	_, ok := c.set[id]
	return ok
}
