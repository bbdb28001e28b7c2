package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/offsync/internal/crdt"
	"github.com/iudanet/offsync/internal/models"
)

// Strategy стратегия разрешения конфликтов.
type Strategy string

// Supported resolution strategies
const (
	// StrategyLastWriteWins побеждает версия с более поздним timestamp.
	StrategyLastWriteWins Strategy = "last_write_wins"
	// StrategyFirstWriteWins побеждает версия с более ранним timestamp.
	StrategyFirstWriteWins Strategy = "first_write_wins"
	// StrategyServerWins безусловно побеждает удаленная версия.
	StrategyServerWins Strategy = "server_wins"
	// StrategyClientWins безусловно побеждает локальная версия.
	StrategyClientWins Strategy = "client_wins"
	// StrategyCausalMerge структурное слияние конкурентных версий
	// по векторным часам; при причинной упорядоченности - LWW.
	StrategyCausalMerge Strategy = "causal_merge"
	// StrategyManual разрешение выполняется вызывающей стороной.
	StrategyManual Strategy = "manual"
)

// ErrManualResolution indicates that the strategy requires an explicit
// out-of-band decision; the engine must not guess
var ErrManualResolution = errors.New("conflict requires manual resolution")

// ParseStrategy проверяет имя стратегии из конфигурации или флага.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(name); s {
	case StrategyLastWriteWins, StrategyFirstWriteWins,
		StrategyServerWins, StrategyClientWins,
		StrategyCausalMerge, StrategyManual:
		return s, nil
	default:
		return "", fmt.Errorf("unknown conflict resolution strategy: %q", name)
	}
}

// Resolver разрешает конфликты по настроенной стратегии.
// Стратегия задается глобально и может переопределяться per entity type.
type Resolver struct {
	def       Strategy
	nodeID    string
	overrides map[string]Strategy
	logger    *slog.Logger
	mu        sync.RWMutex
}

// New creates a conflict resolver with the given default strategy
// nodeID is the local node identifier used to attribute merged versions
func New(def Strategy, nodeID string, logger *slog.Logger) *Resolver {
	return &Resolver{
		def:       def,
		nodeID:    nodeID,
		overrides: make(map[string]Strategy),
		logger:    logger,
	}
}

// SetNodeID обновляет идентификатор локального узла.
// Вызывается движком после восстановления идентичности из хранилища.
func (r *Resolver) SetNodeID(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodeID = nodeID
}

// SetOverride переопределяет стратегию для заданного типа сущности.
func (r *Resolver) SetOverride(entityType string, strategy Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[entityType] = strategy
}

// StrategyFor возвращает стратегию для типа сущности.
func (r *Resolver) StrategyFor(entityType string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.overrides[entityType]; ok {
		return s
	}
	return r.def
}

// Resolve разрешает конфликт и возвращает авторитетное состояние.
// Для StrategyManual возвращает ErrManualResolution: решение должно быть
// передано извне.
func (r *Resolver) Resolve(conflict *models.Conflict) (*models.Resolution, error) {
	strategy := r.StrategyFor(conflict.EntityType)

	r.logger.Debug("Resolving conflict",
		"entity_id", conflict.EntityID,
		"entity_type", conflict.EntityType,
		"strategy", strategy)

	switch strategy {
	case StrategyLastWriteWins:
		return r.lastWriteWins(conflict), nil
	case StrategyFirstWriteWins:
		return r.firstWriteWins(conflict), nil
	case StrategyServerWins:
		return pick(conflict.RemoteData, conflict.RemoteVersion, StrategyServerWins), nil
	case StrategyClientWins:
		return pick(conflict.LocalData, conflict.LocalVersion, StrategyClientWins), nil
	case StrategyCausalMerge:
		return r.causalMerge(conflict)
	case StrategyManual:
		return nil, ErrManualResolution
	default:
		return nil, fmt.Errorf("unknown conflict resolution strategy: %s", strategy)
	}
}

// lastWriteWins выбирает версию с более поздним timestamp.
// При равных timestamp детерминированно побеждает больший NodeID
// (лексикографически) - то же правило, что и при репликации LWW-set.
func (r *Resolver) lastWriteWins(conflict *models.Conflict) *models.Resolution {
	if localWinsLate(conflict.LocalVersion, conflict.RemoteVersion) {
		return pick(conflict.LocalData, conflict.LocalVersion, StrategyLastWriteWins)
	}
	return pick(conflict.RemoteData, conflict.RemoteVersion, StrategyLastWriteWins)
}

// firstWriteWins выбирает версию с более ранним timestamp.
// При равных timestamp детерминированно побеждает меньший NodeID.
func (r *Resolver) firstWriteWins(conflict *models.Conflict) *models.Resolution {
	if localWinsLate(conflict.LocalVersion, conflict.RemoteVersion) {
		return pick(conflict.RemoteData, conflict.RemoteVersion, StrategyFirstWriteWins)
	}
	return pick(conflict.LocalData, conflict.LocalVersion, StrategyFirstWriteWins)
}

// localWinsLate сообщает, побеждает ли локальная версия по правилу
// "позднее - новее" с tiebreak по NodeID.
func localWinsLate(local, remote models.Version) bool {
	if local.Timestamp != remote.Timestamp {
		return local.Timestamp > remote.Timestamp
	}
	return local.NodeID > remote.NodeID
}

// causalMerge выполняет структурное слияние конкурентных версий.
// Если версии причинно упорядочены, конфликта по сути нет - применяется
// LWW. Для конкурентных версий строится слияние документов, а часы
// результата - поэлементный максимум входных часов, приписанный
// локальному узлу.
func (r *Resolver) causalMerge(conflict *models.Conflict) (*models.Resolution, error) {
	ord := crdt.Compare(conflict.LocalVersion.Clock, conflict.RemoteVersion.Clock)
	if ord != crdt.OrderingConcurrent {
		resolution := r.lastWriteWins(conflict)
		resolution.Strategy = string(StrategyCausalMerge)
		return resolution, nil
	}

	merged, err := crdt.MergeJSON(conflict.LocalData, conflict.RemoteData)
	if err != nil {
		return nil, fmt.Errorf("failed to merge documents: %w", err)
	}

	clock := crdt.Max(conflict.LocalVersion.Clock, conflict.RemoteVersion.Clock)

	r.mu.RLock()
	nodeID := r.nodeID
	r.mu.RUnlock()

	version := models.Version{
		Clock:       clock,
		NodeID:      nodeID,
		ContentHash: models.HashContent(merged),
		Timestamp:   time.Now().UnixMilli(),
	}

	return &models.Resolution{
		Data:     merged,
		Version:  version,
		Strategy: string(StrategyCausalMerge),
		Metadata: map[string]string{
			"merged_from_local":  conflict.LocalVersion.ContentHash,
			"merged_from_remote": conflict.RemoteVersion.ContentHash,
		},
	}, nil
}

func pick(data []byte, version models.Version, strategy Strategy) *models.Resolution {
	return &models.Resolution{
		Data:     data,
		Version:  version,
		Strategy: string(strategy),
	}
}
