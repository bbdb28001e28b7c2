package resolver

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/offsync/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func version(clock map[string]uint64, nodeID string, timestamp int64, data []byte) models.Version {
	return models.Version{
		Clock:       clock,
		NodeID:      nodeID,
		ContentHash: models.HashContent(data),
		Timestamp:   timestamp,
	}
}

func conflictOf(localData, remoteData []byte, local, remote models.Version) *models.Conflict {
	return &models.Conflict{
		EntityID:      "entity-1",
		EntityType:    "note",
		LocalData:     localData,
		RemoteData:    remoteData,
		LocalVersion:  local,
		RemoteVersion: remote,
		DetectedAt:    time.Now(),
	}
}

func TestResolver_LastWriteWins(t *testing.T) {
	r := New(StrategyLastWriteWins, "node-local", testLogger())

	localData := []byte(`{"v":"local"}`)
	remoteData := []byte(`{"v":"remote"}`)

	local := version(map[string]uint64{"a": 1}, "node-a", 100, localData)
	remote := version(map[string]uint64{"b": 1}, "node-b", 200, remoteData)

	resolution, err := r.Resolve(conflictOf(localData, remoteData, local, remote))
	require.NoError(t, err)

	assert.Equal(t, remoteData, resolution.Data, "Later timestamp must win")
	assert.Equal(t, int64(200), resolution.Version.Timestamp)
	assert.Equal(t, string(StrategyLastWriteWins), resolution.Strategy)
	assert.False(t, resolution.Manual)
}

// TestResolver_LastWriteWins_Commutative проверяет, что результат LWW
// не зависит от того, какая сторона локальная: побеждает поздний timestamp.
func TestResolver_LastWriteWins_Commutative(t *testing.T) {
	r := New(StrategyLastWriteWins, "node-local", testLogger())

	earlyData := []byte(`{"v":"early"}`)
	lateData := []byte(`{"v":"late"}`)

	early := version(map[string]uint64{"a": 1}, "node-a", 100, earlyData)
	late := version(map[string]uint64{"b": 1}, "node-b", 200, lateData)

	first, err := r.Resolve(conflictOf(earlyData, lateData, early, late))
	require.NoError(t, err)

	second, err := r.Resolve(conflictOf(lateData, earlyData, late, early))
	require.NoError(t, err)

	assert.Equal(t, lateData, first.Data)
	assert.Equal(t, lateData, second.Data, "Swapping sides must not change the winner")
	assert.Equal(t, first.Version.Timestamp, second.Version.Timestamp)
}

func TestResolver_LastWriteWins_TiebreakByNodeID(t *testing.T) {
	r := New(StrategyLastWriteWins, "node-local", testLogger())

	dataA := []byte(`{"v":"a"}`)
	dataB := []byte(`{"v":"b"}`)

	// Равные timestamp: детерминированно побеждает больший NodeID
	a := version(map[string]uint64{"a": 1}, "node-a", 100, dataA)
	b := version(map[string]uint64{"b": 1}, "node-b", 100, dataB)

	resolution, err := r.Resolve(conflictOf(dataA, dataB, a, b))
	require.NoError(t, err)
	assert.Equal(t, dataB, resolution.Data)

	// И симметрично
	resolution, err = r.Resolve(conflictOf(dataB, dataA, b, a))
	require.NoError(t, err)
	assert.Equal(t, dataB, resolution.Data)
}

func TestResolver_FirstWriteWins(t *testing.T) {
	r := New(StrategyFirstWriteWins, "node-local", testLogger())

	earlyData := []byte(`{"v":"early"}`)
	lateData := []byte(`{"v":"late"}`)

	early := version(map[string]uint64{"a": 1}, "node-a", 100, earlyData)
	late := version(map[string]uint64{"b": 1}, "node-b", 200, lateData)

	resolution, err := r.Resolve(conflictOf(lateData, earlyData, late, early))
	require.NoError(t, err)
	assert.Equal(t, earlyData, resolution.Data, "Earlier timestamp must win")
}

func TestResolver_ServerAndClientWins(t *testing.T) {
	localData := []byte(`{"v":"local"}`)
	remoteData := []byte(`{"v":"remote"}`)

	// Timestamps намеренно указывают в противоположную сторону:
	// безусловные стратегии их игнорируют
	local := version(map[string]uint64{"a": 1}, "node-a", 999, localData)
	remote := version(map[string]uint64{"b": 1}, "node-b", 1, remoteData)

	server := New(StrategyServerWins, "node-local", testLogger())
	resolution, err := server.Resolve(conflictOf(localData, remoteData, local, remote))
	require.NoError(t, err)
	assert.Equal(t, remoteData, resolution.Data)

	client := New(StrategyClientWins, "node-local", testLogger())
	resolution, err = client.Resolve(conflictOf(localData, remoteData, local, remote))
	require.NoError(t, err)
	assert.Equal(t, localData, resolution.Data)
}

// TestResolver_CausalMerge_ConcurrentEdits воспроизводит сценарий:
// узел A создал сущность (часы {A:1}), узел B конкурентно обновил ее
// относительно устаревшей базы (часы {B:1}). Слияние должно дать часы
// {A:1, B:1} и объединить непересекающиеся изменения полей.
func TestResolver_CausalMerge_ConcurrentEdits(t *testing.T) {
	r := New(StrategyCausalMerge, "node-b", testLogger())

	localData := []byte(`{"title":"report","status":"draft"}`)
	remoteData := []byte(`{"title":"report","owner":"alice"}`)

	local := version(map[string]uint64{"B": 1}, "node-b", 200, localData)
	remote := version(map[string]uint64{"A": 1}, "node-a", 100, remoteData)

	resolution, err := r.Resolve(conflictOf(localData, remoteData, local, remote))
	require.NoError(t, err)

	assert.Equal(t, map[string]uint64{"A": 1, "B": 1}, resolution.Version.Clock,
		"Merged clock must be the pointwise maximum")
	assert.Equal(t, "node-b", resolution.Version.NodeID,
		"Merged version must be attributed to the local node")
	assert.Equal(t, models.HashContent(resolution.Data), resolution.Version.ContentHash)

	var merged map[string]any
	require.NoError(t, json.Unmarshal(resolution.Data, &merged))
	assert.Equal(t, "report", merged["title"])
	assert.Equal(t, "draft", merged["status"], "Local-only field must survive")
	assert.Equal(t, "alice", merged["owner"], "Remote-only field must be added")
}

func TestResolver_CausalMerge_NotConcurrentFallsBackToLWW(t *testing.T) {
	r := New(StrategyCausalMerge, "node-b", testLogger())

	localData := []byte(`{"v":"old"}`)
	remoteData := []byte(`{"v":"new"}`)

	// Удаленная версия причинно доминирует над локальной
	local := version(map[string]uint64{"A": 1}, "node-a", 100, localData)
	remote := version(map[string]uint64{"A": 2}, "node-a", 200, remoteData)

	resolution, err := r.Resolve(conflictOf(localData, remoteData, local, remote))
	require.NoError(t, err)

	assert.Equal(t, remoteData, resolution.Data)
	assert.Equal(t, string(StrategyCausalMerge), resolution.Strategy)
}

func TestResolver_Manual(t *testing.T) {
	r := New(StrategyManual, "node-local", testLogger())

	data := []byte(`{}`)
	v := version(map[string]uint64{"a": 1}, "node-a", 100, data)

	_, err := r.Resolve(conflictOf(data, data, v, v))
	assert.ErrorIs(t, err, ErrManualResolution)
}

func TestResolver_PerTypeOverride(t *testing.T) {
	r := New(StrategyServerWins, "node-local", testLogger())
	r.SetOverride("note", StrategyClientWins)

	assert.Equal(t, StrategyClientWins, r.StrategyFor("note"))
	assert.Equal(t, StrategyServerWins, r.StrategyFor("task"))

	localData := []byte(`{"v":"local"}`)
	remoteData := []byte(`{"v":"remote"}`)
	local := version(map[string]uint64{"a": 1}, "node-a", 100, localData)
	remote := version(map[string]uint64{"b": 1}, "node-b", 200, remoteData)

	resolution, err := r.Resolve(conflictOf(localData, remoteData, local, remote))
	require.NoError(t, err)
	assert.Equal(t, localData, resolution.Data, "Override must take precedence over default")
}

func TestResolver_UnknownStrategy(t *testing.T) {
	r := New(Strategy("bogus"), "node-local", testLogger())

	data := []byte(`{}`)
	v := version(map[string]uint64{"a": 1}, "node-a", 100, data)

	_, err := r.Resolve(conflictOf(data, data, v, v))
	assert.Error(t, err)
}
