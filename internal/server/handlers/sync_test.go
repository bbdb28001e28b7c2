package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/internal/server/storage/sqlite"
	"github.com/iudanet/offsync/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupSyncHandler(t *testing.T) (*SyncHandler, *sqlite.Storage) {
	t.Helper()

	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	return NewSyncHandler(setupTestLogger(), st), st
}

func doSync(t *testing.T, handler *SyncHandler, req api.PushRequest) api.PushResponse {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.HandleSync(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.PushResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func wireOp(id, entityID, kind string, payload []byte, clock map[string]uint64, nodeID string, ts int64) api.Operation {
	return api.Operation{
		ID:         id,
		EntityID:   entityID,
		EntityType: "note",
		Kind:       kind,
		Payload:    payload,
		Version: api.Version{
			Clock:       clock,
			NodeID:      nodeID,
			ContentHash: models.HashContent(payload),
			Timestamp:   ts,
		},
	}
}

func TestSyncHandler_AppliesNewEntity(t *testing.T) {
	handler, st := setupSyncHandler(t)

	resp := doSync(t, handler, api.PushRequest{
		NodeID: "node-a",
		Operations: []api.Operation{
			wireOp("op-1", "n1", "create", []byte(`{"v":1}`),
				map[string]uint64{"node-a": 1}, "node-a", time.Now().UnixMilli()),
		},
	})

	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Applied)
	assert.False(t, resp.Results[0].Conflict)

	record, err := st.GetRecord(context.Background(), "note", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), record.Data)
	assert.Equal(t, uint64(1), record.Version.Clock["node-a"])
}

func TestSyncHandler_AppliesCausallyNewerUpdate(t *testing.T) {
	handler, st := setupSyncHandler(t)

	doSync(t, handler, api.PushRequest{
		NodeID: "node-a",
		Operations: []api.Operation{
			wireOp("op-1", "n1", "create", []byte(`{"v":1}`),
				map[string]uint64{"node-a": 1}, "node-a", time.Now().UnixMilli()),
		},
	})

	resp := doSync(t, handler, api.PushRequest{
		NodeID: "node-a",
		Operations: []api.Operation{
			wireOp("op-2", "n1", "update", []byte(`{"v":2}`),
				map[string]uint64{"node-a": 2}, "node-a", time.Now().UnixMilli()),
		},
	})

	assert.True(t, resp.Results[0].Applied)

	record, err := st.GetRecord(context.Background(), "note", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), record.Data)
}

func TestSyncHandler_DuplicateDeliveryIsIdempotent(t *testing.T) {
	handler, st := setupSyncHandler(t)

	op := wireOp("op-1", "n1", "create", []byte(`{"v":1}`),
		map[string]uint64{"node-a": 1}, "node-a", time.Now().UnixMilli())

	doSync(t, handler, api.PushRequest{NodeID: "node-a", Operations: []api.Operation{op}})
	resp := doSync(t, handler, api.PushRequest{NodeID: "node-a", Operations: []api.Operation{op}})

	// Повторная доставка: applied без конфликта и без перезаписи
	assert.True(t, resp.Results[0].Applied)
	assert.False(t, resp.Results[0].Conflict)

	record, err := st.GetRecord(context.Background(), "note", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), record.Data)
}

func TestSyncHandler_ConcurrentVersionsConflict(t *testing.T) {
	handler, _ := setupSyncHandler(t)

	serverData := []byte(`{"v":"a"}`)
	doSync(t, handler, api.PushRequest{
		NodeID: "node-a",
		Operations: []api.Operation{
			wireOp("op-1", "n1", "create", serverData,
				map[string]uint64{"node-a": 1}, "node-a", time.Now().UnixMilli()),
		},
	})

	// Конкурентная версия с другого узла
	resp := doSync(t, handler, api.PushRequest{
		NodeID: "node-b",
		Operations: []api.Operation{
			wireOp("op-2", "n1", "update", []byte(`{"v":"b"}`),
				map[string]uint64{"node-b": 1}, "node-b", time.Now().UnixMilli()),
		},
	})

	result := resp.Results[0]
	assert.False(t, result.Applied)
	assert.True(t, result.Conflict)
	assert.Equal(t, serverData, result.Data, "Server must return its data for resolution")
	require.NotNil(t, result.Version)
	assert.Equal(t, uint64(1), result.Version.Clock["node-a"])
}

func TestSyncHandler_StaleVersionConflict(t *testing.T) {
	handler, _ := setupSyncHandler(t)

	doSync(t, handler, api.PushRequest{
		NodeID: "node-a",
		Operations: []api.Operation{
			wireOp("op-1", "n1", "create", []byte(`{"v":2}`),
				map[string]uint64{"node-a": 2}, "node-a", time.Now().UnixMilli()),
		},
	})

	// Устаревшая версия причинно предшествует серверной
	resp := doSync(t, handler, api.PushRequest{
		NodeID: "node-a",
		Operations: []api.Operation{
			wireOp("op-2", "n1", "update", []byte(`{"v":1}`),
				map[string]uint64{"node-a": 1}, "node-a", time.Now().UnixMilli()),
		},
	})

	assert.True(t, resp.Results[0].Conflict)
}

func TestSyncHandler_DeleteCreatesTombstone(t *testing.T) {
	handler, st := setupSyncHandler(t)

	doSync(t, handler, api.PushRequest{
		NodeID: "node-a",
		Operations: []api.Operation{
			wireOp("op-1", "n1", "create", []byte(`{"v":1}`),
				map[string]uint64{"node-a": 1}, "node-a", time.Now().UnixMilli()),
		},
	})

	resp := doSync(t, handler, api.PushRequest{
		NodeID: "node-a",
		Operations: []api.Operation{
			wireOp("op-2", "n1", "delete", nil,
				map[string]uint64{"node-a": 2}, "node-a", time.Now().UnixMilli()),
		},
	})

	assert.True(t, resp.Results[0].Applied)

	record, err := st.GetRecord(context.Background(), "note", "n1")
	require.NoError(t, err)
	assert.True(t, record.Deleted)
	// Данные сохранены в tombstone для последующего сравнения
	assert.Equal(t, []byte(`{"v":1}`), record.Data)
}

func TestSyncHandler_BatchMixedResults(t *testing.T) {
	handler, _ := setupSyncHandler(t)

	doSync(t, handler, api.PushRequest{
		NodeID: "node-a",
		Operations: []api.Operation{
			wireOp("op-1", "n1", "create", []byte(`{"v":1}`),
				map[string]uint64{"node-a": 1}, "node-a", time.Now().UnixMilli()),
		},
	})

	resp := doSync(t, handler, api.PushRequest{
		NodeID: "node-b",
		Operations: []api.Operation{
			// Конфликт с существующей записью
			wireOp("op-2", "n1", "update", []byte(`{"v":"b"}`),
				map[string]uint64{"node-b": 1}, "node-b", time.Now().UnixMilli()),
			// Новая сущность применяется
			wireOp("op-3", "n2", "create", []byte(`{"v":"c"}`),
				map[string]uint64{"node-b": 2}, "node-b", time.Now().UnixMilli()),
			// Невалидная операция
			{ID: "op-4", Kind: "create"},
		},
	})

	require.Len(t, resp.Results, 3)
	assert.True(t, resp.Results[0].Conflict)
	assert.True(t, resp.Results[1].Applied)
	assert.NotEmpty(t, resp.Results[2].Error)
}

func TestSyncHandler_InvalidBody(t *testing.T) {
	handler, _ := setupSyncHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	handler.HandleSync(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.Equal(t, "bad_request", errResp.Error)
}

func TestSyncHandler_MethodNotAllowed(t *testing.T) {
	handler, _ := setupSyncHandler(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil)
	w := httptest.NewRecorder()

	handler.HandleSync(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
