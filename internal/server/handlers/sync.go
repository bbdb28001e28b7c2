package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/offsync/internal/crdt"
	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/internal/server/storage"
	"github.com/iudanet/offsync/pkg/api"
)

// SyncHandler handles batch synchronization requests
type SyncHandler struct {
	logger  *slog.Logger
	storage storage.RecordStore
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, store storage.RecordStore) *SyncHandler {
	return &SyncHandler{
		logger:  logger,
		storage: store,
	}
}

// HandleSync обрабатывает POST /api/v1/sync
// Принимает batch операций от клиента и отвечает результатом по каждой:
// applied, no-op (идемпотентный повтор) или conflict с серверной версией.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode sync request", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	h.logger.Info("Sync request",
		"node_id", req.NodeID,
		"operations", len(req.Operations))

	resp := api.PushResponse{
		Results: make([]api.OperationResult, 0, len(req.Operations)),
	}

	conflicts := 0
	for _, op := range req.Operations {
		result, err := h.applyOperation(ctx, op)
		if err != nil {
			h.logger.Error("Failed to apply operation",
				"operation_id", op.ID,
				"entity_id", op.EntityID,
				"error", err)
			writeError(w, h.logger, http.StatusInternalServerError, "internal", "internal server error")
			return
		}
		if result.Conflict {
			conflicts++
		}
		resp.Results = append(resp.Results, result)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}

	h.logger.Info("Sync completed",
		"node_id", req.NodeID,
		"operations", len(req.Operations),
		"conflicts", conflicts)
}

// applyOperation применяет одну операцию к авторитетному состоянию.
// Решение принимается по векторным часам:
//   - входящая версия строго позже серверной: операция применяется
//   - версии идентичны: идемпотентный повтор, отвечаем applied без записи
//   - иначе (серверная позже или версии конкурентны): конфликт, клиенту
//     возвращается серверная версия и данные
func (h *SyncHandler) applyOperation(ctx context.Context, op api.Operation) (api.OperationResult, error) {
	result := api.OperationResult{OperationID: op.ID}

	if op.EntityID == "" || op.EntityType == "" {
		result.Error = "entity_id and entity_type are required"
		return result, nil
	}

	existing, err := h.storage.GetRecord(ctx, op.EntityType, op.EntityID)
	if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		return result, err
	}

	if existing != nil {
		switch crdt.Compare(op.Version.Clock, existing.Version.Clock) {
		case crdt.OrderingEqual:
			// Повторная доставка той же операции
			result.Applied = true
			return result, nil
		case crdt.OrderingBefore, crdt.OrderingConcurrent:
			result.Conflict = true
			result.Data = existing.Data
			version := toWireVersion(existing.Version)
			result.Version = &version
			return result, nil
		}
	}

	record := buildRecord(op, existing)
	if err := h.storage.SaveRecord(ctx, record); err != nil {
		return result, err
	}

	result.Applied = true
	return result, nil
}

// buildRecord строит авторитетную запись из операции.
func buildRecord(op api.Operation, existing *models.Record) *models.Record {
	now := time.Now()
	record := &models.Record{
		EntityID:   op.EntityID,
		EntityType: op.EntityType,
		Data:       op.Payload,
		Version: models.Version{
			Clock:       op.Version.Clock,
			NodeID:      op.Version.NodeID,
			ContentHash: op.Version.ContentHash,
			Timestamp:   op.Version.Timestamp,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		record.CreatedAt = existing.CreatedAt
		record.SchemaVersion = existing.SchemaVersion
	}

	if op.Kind == string(models.KindDelete) {
		// Soft delete: tombstone остается для сравнения версий
		record.Deleted = true
		record.Data = nil
		if existing != nil {
			record.Data = existing.Data
		}
	}

	return record
}

func toWireVersion(v models.Version) api.Version {
	return api.Version{
		Clock:       v.Clock,
		NodeID:      v.NodeID,
		ContentHash: v.ContentHash,
		Timestamp:   v.Timestamp,
	}
}

// writeError отправляет стандартный JSON ответ с ошибкой.
func writeError(w http.ResponseWriter, logger *slog.Logger, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(api.ErrorResponse{Error: code, Message: message}); err != nil {
		logger.Error("failed to encode error response", slog.Any("error", err))
	}
}
