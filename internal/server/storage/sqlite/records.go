package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/offsync/internal/models"
	"github.com/iudanet/offsync/internal/server/storage"
)

// SaveRecord creates or replaces the record for its (entityType, entityID)
// Version comparison is the caller's responsibility: the handler decides
// whether an incoming operation wins before writing
func (s *Storage) SaveRecord(ctx context.Context, record *models.Record) error {
	clock, err := json.Marshal(record.Version.Clock)
	if err != nil {
		return fmt.Errorf("failed to encode clock: %w", err)
	}

	query := `
		INSERT INTO records (
			entity_type, entity_id, data, clock, node_id,
			content_hash, timestamp, schema_version, deleted,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			data = excluded.data,
			clock = excluded.clock,
			node_id = excluded.node_id,
			content_hash = excluded.content_hash,
			timestamp = excluded.timestamp,
			schema_version = excluded.schema_version,
			deleted = excluded.deleted,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		record.EntityType,
		record.EntityID,
		record.Data,
		string(clock),
		record.Version.NodeID,
		record.Version.ContentHash,
		record.Version.Timestamp,
		record.SchemaVersion,
		boolToInt(record.Deleted),
		record.CreatedAt.Unix(),
		record.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}

// GetRecord retrieves a record by entity type and ID, including tombstones
// Returns ErrRecordNotFound if no record exists
func (s *Storage) GetRecord(ctx context.Context, entityType, entityID string) (*models.Record, error) {
	query := `
		SELECT entity_type, entity_id, data, clock, node_id,
		       content_hash, timestamp, schema_version, deleted,
		       created_at, updated_at
		FROM records
		WHERE entity_type = ? AND entity_id = ?
	`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, entityType, entityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return record, nil
}

// ListRecords retrieves all non-deleted records of the given type
// Returns empty slice if no records found
func (s *Storage) ListRecords(ctx context.Context, entityType string) ([]*models.Record, error) {
	query := `
		SELECT entity_type, entity_id, data, clock, node_id,
		       content_hash, timestamp, schema_version, deleted,
		       created_at, updated_at
		FROM records
		WHERE entity_type = ? AND deleted = 0
		ORDER BY entity_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// rowScanner абстрагирует sql.Row и sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	record := &models.Record{}
	var clock string
	var deleted int
	var createdAt, updatedAt int64

	err := row.Scan(
		&record.EntityType,
		&record.EntityID,
		&record.Data,
		&clock,
		&record.Version.NodeID,
		&record.Version.ContentHash,
		&record.Version.Timestamp,
		&record.SchemaVersion,
		&deleted,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(clock), &record.Version.Clock); err != nil {
		return nil, fmt.Errorf("failed to decode clock: %w", err)
	}

	record.Deleted = intToBool(deleted)
	record.CreatedAt = unixToTime(createdAt)
	record.UpdatedAt = unixToTime(updatedAt)

	return record, nil
}

// Helper functions for bool/int conversion
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

func unixToTime(timestamp int64) time.Time {
	return time.Unix(timestamp, 0)
}
