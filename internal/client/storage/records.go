package storage

import (
	"context"

	"github.com/iudanet/offsync/internal/models"
)

//go:generate moq -out records_mock.go . RecordStorage

// RecordStorage defines interface for storing entity records on client
type RecordStorage interface {
	// SaveRecord stores or replaces a record for its (entityType, entityID) pair
	SaveRecord(ctx context.Context, record *models.Record) error

	// GetRecord retrieves a record by entity type and ID
	// Returns ErrRecordNotFound if record doesn't exist or is tombstoned
	GetRecord(ctx context.Context, entityType, entityID string) (*models.Record, error)

	// GetRecordIncludingDeleted retrieves a record even if it is tombstoned
	// Used for conflict comparison against a deleted entity's prior version
	GetRecordIncludingDeleted(ctx context.Context, entityType, entityID string) (*models.Record, error)

	// DeleteRecord marks a record as deleted (soft tombstone) with the given version
	DeleteRecord(ctx context.Context, entityType, entityID string, version models.Version) error

	// ListRecords returns all non-deleted records of the given type
	// limit <= 0 means no limit
	ListRecords(ctx context.Context, entityType string, limit int) ([]*models.Record, error)
}
