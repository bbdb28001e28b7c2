package storage

import (
	"context"

	"github.com/iudanet/offsync/internal/models"
)

//go:generate moq -out records_mock.go . RecordStore

// RecordStore defines interface for the authoritative server-side record storage
type RecordStore interface {
	// SaveRecord inserts or replaces the record for its (entityType, entityID) pair
	SaveRecord(ctx context.Context, record *models.Record) error

	// GetRecord retrieves a record including tombstones
	// Tombstones participate in version comparison during sync
	// Returns ErrRecordNotFound if no record exists
	GetRecord(ctx context.Context, entityType, entityID string) (*models.Record, error)

	// ListRecords returns all non-deleted records of the given type
	ListRecords(ctx context.Context, entityType string) ([]*models.Record, error)
}
