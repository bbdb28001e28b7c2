package storage

import (
	"context"

	"github.com/iudanet/offsync/internal/models"
)

//go:generate moq -out operations_mock.go . OperationStorage

// OperationStorage defines interface for the durable pending-operation set
type OperationStorage interface {
	// SaveOperation stores or updates a pending operation by its ID
	SaveOperation(ctx context.Context, op *models.Operation) error

	// GetOperation retrieves a pending operation by ID
	// Returns ErrOperationNotFound if operation doesn't exist
	GetOperation(ctx context.Context, id string) (*models.Operation, error)

	// ListPendingOperations returns all pending operations
	// sorted by priority descending, then by queue time ascending
	ListPendingOperations(ctx context.Context) ([]*models.Operation, error)

	// DeleteOperation removes an operation from the persistent store
	DeleteOperation(ctx context.Context, id string) error
}
