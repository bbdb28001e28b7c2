package storage

import "errors"

// Common client storage errors
var (
	// ErrRecordNotFound indicates that entity record was not found or is tombstoned
	ErrRecordNotFound = errors.New("record not found")

	// ErrOperationNotFound indicates that pending operation was not found
	ErrOperationNotFound = errors.New("operation not found")

	// ErrMetadataNotFound indicates that metadata key was not found
	ErrMetadataNotFound = errors.New("metadata key not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
