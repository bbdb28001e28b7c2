package storage

import "context"

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for the flat key/value metadata table
type MetadataStorage interface {
	// SetMetadata stores an arbitrary metadata value by key
	SetMetadata(ctx context.Context, key string, value []byte) error

	// GetMetadata retrieves a metadata value by key
	// Returns ErrMetadataNotFound if key doesn't exist
	GetMetadata(ctx context.Context, key string) ([]byte, error)
}
