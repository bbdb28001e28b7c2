package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/offsync/internal/client/storage"
)

// SetMetadata stores an arbitrary metadata value by key
func (s *Storage) SetMetadata(ctx context.Context, key string, value []byte) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket missing")
		}
		return bucket.Put([]byte(key), value)
	})
}

// GetMetadata retrieves a metadata value by key
func (s *Storage) GetMetadata(ctx context.Context, key string) ([]byte, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var value []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return storage.ErrMetadataNotFound
		}

		data := bucket.Get([]byte(key))
		if data == nil {
			return storage.ErrMetadataNotFound
		}

		// Копируем: данные bbolt валидны только внутри транзакции
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return value, nil
}
