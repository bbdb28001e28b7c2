package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/models"
)

// SaveOperation stores or updates a pending operation in BoltDB
func (s *Storage) SaveOperation(ctx context.Context, op *models.Operation) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	// Сериализуем операцию в JSON
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOperations)
		if bucket == nil {
			return fmt.Errorf("operations bucket missing")
		}

		if err := bucket.Put([]byte(op.ID), data); err != nil {
			return fmt.Errorf("failed to save operation: %w", err)
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// GetOperation retrieves a pending operation by ID
func (s *Storage) GetOperation(ctx context.Context, id string) (*models.Operation, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var op *models.Operation

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOperations)
		if bucket == nil {
			return storage.ErrOperationNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrOperationNotFound
		}

		op = &models.Operation{}
		if err := json.Unmarshal(data, op); err != nil {
			return fmt.Errorf("failed to unmarshal operation: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return op, nil
}

// ListPendingOperations returns all pending operations
// sorted by priority descending, then by queue time ascending
func (s *Storage) ListPendingOperations(ctx context.Context) ([]*models.Operation, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var ops []*models.Operation

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOperations)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var op models.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			ops = append(ops, &op)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	// Сортируем: приоритет по убыванию, при равенстве - более старые раньше
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Priority != ops[j].Priority {
			return ops[i].Priority > ops[j].Priority
		}
		return ops[i].QueuedAt.Before(ops[j].QueuedAt)
	})

	return ops, nil
}

// DeleteOperation removes an operation from the persistent store
func (s *Storage) DeleteOperation(ctx context.Context, id string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOperations)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(id))
	})
}
