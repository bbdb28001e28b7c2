package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/models"
)

// SaveRecord stores or replaces a record in BoltDB
func (s *Storage) SaveRecord(ctx context.Context, record *models.Record) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	// Сериализуем record в JSON
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if bucket == nil {
			return fmt.Errorf("records bucket missing")
		}

		if err := bucket.Put(recordKey(record.EntityType, record.EntityID), data); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// GetRecord retrieves a record by entity type and ID
// Tombstoned records are reported as not found
func (s *Storage) GetRecord(ctx context.Context, entityType, entityID string) (*models.Record, error) {
	record, err := s.GetRecordIncludingDeleted(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	if record.Deleted {
		return nil, storage.ErrRecordNotFound
	}

	return record, nil
}

// GetRecordIncludingDeleted retrieves a record even if it is tombstoned
func (s *Storage) GetRecordIncludingDeleted(ctx context.Context, entityType, entityID string) (*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var record *models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if bucket == nil {
			return storage.ErrRecordNotFound
		}

		data := bucket.Get(recordKey(entityType, entityID))
		if data == nil {
			return storage.ErrRecordNotFound
		}

		// Десериализуем
		record = &models.Record{}
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return record, nil
}

// DeleteRecord marks a record as deleted (soft tombstone)
// The tombstone keeps the prior data so later conflict detection can
// compare against the deleted entity's version
func (s *Storage) DeleteRecord(ctx context.Context, entityType, entityID string, version models.Version) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	existing, err := s.GetRecordIncludingDeleted(ctx, entityType, entityID)
	if err != nil && err != storage.ErrRecordNotFound {
		return err
	}

	now := time.Now()
	record := &models.Record{
		EntityID:   entityID,
		EntityType: entityType,
		Version:    version,
		CreatedAt:  now,
		UpdatedAt:  now,
		Deleted:    true,
	}
	if existing != nil {
		// Сохраняем прежние данные и время создания в tombstone
		record.Data = existing.Data
		record.CreatedAt = existing.CreatedAt
		record.SchemaVersion = existing.SchemaVersion
	}

	return s.SaveRecord(ctx, record)
}

// ListRecords returns all non-deleted records of the given type
func (s *Storage) ListRecords(ctx context.Context, entityType string, limit int) ([]*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	prefix := []byte(entityType + "/")
	var records []*models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if bucket == nil {
			// Нет bucket - возвращаем пустой результат
			return nil
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var record models.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			if record.Deleted {
				continue
			}
			records = append(records, &record)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}
