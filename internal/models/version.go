package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Version описывает версию сущности в момент локальной мутации.
// Clock - векторные часы на момент записи, ContentHash - детерминированный
// дайджест сериализованных данных, независимый от состояния часов.
type Version struct {
	Clock       map[string]uint64 `json:"clock"`
	NodeID      string            `json:"node_id"`
	ContentHash string            `json:"content_hash"`
	Timestamp   int64             `json:"timestamp"` // unix миллисекунды
}

// NewVersion создает новую версию для заданного узла и данных.
// Часы передаются уже инкрементированными вызывающей стороной.
func NewVersion(clock map[string]uint64, nodeID string, data []byte) Version {
	return Version{
		Clock:       clock,
		NodeID:      nodeID,
		ContentHash: HashContent(data),
		Timestamp:   time.Now().UnixMilli(),
	}
}

// Clone создает глубокую копию версии.
func (v Version) Clone() Version {
	clock := make(map[string]uint64, len(v.Clock))
	for node, counter := range v.Clock {
		clock[node] = counter
	}
	out := v
	out.Clock = clock
	return out
}

// HashContent возвращает hex-encoded SHA-256 дайджест данных.
// Используется как дешевая проверка идентичности содержимого.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
