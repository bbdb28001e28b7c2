package models

import "time"

// Record представляет локальную запись сущности.
// Удаление выполняется как soft delete (Deleted = true): tombstone
// сохраняется, чтобы при последующей синхронизации можно было сравнить
// предыдущую версию при разрешении конфликтов.
//
// Инвариант: не более одной записи на пару (EntityType, EntityID);
// последняя локальная запись побеждает независимо от состояния сервера.
type Record struct {
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	EntityID      string    `json:"entity_id"`
	EntityType    string    `json:"entity_type"`
	Data          []byte    `json:"data,omitempty"`
	Version       Version   `json:"version"`
	SchemaVersion int       `json:"schema_version"`
	Deleted       bool      `json:"deleted"`
}

// Clone создает глубокую копию записи.
func (r *Record) Clone() *Record {
	data := make([]byte, len(r.Data))
	copy(data, r.Data)

	out := *r
	out.Data = data
	out.Version = r.Version.Clone()
	return &out
}
