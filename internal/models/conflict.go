package models

import "time"

// Conflict описывает расхождение между локальной и удаленной версиями
// одной сущности. Конфликт эфемерен: он строится в момент, когда сервер
// сообщает о расхождении, и сразу передается резолверу. Персистентно он
// не хранится - кроме ручной стратегии, где вызывающая сторона держит
// конфликт до явного решения.
type Conflict struct {
	DetectedAt    time.Time `json:"detected_at"`
	EntityID      string    `json:"entity_id"`
	EntityType    string    `json:"entity_type"`
	LocalData     []byte    `json:"local_data,omitempty"`
	RemoteData    []byte    `json:"remote_data,omitempty"`
	LocalVersion  Version   `json:"local_version"`
	RemoteVersion Version   `json:"remote_version"`
}

// Resolution авторитетное состояние после разрешения конфликта.
// Записывается обратно в локальное хранилище.
type Resolution struct {
	Data     []byte            `json:"data,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Strategy string            `json:"strategy"`
	Version  Version           `json:"version"`
	Manual   bool              `json:"manual"`
}
