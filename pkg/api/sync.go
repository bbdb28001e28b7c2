package api

// Version представляет версию сущности на проводе.
type Version struct {
	Clock       map[string]uint64 `json:"clock"`
	NodeID      string            `json:"node_id"`
	ContentHash string            `json:"content_hash"`
	Timestamp   int64             `json:"timestamp"`
}

// Operation представляет одну операцию синхронизации от клиента.
type Operation struct {
	ID         string  `json:"id"`
	EntityID   string  `json:"entity_id"`
	EntityType string  `json:"entity_type"`
	Kind       string  `json:"kind"` // create, update, delete, patch
	Payload    []byte  `json:"payload,omitempty"`
	Version    Version `json:"version"`
}

// PushRequest представляет batch операций на синхронизацию.
type PushRequest struct {
	NodeID     string      `json:"node_id"`
	Operations []Operation `json:"operations"`
}

// OperationResult результат применения одной операции на сервере.
// Conflict отличим от жесткой ошибки: при конфликте сервер возвращает
// свою версию и данные для разрешения на клиенте.
type OperationResult struct {
	OperationID string   `json:"operation_id"`
	Error       string   `json:"error,omitempty"`
	Data        []byte   `json:"data,omitempty"`
	Version     *Version `json:"version,omitempty"`
	Applied     bool     `json:"applied"`
	Conflict    bool     `json:"conflict"`
}

// PushResponse представляет ответ сервера на batch операций.
type PushResponse struct {
	Results []OperationResult `json:"results"`
}
