package models

import "time"

// Kind тип операции синхронизации.
type Kind string

// Supported operation kinds
const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindPatch  Kind = "patch"
)

// Priority приоритет операции в очереди.
// Большее значение - выше приоритет.
type Priority int

// Operation priorities, ordered from lowest to highest
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String возвращает человекочитаемое имя приоритета.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Operation представляет отложенную мутацию, ожидающую синхронизации.
// Операция остается в очереди до успешной отправки, явного удаления
// или очистки очереди.
type Operation struct {
	QueuedAt      time.Time `json:"queued_at"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`
	ID            string    `json:"id"`
	EntityID      string    `json:"entity_id"`
	EntityType    string    `json:"entity_type"`
	Kind          Kind      `json:"kind"`
	LastError     string    `json:"last_error,omitempty"`
	Payload       []byte    `json:"payload,omitempty"`
	Dependencies  []string  `json:"dependencies,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Version       Version   `json:"version"`
	Priority      Priority  `json:"priority"`
	RetryCount    int       `json:"retry_count"`
}

// Clone создает глубокую копию операции.
func (o *Operation) Clone() *Operation {
	payload := make([]byte, len(o.Payload))
	copy(payload, o.Payload)

	deps := make([]string, len(o.Dependencies))
	copy(deps, o.Dependencies)

	tags := make([]string, len(o.Tags))
	copy(tags, o.Tags)

	out := *o
	out.Payload = payload
	out.Dependencies = deps
	out.Tags = tags
	out.Version = o.Version.Clone()
	return &out
}
