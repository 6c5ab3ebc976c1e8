package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DomainEvent es un hecho inmutable producido por un agregado.
// OccurredAt es tiempo de negocio, no tiempo de procesamiento.
type DomainEvent interface {
	Kind() string
	OccurredAt() time.Time
}

// EventRecord es la forma persistida y serializada de un DomainEvent
// dentro de un stream. Nunca se muta ni se borra.
type EventRecord struct {
	StreamID   uuid.UUID       `json:"stream_id"`
	Sequence   uint64          `json:"sequence"` // 1-based, sin huecos
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// DecodeFunc reconstruye un DomainEvent tipado a partir del payload serializado.
type DecodeFunc func(data json.RawMessage) (DomainEvent, error)

// EventRegistry mapea kind -> función de decodificación. Se construye
// explícitamente en el arranque; no hay inspección de tipos en runtime.
type EventRegistry map[string]DecodeFunc

// Decode devuelve el evento tipado del record, o ErrUnknownEventKind
// si el kind no está registrado.
func (r EventRegistry) Decode(rec EventRecord) (DomainEvent, error) {
	decode, ok := r[rec.Kind]
	if !ok {
		return nil, ErrUnknownEventKind
	}
	return decode(rec.Payload)
}
