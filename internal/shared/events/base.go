package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IntegrationEvent es el sobre que viaja por el canal externo. Type es el
// discriminador de enrutado y EventID la clave de deduplicación del consumidor.
type IntegrationEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	Type       string          `json:"type"`
	StreamID   uuid.UUID       `json:"stream_id"`
	Sequence   uint64          `json:"sequence"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"` // contenido específico del evento
}

// PartitionKey agrupa todos los eventos de un stream en la misma partición
// para preservar el orden por agregado.
func (e IntegrationEvent) PartitionKey() string {
	return e.StreamID.String()
}
