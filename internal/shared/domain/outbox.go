package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Estados posibles de un OutboxRecord. La transición PENDING -> SENT solo
// ocurre tras el ack del broker y nunca va hacia atrás.
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
)

// OutboxRecord representa un evento pendiente de publicar en el broker.
// Se inserta en la misma transacción local que su EventRecord.
type OutboxRecord struct {
	ID         uuid.UUID       `json:"id"`
	StreamID   uuid.UUID       `json:"stream_id"`
	Sequence   uint64          `json:"sequence"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	OccurredAt time.Time       `json:"occurred_at"`
	SentAt     *time.Time      `json:"sent_at,omitempty"`
}

// OutboxRepository define el contrato que necesita el relayer. Es una
// interfaz pequeña a propósito: solo los métodos del ciclo de despacho.
type OutboxRepository interface {
	// FetchPendingOutbox devuelve los records PENDING ordenados por created_at,
	// hasta un máximo de limit.
	FetchPendingOutbox(ctx context.Context, limit int) ([]OutboxRecord, error)

	// MarkOutboxSent marca un record como SENT y fija sent_at, en una
	// transacción local separada de la publicación.
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
}
