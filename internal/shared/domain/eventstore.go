package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ---------- Errores del event store ----------
var (
	// ErrConcurrencyConflict indica que la versión esperada no coincide con la
	// versión actual del stream. El llamante debe recargar y reintentar; el
	// store nunca reintenta por su cuenta.
	ErrConcurrencyConflict = errors.New("event stream version conflict")

	// ErrStreamNotFound indica que el stream no existe todavía.
	ErrStreamNotFound = errors.New("event stream not found")

	// ErrUnknownEventKind indica un kind no registrado en el EventRegistry.
	ErrUnknownEventKind = errors.New("unknown event kind")
)

// EventStore es el log append-only por entidad con bloqueo optimista.
type EventStore interface {
	// Append añade events al stream si su versión actual es exactamente
	// expectedVersion (0 para un stream nuevo). Devuelve la nueva versión:
	// expectedVersion + len(events). Con un batch vacío no escribe nada y
	// la versión no cambia. La escritura es atómica con la inserción en la
	// tabla outbox (un OutboxRecord por evento).
	Append(ctx context.Context, streamID uuid.UUID, expectedVersion uint64, events []DomainEvent) (uint64, error)

	// Load devuelve todos los records del stream en orden de secuencia.
	// Devuelve ErrStreamNotFound si el stream no existe.
	Load(ctx context.Context, streamID uuid.UUID) ([]EventRecord, error)

	// LoadAsOf devuelve los records con occurred_at <= asOf, en orden.
	// Reproducirlos da el estado del agregado en ese instante.
	LoadAsOf(ctx context.Context, streamID uuid.UUID, asOf time.Time) ([]EventRecord, error)
}
