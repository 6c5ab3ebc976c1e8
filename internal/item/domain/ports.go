package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

// ---------- Errores de dominio ----------
var (
	// ErrInvalidStateTransition: el comando es ilegal para el estado actual.
	// Se rechaza antes de producir ningún evento y no se reintenta.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrItemNotFound: no hay fila proyectada para ese item.
	ErrItemNotFound = errors.New("item not found")

	// ErrNotYetConsistent: la versión pedida aún no está proyectada. No es un
	// fallo sino una señal de backpressure con retry hint fijo del servidor.
	ErrNotYetConsistent = errors.New("read model not yet at expected version")
)

// ---------- Read model ----------

// ItemRow es la fila desnormalizada del read model, una por item.
// Version nunca decrece; LastModifiedAt se copia SIEMPRE del occurred_at del
// evento origen, nunca del reloj de procesamiento: si no, cualquier replay
// tras downtime corrompe el reporte de staleness.
type ItemRow struct {
	ItemID         uuid.UUID `json:"item_id"`
	State          State     `json:"state"`
	Price          float64   `json:"price"`
	Version        uint64    `json:"version"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// ---------- Interfaces (Ports) ----------

// ItemReadModelRepository define la persistencia del read model.
type ItemReadModelRepository interface {
	// Get devuelve ErrItemNotFound si no hay fila para el id.
	Get(ctx context.Context, id uuid.UUID) (*ItemRow, error)

	// Apply proyecta un record sobre la fila de forma idempotente: si
	// rec.Sequence <= fila.Version es un duplicado y devuelve (false, nil).
	Apply(ctx context.Context, rec sharedDomain.EventRecord) (bool, error)
}

// ---------- Helpers comunes (cache keys, etc.) ----------

// CacheKeyByID forma una key consistente para cache usando el ID del item.
func CacheKeyByID(id uuid.UUID) string {
	return fmt.Sprintf("item:id:%s", id.String())
}
