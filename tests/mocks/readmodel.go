package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	itemDomain "github.com/davicafu/eventlab/internal/item/domain"
	"github.com/davicafu/eventlab/internal/item/projection"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

// InMemoryItemReadModel implementa el repo del read model sobre un mapa,
// reutilizando la misma transición pura que los repos reales.
type InMemoryItemReadModel struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]itemDomain.ItemRow
}

// Verificación estática de la interfaz.
var _ itemDomain.ItemReadModelRepository = (*InMemoryItemReadModel)(nil)

func NewInMemoryItemReadModel() *InMemoryItemReadModel {
	return &InMemoryItemReadModel{
		rows: make(map[uuid.UUID]itemDomain.ItemRow),
	}
}

func (r *InMemoryItemReadModel) Get(ctx context.Context, id uuid.UUID) (*itemDomain.ItemRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, itemDomain.ErrItemNotFound
	}
	return &row, nil
}

func (r *InMemoryItemReadModel) Apply(ctx context.Context, rec sharedDomain.EventRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var current *itemDomain.ItemRow
	if row, ok := r.rows[rec.StreamID]; ok {
		current = &row
	}

	next, applied, err := projection.Apply(current, rec)
	if err != nil {
		return false, err
	}
	if applied {
		r.rows[rec.StreamID] = next
	}
	return applied, nil
}

// Seed fija una fila directamente, para montar escenarios de lectura.
func (r *InMemoryItemReadModel) Seed(row itemDomain.ItemRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ItemID] = row
}
