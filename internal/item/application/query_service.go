package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	itemDomain "github.com/davicafu/eventlab/internal/item/domain"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
	sharedCache "github.com/davicafu/eventlab/internal/shared/infra/platform/cache"
)

// QueryService es la puerta de entrada del lado de lectura. Acepta una
// versión esperada opcional y contesta con la fila o con una señal de
// "todavía no" (ErrNotYetConsistent). Nunca bloquea esperando a que la
// proyección alcance la versión: el reintento es del cliente, con un
// retry hint fijo elegido por el servidor.
type QueryService struct {
	repo  itemDomain.ItemReadModelRepository
	store sharedDomain.EventStore
	cache sharedCache.Cache
	log   *zap.Logger
}

func NewQueryService(repo itemDomain.ItemReadModelRepository, store sharedDomain.EventStore, cache sharedCache.Cache, log *zap.Logger) *QueryService {
	return &QueryService{
		repo:  repo,
		store: store,
		cache: cache,
		log:   log,
	}
}

// GetItem devuelve la fila proyectada del item.
//   - expectedVersion == nil: mejor esfuerzo, la fila tal cual está.
//   - fila.Version >= *expectedVersion: la fila.
//   - fila.Version < *expectedVersion: ErrNotYetConsistent (backpressure).
func (s *QueryService) GetItem(ctx context.Context, id uuid.UUID, expectedVersion *uint64) (*itemDomain.ItemRow, error) {
	// 1. Intentar cache. Solo sirve si ya satisface la versión pedida:
	// una entrada vieja no puede provocar un "todavía no" falso.
	if s.cache != nil {
		var row itemDomain.ItemRow
		if ok, _ := s.cache.Get(ctx, itemDomain.CacheKeyByID(id), &row); ok {
			if expectedVersion == nil || row.Version >= *expectedVersion {
				return &row, nil
			}
		}
	}

	// 2. Ir al repo.
	row, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, itemDomain.ErrItemNotFound) && expectedVersion != nil {
			// El escritor ya tiene un token pero la proyección va por detrás:
			// misma señal de espera que una fila desactualizada.
			return nil, itemDomain.ErrNotYetConsistent
		}
		return nil, err
	}

	if expectedVersion != nil && row.Version < *expectedVersion {
		return nil, itemDomain.ErrNotYetConsistent
	}

	// 3. Actualizar cache en background sin bloquear la respuesta.
	if s.cache != nil {
		go func(r itemDomain.ItemRow) {
			ctxCache, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			if err := s.cache.Set(ctxCache, itemDomain.CacheKeyByID(r.ItemID), &r, 60); err != nil {
				s.log.Warn("⚠️ Cache update failed", zap.String("item_id", r.ItemID.String()), zap.Error(err))
			}
		}(*row)
	}

	return row, nil
}

// ItemAsOf reconstruye el estado del item tal y como existía en el instante
// asOf, reproduciendo solo los eventos con occurred_at <= asOf. Es la base
// del debugging histórico y la auditoría.
func (s *QueryService) ItemAsOf(ctx context.Context, id uuid.UUID, asOf time.Time) (itemDomain.Item, []sharedDomain.EventRecord, error) {
	records, err := s.store.LoadAsOf(ctx, id, asOf)
	if err != nil {
		return itemDomain.Item{}, nil, fmt.Errorf("loading stream %s as of %s: %w", id, asOf, err)
	}
	if len(records) == 0 {
		return itemDomain.Item{}, nil, itemDomain.ErrItemNotFound
	}

	item, err := itemDomain.Replay(id, records, itemDomain.NewEventRegistry())
	if err != nil {
		return itemDomain.Item{}, nil, err
	}
	return item, records, nil
}
