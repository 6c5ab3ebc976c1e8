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
)

// CommandService ejecuta los comandos del item contra el event store.
// El flujo es siempre: cargar stream -> reproducir -> comando puro ->
// append con la versión esperada. Un ErrConcurrencyConflict se devuelve
// al llamante tal cual: recargar y reintentar es responsabilidad suya.
type CommandService struct {
	store    sharedDomain.EventStore
	registry sharedDomain.EventRegistry
	log      *zap.Logger
}

func NewCommandService(store sharedDomain.EventStore, log *zap.Logger) *CommandService {
	return &CommandService{
		store:    store,
		registry: itemDomain.NewEventRegistry(),
		log:      log,
	}
}

// InitializeItem crea el stream del item con su primer evento.
// Devuelve el id nuevo y la versión resultante (1).
func (s *CommandService) InitializeItem(ctx context.Context, at time.Time) (uuid.UUID, uint64, error) {
	id := uuid.New()
	_, evts := itemDomain.NewItem(id, at)

	version, err := s.store.Append(ctx, id, 0, evts)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("initializing item %s: %w", id, err)
	}

	s.log.Info("🆕 Item inicializado",
		zap.String("item_id", id.String()),
		zap.Uint64("version", version),
	)
	return id, version, nil
}

// BuyItem reserva el item.
func (s *CommandService) BuyItem(ctx context.Context, id uuid.UUID, price float64, at time.Time) (uint64, error) {
	return s.execute(ctx, id, func(item itemDomain.Item) (itemDomain.Item, []sharedDomain.DomainEvent, error) {
		return item.Buy(price, at)
	})
}

// PayItem confirma el pago.
func (s *CommandService) PayItem(ctx context.Context, id uuid.UUID, at time.Time) (uint64, error) {
	return s.execute(ctx, id, func(item itemDomain.Item) (itemDomain.Item, []sharedDomain.DomainEvent, error) {
		return item.Pay(at)
	})
}

// MarkPaymentMissing registra el vencimiento del plazo de pago.
func (s *CommandService) MarkPaymentMissing(ctx context.Context, id uuid.UUID, at time.Time) (uint64, error) {
	return s.execute(ctx, id, func(item itemDomain.Item) (itemDomain.Item, []sharedDomain.DomainEvent, error) {
		return item.MarkPaymentMissing(at)
	})
}

type command func(itemDomain.Item) (itemDomain.Item, []sharedDomain.DomainEvent, error)

func (s *CommandService) execute(ctx context.Context, id uuid.UUID, cmd command) (uint64, error) {
	records, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, sharedDomain.ErrStreamNotFound) {
			return 0, itemDomain.ErrItemNotFound
		}
		return 0, fmt.Errorf("loading stream %s: %w", id, err)
	}

	item, err := itemDomain.Replay(id, records, s.registry)
	if err != nil {
		return 0, err
	}

	_, evts, err := cmd(item)
	if err != nil {
		return 0, err
	}

	// Batch vacío = comando idempotente: Append no escribe y la versión
	// queda exactamente igual.
	version, err := s.store.Append(ctx, id, item.Version, evts)
	if err != nil {
		return 0, err
	}

	if len(evts) > 0 {
		s.log.Info("📝 Comando aplicado",
			zap.String("item_id", id.String()),
			zap.String("kind", evts[0].Kind()),
			zap.Uint64("version", version),
		)
	}
	return version, nil
}
