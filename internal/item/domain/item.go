package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

// State es el estado del ciclo de vida de un item.
type State string

const (
	StateInitialized    State = "INITIALIZED"
	StateBought         State = "BOUGHT"
	StatePaid           State = "PAID"
	StatePaymentMissing State = "PAYMENT_MISSING"
)

// Item es el agregado. Es un valor inmutable: cada comando devuelve una
// instancia nueva junto con los eventos producidos; nunca se muta in place.
// La identidad persistida vive en el event store.
type Item struct {
	ID      uuid.UUID `json:"id"`
	State   State     `json:"state"`
	Price   float64   `json:"price"`
	Version uint64    `json:"version"` // versión del stream al reproducir
}

// NewItem crea el agregado con su primer comando. Devuelve el item en
// INITIALIZED y el evento que lo originó.
func NewItem(id uuid.UUID, at time.Time) (Item, []sharedDomain.DomainEvent) {
	item := Item{ID: id, State: StateInitialized}
	return item, []sharedDomain.DomainEvent{ItemInitialized{ItemID: id, At: at}}
}

// ---------- Comandos ----------
// Todos son puros: (estado actual) -> (estado nuevo, eventos) o error.
// Un comando que no cambia nada semánticamente devuelve el estado sin
// eventos (lista vacía), nunca re-emite un duplicado.

// Buy reserva el item para un comprador.
func (i Item) Buy(price float64, at time.Time) (Item, []sharedDomain.DomainEvent, error) {
	switch i.State {
	case StateInitialized:
		next := i
		next.State = StateBought
		next.Price = price
		return next, []sharedDomain.DomainEvent{ItemBought{ItemID: i.ID, Price: price, At: at}}, nil
	case StateBought:
		return i, nil, nil // ya comprado: no-op idempotente
	default:
		return i, nil, transitionError(i.State, "buy")
	}
}

// Pay confirma el pago de un item comprado.
func (i Item) Pay(at time.Time) (Item, []sharedDomain.DomainEvent, error) {
	switch i.State {
	case StateBought:
		next := i
		next.State = StatePaid
		return next, []sharedDomain.DomainEvent{ItemPaid{ItemID: i.ID, At: at}}, nil
	case StatePaid:
		return i, nil, nil // ya pagado: no-op idempotente
	default:
		return i, nil, transitionError(i.State, "pay")
	}
}

// MarkPaymentMissing registra que venció el plazo de pago. Sobre un item
// ya marcado es un no-op; sobre un item ya pagado es ilegal.
func (i Item) MarkPaymentMissing(at time.Time) (Item, []sharedDomain.DomainEvent, error) {
	switch i.State {
	case StateBought:
		next := i
		next.State = StatePaymentMissing
		return next, []sharedDomain.DomainEvent{ItemPaymentMissed{ItemID: i.ID, At: at}}, nil
	case StatePaymentMissing:
		return i, nil, nil // ya marcado: no-op idempotente
	default:
		return i, nil, transitionError(i.State, "mark payment missing")
	}
}

func transitionError(s State, command string) error {
	return fmt.Errorf("%w: cannot %s an item in state %s", ErrInvalidStateTransition, command, s)
}

// ---------- Replay ----------

// Replay reconstruye el agregado reproduciendo sus records desde el estado
// inicial vacío. Es determinista: la misma lista ordenada produce siempre
// el mismo estado final.
func Replay(streamID uuid.UUID, records []sharedDomain.EventRecord, registry sharedDomain.EventRegistry) (Item, error) {
	item := Item{ID: streamID}
	for _, rec := range records {
		evt, err := registry.Decode(rec)
		if err != nil {
			return Item{}, fmt.Errorf("replaying stream %s at seq %d: %w", streamID, rec.Sequence, err)
		}
		item = item.on(evt)
		item.Version = rec.Sequence
	}
	return item, nil
}

// on aplica un evento ya ocurrido sobre el estado. El switch es exhaustivo
// sobre los kinds registrados; un kind desconocido no llega aquí porque
// Decode lo rechaza antes.
func (i Item) on(evt sharedDomain.DomainEvent) Item {
	next := i
	switch e := evt.(type) {
	case ItemInitialized:
		next.ID = e.ItemID
		next.State = StateInitialized
	case ItemBought:
		next.State = StateBought
		next.Price = e.Price
	case ItemPaid:
		next.State = StatePaid
	case ItemPaymentMissed:
		next.State = StatePaymentMissing
	}
	return next
}
