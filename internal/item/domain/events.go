package domain

import (
	"time"

	"github.com/google/uuid"
)

// Los kinds de evento se definen aquí, como valores string.
const (
	ItemInitializedKind   = "item.initialized"
	ItemBoughtKind        = "item.bought"
	ItemPaidKind          = "item.paid"
	ItemPaymentMissedKind = "item.payment_missing"
)

const ItemTopic = "item-events"

// ItemInitialized: el item entra al sistema en estado INITIALIZED.
type ItemInitialized struct {
	ItemID uuid.UUID `json:"item_id"`
	At     time.Time `json:"at"`
}

func (e ItemInitialized) Kind() string          { return ItemInitializedKind }
func (e ItemInitialized) OccurredAt() time.Time { return e.At }

// ItemBought: un comprador reservó el item.
type ItemBought struct {
	ItemID uuid.UUID `json:"item_id"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

func (e ItemBought) Kind() string          { return ItemBoughtKind }
func (e ItemBought) OccurredAt() time.Time { return e.At }

// ItemPaid: el pago del item se confirmó.
type ItemPaid struct {
	ItemID uuid.UUID `json:"item_id"`
	At     time.Time `json:"at"`
}

func (e ItemPaid) Kind() string          { return ItemPaidKind }
func (e ItemPaid) OccurredAt() time.Time { return e.At }

// ItemPaymentMissed: venció el plazo de pago sin confirmación.
type ItemPaymentMissed struct {
	ItemID uuid.UUID `json:"item_id"`
	At     time.Time `json:"at"`
}

func (e ItemPaymentMissed) Kind() string          { return ItemPaymentMissedKind }
func (e ItemPaymentMissed) OccurredAt() time.Time { return e.At }
