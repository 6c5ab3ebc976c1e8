package projection

import (
	"fmt"

	itemDomain "github.com/davicafu/eventlab/internal/item/domain"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

// El registro se monta una sola vez; es de solo lectura.
var registry = itemDomain.NewEventRegistry()

// Apply proyecta un record sobre la fila actual (nil si el item aún no
// existe en el read model) y devuelve la fila resultante y si se aplicó.
//
// Es una función pura para que todos los repositorios (SQLite, Postgres,
// Mongo) y ambos modos de despliegue (síncrono en la tx del append, o
// asíncrono desde el canal) compartan exactamente la misma transición.
//
// Idempotencia: un record con Sequence <= fila.Version es un duplicado
// (redelivery del canal o replay) y se ignora sin error.
func Apply(row *itemDomain.ItemRow, rec sharedDomain.EventRecord) (itemDomain.ItemRow, bool, error) {
	if row != nil && rec.Sequence <= row.Version {
		return *row, false, nil
	}

	next := itemDomain.ItemRow{ItemID: rec.StreamID}
	if row != nil {
		next = *row
	}

	evt, err := registry.Decode(rec)
	if err != nil {
		return next, false, fmt.Errorf("projecting stream %s seq %d: %w", rec.StreamID, rec.Sequence, err)
	}

	// Switch exhaustivo sobre los eventos del dominio; un kind no contemplado
	// ya falló en Decode.
	switch e := evt.(type) {
	case itemDomain.ItemInitialized:
		next.ItemID = e.ItemID
		next.State = itemDomain.StateInitialized
	case itemDomain.ItemBought:
		next.State = itemDomain.StateBought
		next.Price = e.Price
	case itemDomain.ItemPaid:
		next.State = itemDomain.StatePaid
	case itemDomain.ItemPaymentMissed:
		next.State = itemDomain.StatePaymentMissing
	}

	next.Version = rec.Sequence
	next.LastModifiedAt = rec.OccurredAt // tiempo de negocio, nunca time.Now()
	return next, true, nil
}
