package domain

import (
	"encoding/json"
	"fmt"

	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

// decodeAs evita repetir el mismo unmarshal por cada tipo de evento.
func decodeAs[T sharedDomain.DomainEvent](data json.RawMessage) (sharedDomain.DomainEvent, error) {
	var evt T
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", evt, err)
	}
	return evt, nil
}

// NewEventRegistry construye el mapeo explícito kind -> decodificador.
// Se monta una vez en el arranque; no se usa reflection.
func NewEventRegistry() sharedDomain.EventRegistry {
	return sharedDomain.EventRegistry{
		ItemInitializedKind:   decodeAs[ItemInitialized],
		ItemBoughtKind:        decodeAs[ItemBought],
		ItemPaidKind:          decodeAs[ItemPaid],
		ItemPaymentMissedKind: decodeAs[ItemPaymentMissed],
	}
}
