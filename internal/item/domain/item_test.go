package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

var testAt = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func itemInState(id uuid.UUID, state State) Item {
	return Item{ID: id, State: state, Version: 1}
}

func TestItem_Buy(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		from       State
		wantState  State
		wantEvents int
		wantErr    bool
	}{
		{name: "desde INITIALIZED compra", from: StateInitialized, wantState: StateBought, wantEvents: 1},
		{name: "recomprar es no-op idempotente", from: StateBought, wantState: StateBought, wantEvents: 0},
		{name: "comprar un item pagado es ilegal", from: StatePaid, wantErr: true},
		{name: "comprar tras impago es ilegal", from: StatePaymentMissing, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, evts, err := itemInState(id, tt.from).Buy(49.90, testAt)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStateTransition)
				assert.Empty(t, evts)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, next.State)
			assert.Len(t, evts, tt.wantEvents)
			if tt.wantEvents > 0 {
				assert.Equal(t, ItemBoughtKind, evts[0].Kind())
				assert.Equal(t, 49.90, next.Price)
			}
		})
	}
}

func TestItem_Pay(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		from       State
		wantState  State
		wantEvents int
		wantErr    bool
	}{
		{name: "desde BOUGHT paga", from: StateBought, wantState: StatePaid, wantEvents: 1},
		{name: "repagar es no-op idempotente", from: StatePaid, wantState: StatePaid, wantEvents: 0},
		{name: "pagar sin comprar es ilegal", from: StateInitialized, wantErr: true},
		{name: "pagar tras impago es ilegal", from: StatePaymentMissing, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, evts, err := itemInState(id, tt.from).Pay(testAt)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStateTransition)
				assert.Empty(t, evts)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, next.State)
			assert.Len(t, evts, tt.wantEvents)
		})
	}
}

func TestItem_MarkPaymentMissing(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		from       State
		wantState  State
		wantEvents int
		wantErr    bool
	}{
		{name: "desde BOUGHT vence el plazo", from: StateBought, wantState: StatePaymentMissing, wantEvents: 1},
		{name: "remarcar es no-op idempotente", from: StatePaymentMissing, wantState: StatePaymentMissing, wantEvents: 0},
		{name: "sobre INITIALIZED es ilegal", from: StateInitialized, wantErr: true},
		{name: "sobre PAID es ilegal", from: StatePaid, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, evts, err := itemInState(id, tt.from).MarkPaymentMissing(testAt)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStateTransition)
				assert.Empty(t, evts)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, next.State)
			assert.Len(t, evts, tt.wantEvents)
		})
	}
}

func TestItem_IdempotentCommandKeepsState(t *testing.T) {
	id := uuid.New()
	item := Item{ID: id, State: StateBought, Price: 12.5, Version: 2}

	next, evts, err := item.Buy(99.0, testAt)
	assert.NoError(t, err)
	assert.Empty(t, evts)
	// el no-op devuelve el estado tal cual, precio incluido
	assert.Equal(t, item, next)
}

func recordsFor(t *testing.T, id uuid.UUID, evts ...sharedDomain.DomainEvent) []sharedDomain.EventRecord {
	t.Helper()
	records := make([]sharedDomain.EventRecord, 0, len(evts))
	for i, evt := range evts {
		payload, err := json.Marshal(evt)
		require.NoError(t, err)
		records = append(records, sharedDomain.EventRecord{
			StreamID:   id,
			Sequence:   uint64(i) + 1,
			Kind:       evt.Kind(),
			Payload:    payload,
			OccurredAt: evt.OccurredAt(),
		})
	}
	return records
}

func TestReplay_Deterministic(t *testing.T) {
	id := uuid.New()
	records := recordsFor(t, id,
		ItemInitialized{ItemID: id, At: testAt},
		ItemBought{ItemID: id, Price: 30.0, At: testAt.Add(time.Hour)},
		ItemPaid{ItemID: id, At: testAt.Add(2 * time.Hour)},
	)
	registry := NewEventRegistry()

	first, err := Replay(id, records, registry)
	require.NoError(t, err)
	second, err := Replay(id, records, registry)
	require.NoError(t, err)

	// misma lista ordenada -> mismo estado final, siempre
	assert.Equal(t, first, second)
	assert.Equal(t, StatePaid, first.State)
	assert.Equal(t, 30.0, first.Price)
	assert.Equal(t, uint64(3), first.Version) // versión = última secuencia
}

func TestReplay_EmptyStream(t *testing.T) {
	id := uuid.New()
	item, err := Replay(id, nil, NewEventRegistry())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), item.Version)
}

func TestReplay_UnknownKind(t *testing.T) {
	id := uuid.New()
	records := []sharedDomain.EventRecord{{
		StreamID:   id,
		Sequence:   1,
		Kind:       "item.deleted", // nunca registrado
		Payload:    json.RawMessage(`{}`),
		OccurredAt: testAt,
	}}

	_, err := Replay(id, records, NewEventRegistry())
	assert.ErrorIs(t, err, sharedDomain.ErrUnknownEventKind)
}

func TestEventRegistry_DecodeRoundTrip(t *testing.T) {
	id := uuid.New()
	payload, err := json.Marshal(ItemBought{ItemID: id, Price: 15.5, At: testAt})
	require.NoError(t, err)

	evt, err := NewEventRegistry().Decode(sharedDomain.EventRecord{
		Kind:    ItemBoughtKind,
		Payload: payload,
	})
	require.NoError(t, err)

	bought, ok := evt.(ItemBought)
	require.True(t, ok)
	assert.Equal(t, id, bought.ItemID)
	assert.Equal(t, 15.5, bought.Price)
	assert.True(t, bought.At.Equal(testAt))
}
