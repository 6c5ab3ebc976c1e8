package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedEvents "github.com/davicafu/eventlab/internal/shared/events"
)

func TestInMemoryEventBus_DeliversSerializedEnvelope(t *testing.T) {
	bus := NewInMemoryEventBus("item-events")
	sub := bus.Subscribe(1)

	envelope := sharedEvents.IntegrationEvent{
		EventID:    uuid.New(),
		Type:       "item.initialized",
		StreamID:   uuid.New(),
		Sequence:   1,
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	}

	require.NoError(t, bus.Publish(context.Background(), envelope))

	select {
	case payload := <-sub:
		var got sharedEvents.IntegrationEvent
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, envelope.EventID, got.EventID)
		assert.Equal(t, envelope.Sequence, got.Sequence)
	case <-time.After(time.Second):
		t.Fatal("no llegó el mensaje al suscriptor")
	}
}

func TestInMemoryEventBus_SaturatedSubscriberDoesNotBlock(t *testing.T) {
	bus := NewInMemoryEventBus("item-events")
	bus.Subscribe(0) // buffer cero: siempre saturado

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Publish(context.Background(), map[string]string{"k": "v"})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish se bloqueó con un suscriptor saturado")
	}
}
