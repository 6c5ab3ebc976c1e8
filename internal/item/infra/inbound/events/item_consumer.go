package events

import (
	"context"

	"go.uber.org/zap"

	itemDomain "github.com/davicafu/eventlab/internal/item/domain"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
	sharedEvents "github.com/davicafu/eventlab/internal/shared/events"
	sharedUtils "github.com/davicafu/eventlab/internal/shared/infra/utils"
)

// ItemConsumer es el proyector asíncrono: recibe sobres del canal externo
// y los aplica al read model. El canal puede reentregar (at-least-once),
// así que la deduplicación por secuencia del repo es obligatoria.
type ItemConsumer struct {
	repo itemDomain.ItemReadModelRepository
	log  *zap.Logger
}

func NewItemConsumer(repo itemDomain.ItemReadModelRepository, log *zap.Logger) *ItemConsumer {
	return &ItemConsumer{
		repo: repo,
		log:  log,
	}
}

// HandleMessage procesa un mensaje del broker (o del bus en memoria).
func (c *ItemConsumer) HandleMessage(ctx context.Context, key string, payload []byte) {
	sharedUtils.UnmarshalAndHandle(c.log, payload, func(envelope sharedEvents.IntegrationEvent) {
		rec := sharedDomain.EventRecord{
			StreamID:   envelope.StreamID,
			Sequence:   envelope.Sequence,
			Kind:       envelope.Type,
			Payload:    envelope.Data,
			OccurredAt: envelope.OccurredAt,
		}

		applied, err := c.repo.Apply(ctx, rec)
		if err != nil {
			c.log.Error("Error al proyectar evento",
				zap.String("event_id", envelope.EventID.String()),
				zap.String("kind", envelope.Type),
				zap.Error(err),
			)
			return
		}

		if !applied {
			// Reentrega del canal: no-op idempotente.
			c.log.Debug("Evento duplicado ignorado",
				zap.String("event_id", envelope.EventID.String()),
				zap.Uint64("sequence", envelope.Sequence),
			)
			return
		}

		c.log.Info("📥 Evento proyectado",
			zap.String("item_id", envelope.StreamID.String()),
			zap.String("kind", envelope.Type),
			zap.Uint64("sequence", envelope.Sequence),
		)
	})
}

// BackgroundConsumerChan consume el canal del bus en memoria en una
// goroutine, con la misma ruta de código que los mensajes de Kafka.
func BackgroundConsumerChan(ctx context.Context, ch <-chan []byte, consumer *ItemConsumer) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case payload := <-ch:
				consumer.HandleMessage(ctx, "", payload)
			}
		}
	}()
}
