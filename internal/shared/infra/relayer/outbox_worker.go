package relayer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
	sharedEvents "github.com/davicafu/eventlab/internal/shared/events"
	sharedBus "github.com/davicafu/eventlab/internal/shared/infra/platform/bus"
)

// Worker reenvía los records PENDING de la tabla outbox al canal externo.
// Garantiza entrega at-least-once: un record solo pasa a SENT tras el ack
// del broker, y cualquier fallo (publicación o marcado) lo deja PENDING
// para el siguiente ciclo. Ningún evento se descarta jamás.
type Worker struct {
	repo      sharedDomain.OutboxRepository
	publisher sharedBus.EventBus
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	publisher sharedBus.EventBus,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
) *Worker {
	return &Worker{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Start inicia el bucle de polling del worker en una goroutine. Corre
// desacoplado del camino de comandos: nunca bloquea un commit.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.log.Info("🚀 Outbox worker iniciado", zap.Duration("interval", w.interval))

		for {
			select {
			case <-ctx.Done():
				w.log.Info("🛑 Outbox worker detenido.")
				return
			case <-ticker.C:
				w.ProcessBatch(ctx)
			}
		}
	}()
}

// ProcessBatch publica los records pendientes, más antiguos primero.
func (w *Worker) ProcessBatch(ctx context.Context) {
	records, err := w.repo.FetchPendingOutbox(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al obtener records pendientes", zap.Error(err))
		return
	}
	if len(records) > 0 {
		w.log.Info(fmt.Sprintf("📬 %d records pendientes para despachar", len(records)))
	}

	for _, rec := range records {
		w.publishAndMark(ctx, rec)
	}
}

func (w *Worker) publishAndMark(ctx context.Context, rec sharedDomain.OutboxRecord) {
	envelope := sharedEvents.IntegrationEvent{
		EventID:    rec.ID,
		Type:       rec.Kind,
		StreamID:   rec.StreamID,
		Sequence:   rec.Sequence,
		OccurredAt: rec.OccurredAt,
		Data:       rec.Payload,
	}

	if err := w.publisher.Publish(ctx, envelope); err != nil {
		// El record sigue PENDING y se reintenta en el próximo ciclo:
		// reintento sin límite, el broker caído no pierde eventos.
		w.log.Warn("⚠️ No se pudo publicar el record",
			zap.String("outbox_id", rec.ID.String()),
			zap.String("kind", rec.Kind),
			zap.Error(err),
		)
		return
	}

	if err := w.repo.MarkOutboxSent(ctx, rec.ID); err != nil {
		// Publicado pero no marcado: el próximo ciclo lo republicará.
		// De ahí el contrato at-least-once; el consumidor deduplica.
		w.log.Warn("⚠️ No se pudo marcar el record como SENT",
			zap.String("outbox_id", rec.ID.String()),
			zap.Error(err),
		)
		return
	}

	w.log.Info("✅ Record publicado y marcado",
		zap.String("outbox_id", rec.ID.String()),
		zap.String("kind", rec.Kind),
		zap.Uint64("sequence", rec.Sequence),
	)
}
