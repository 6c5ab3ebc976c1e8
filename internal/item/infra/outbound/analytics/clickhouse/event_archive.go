package clickhouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/eventlab/internal/shared/events"
	sharedUtils "github.com/davicafu/eventlab/internal/shared/infra/utils"
)

// EventArchive vuelca cada evento despachado en una tabla de ClickHouse
// para auditoría y analítica histórica. Es un consumidor más del canal:
// si se cae, los eventos siguen en el log y se puede rearchivar.
type EventArchive struct {
	db  *sql.DB
	log *zap.Logger
}

func NewEventArchive(addr string, dbName string, log *zap.Logger) (*EventArchive, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &EventArchive{db: conn, log: log}, nil
}

// LogBatch inserta un lote de sobres. ClickHouse funciona mejor con
// inserciones en lotes.
func (a *EventArchive) LogBatch(ctx context.Context, envelopes []sharedEvents.IntegrationEvent) error {
	if len(envelopes) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO event_archive (event_id, kind, stream_id, sequence, occurred_at, payload)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range envelopes {
		if _, err := stmt.ExecContext(
			ctx,
			e.EventID.String(),
			e.Type,
			e.StreamID.String(),
			e.Sequence,
			e.OccurredAt,
			string(e.Data),
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// HandleMessage permite colgar el archivador directamente de un
// ConsumerAdapter de Kafka o del bus en memoria.
func (a *EventArchive) HandleMessage(ctx context.Context, key string, payload []byte) {
	sharedUtils.UnmarshalAndHandle(a.log, payload, func(envelope sharedEvents.IntegrationEvent) {
		if err := a.LogBatch(ctx, []sharedEvents.IntegrationEvent{envelope}); err != nil {
			// El archivo es best-effort: el log de eventos sigue siendo la
			// fuente de verdad y permite rearchivar después.
			a.log.Warn("⚠️ No se pudo archivar el evento",
				zap.String("event_id", envelope.EventID.String()),
				zap.Error(err),
			)
		}
	})
}
