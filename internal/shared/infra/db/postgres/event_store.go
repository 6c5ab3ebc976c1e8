package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL

	"github.com/davicafu/eventlab/internal/shared/domain"
)

// TxProjector proyecta records dentro de la misma transacción del append.
type TxProjector func(ctx context.Context, tx *sql.Tx, records []domain.EventRecord) error

// EventStorePostgres implementa domain.EventStore y domain.OutboxRepository
// sobre PostgreSQL (despliegue no local).
type EventStorePostgres struct {
	db         *sql.DB
	projectors []TxProjector
}

type Option func(*EventStorePostgres)

func WithTxProjector(p TxProjector) Option {
	return func(s *EventStorePostgres) {
		s.projectors = append(s.projectors, p)
	}
}

func NewEventStorePostgres(db *sql.DB, opts ...Option) *EventStorePostgres {
	s := &EventStorePostgres{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append: misma semántica que la variante SQLite, con placeholders $n.
func (s *EventStorePostgres) Append(ctx context.Context, streamID uuid.UUID, expectedVersion uint64, events []domain.DomainEvent) (uint64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	newVersion := expectedVersion + uint64(len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if expectedVersion == 0 {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO event_stream (stream_id, version) VALUES ($1, $2)`,
			streamID, newVersion,
		); err != nil {
			err = fmt.Errorf("%w: stream %s already exists", domain.ErrConcurrencyConflict, streamID)
			return 0, err
		}
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`UPDATE event_stream SET version = $1 WHERE stream_id = $2 AND version = $3`,
			newVersion, streamID, expectedVersion,
		)
		if err != nil {
			return 0, err
		}
		rows, raErr := res.RowsAffected()
		if raErr != nil {
			err = raErr
			return 0, err
		}
		if rows == 0 {
			err = fmt.Errorf("%w: stream %s is not at version %d", domain.ErrConcurrencyConflict, streamID, expectedVersion)
			return 0, err
		}
	}

	records := make([]domain.EventRecord, 0, len(events))
	for idx, evt := range events {
		var payload []byte
		payload, err = json.Marshal(evt)
		if err != nil {
			err = fmt.Errorf("failed to marshal event %s: %w", evt.Kind(), err)
			return 0, err
		}

		rec := domain.EventRecord{
			StreamID:   streamID,
			Sequence:   expectedVersion + uint64(idx) + 1,
			Kind:       evt.Kind(),
			Payload:    payload,
			OccurredAt: evt.OccurredAt(),
		}

		if _, err = tx.ExecContext(ctx,
			`INSERT INTO event_record (stream_id, sequence, kind, payload, occurred_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			rec.StreamID, rec.Sequence, rec.Kind, rec.Payload, rec.OccurredAt,
		); err != nil {
			return 0, err
		}

		if err = insertOutboxTx(ctx, tx, rec); err != nil {
			return 0, err
		}

		records = append(records, rec)
	}

	for _, project := range s.projectors {
		if err = project(ctx, tx, records); err != nil {
			return 0, fmt.Errorf("synchronous projection failed: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return newVersion, nil
}

func insertOutboxTx(ctx context.Context, tx *sql.Tx, rec domain.EventRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (id, stream_id, sequence, kind, payload, status, created_at, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), rec.StreamID, rec.Sequence, rec.Kind, rec.Payload,
		domain.OutboxStatusPending, time.Now().UTC(), rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}
	return nil
}

func (s *EventStorePostgres) Load(ctx context.Context, streamID uuid.UUID) ([]domain.EventRecord, error) {
	return s.load(ctx, streamID, nil)
}

func (s *EventStorePostgres) LoadAsOf(ctx context.Context, streamID uuid.UUID, asOf time.Time) ([]domain.EventRecord, error) {
	return s.load(ctx, streamID, &asOf)
}

func (s *EventStorePostgres) load(ctx context.Context, streamID uuid.UUID, asOf *time.Time) ([]domain.EventRecord, error) {
	query := `SELECT stream_id, sequence, kind, payload, occurred_at
	          FROM event_record WHERE stream_id = $1`
	args := []interface{}{streamID}
	if asOf != nil {
		query += ` AND occurred_at <= $2`
		args = append(args, *asOf)
	}
	query += ` ORDER BY sequence`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.EventRecord
	for rows.Next() {
		var rec domain.EventRecord
		var payloadBytes []byte // el payload se lee como JSONB
		if err := rows.Scan(&rec.StreamID, &rec.Sequence, &rec.Kind, &payloadBytes, &rec.OccurredAt); err != nil {
			return nil, err
		}
		rec.Payload = payloadBytes
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(records) == 0 && asOf == nil {
		var version uint64
		err := s.db.QueryRowContext(ctx,
			`SELECT version FROM event_stream WHERE stream_id = $1`, streamID,
		).Scan(&version)
		if err == sql.ErrNoRows {
			return nil, domain.ErrStreamNotFound
		}
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

// FetchPendingOutbox obtiene los records PENDING más antiguos primero.
func (s *EventStorePostgres) FetchPendingOutbox(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stream_id, sequence, kind, payload, status, created_at, occurred_at
		 FROM outbox
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`, domain.OutboxStatusPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.OutboxRecord
	for rows.Next() {
		var rec domain.OutboxRecord
		var payloadBytes []byte
		if err := rows.Scan(&rec.ID, &rec.StreamID, &rec.Sequence, &rec.Kind, &payloadBytes, &rec.Status, &rec.CreatedAt, &rec.OccurredAt); err != nil {
			return nil, err
		}
		rec.Payload = payloadBytes
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkOutboxSent marca PENDING -> SENT tras el ack del broker.
func (s *EventStorePostgres) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = $1, sent_at = $2 WHERE id = $3 AND status = $4`,
		domain.OutboxStatusSent, time.Now().UTC(), id, domain.OutboxStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox record %s as sent: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected for outbox record %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("no pending outbox record found with id %s", id)
	}
	return nil
}

// InitPostgres crea el esquema si no existe.
func InitPostgres(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS event_stream (
			stream_id UUID PRIMARY KEY,
			version BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_record (
			stream_id UUID NOT NULL,
			sequence BIGINT NOT NULL,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (stream_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id UUID PRIMARY KEY,
			stream_id UUID NOT NULL,
			sequence BIGINT NOT NULL,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMPTZ NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			sent_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS item_read_model (
			item_id UUID PRIMARY KEY,
			state TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			version BIGINT NOT NULL,
			last_modified_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ domain.EventStore = (*EventStorePostgres)(nil)
var _ domain.OutboxRepository = (*EventStorePostgres)(nil)
