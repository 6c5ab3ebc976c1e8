package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	"github.com/davicafu/eventlab/internal/shared/domain"
)

// TxProjector proyecta records dentro de la MISMA transacción del append
// (modo co-localizado). Si falla, el comando entero hace rollback, eventos
// y outbox incluidos: no hay estado parcial.
type TxProjector func(ctx context.Context, tx *sql.Tx, records []domain.EventRecord) error

// EventStoreSQLite implementa domain.EventStore y domain.OutboxRepository
// sobre un único fichero SQLite (despliegue local).
type EventStoreSQLite struct {
	db         *sql.DB
	projectors []TxProjector
}

// Option configura el store en construcción.
type Option func(*EventStoreSQLite)

// WithTxProjector registra un proyector síncrono. Se pueden encadenar varios;
// se ejecutan en orden de registro dentro de la tx del append.
func WithTxProjector(p TxProjector) Option {
	return func(s *EventStoreSQLite) {
		s.projectors = append(s.projectors, p)
	}
}

func NewEventStoreSQLite(db *sql.DB, opts ...Option) *EventStoreSQLite {
	s := &EventStoreSQLite{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ------------------ Append (CAS optimista + outbox) ------------------

// Append escribe el batch de forma atómica. El lock optimista es el UPDATE
// condicionado sobre event_stream.version: solo un escritor gana por
// expectedVersion; el resto recibe ErrConcurrencyConflict.
func (s *EventStoreSQLite) Append(ctx context.Context, streamID uuid.UUID, expectedVersion uint64, events []domain.DomainEvent) (uint64, error) {
	// Un comando idempotente produce un batch vacío: la versión no cambia
	// y no se abre transacción.
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
		// Stream nuevo: el PRIMARY KEY hace de CAS. Dos creadores
		// concurrentes -> el segundo INSERT falla.
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO event_stream (stream_id, version) VALUES (?, ?)`,
			streamID.String(), newVersion,
		); err != nil {
			err = fmt.Errorf("%w: stream %s already exists", domain.ErrConcurrencyConflict, streamID)
			return 0, err
		}
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`UPDATE event_stream SET version = ? WHERE stream_id = ? AND version = ?`,
			newVersion, streamID.String(), expectedVersion,
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
			 VALUES (?, ?, ?, ?, ?)`,
			rec.StreamID.String(), rec.Sequence, rec.Kind, string(rec.Payload), rec.OccurredAt,
		); err != nil {
			return 0, err
		}

		// Mismo commit que el record: "el evento ocurrió" y "el evento se
		// publicará" quedan acoplados sin two-phase commit.
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
		`INSERT INTO outbox (id, stream_id, sequence, kind, payload, status, created_at, occurred_at, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		uuid.New().String(), rec.StreamID.String(), rec.Sequence, rec.Kind, string(rec.Payload),
		domain.OutboxStatusPending, time.Now().UTC(), rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}
	return nil
}

// ------------------ Load / LoadAsOf ------------------

func (s *EventStoreSQLite) Load(ctx context.Context, streamID uuid.UUID) ([]domain.EventRecord, error) {
	return s.load(ctx, streamID, nil)
}

func (s *EventStoreSQLite) LoadAsOf(ctx context.Context, streamID uuid.UUID, asOf time.Time) ([]domain.EventRecord, error) {
	return s.load(ctx, streamID, &asOf)
}

func (s *EventStoreSQLite) load(ctx context.Context, streamID uuid.UUID, asOf *time.Time) ([]domain.EventRecord, error) {
	query := `SELECT stream_id, sequence, kind, payload, occurred_at
	          FROM event_record WHERE stream_id = ?`
	args := []interface{}{streamID.String()}
	if asOf != nil {
		query += ` AND occurred_at <= ?`
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
		var idStr, payloadStr string
		if err := rows.Scan(&idStr, &rec.Sequence, &rec.Kind, &payloadStr, &rec.OccurredAt); err != nil {
			return nil, err
		}

		parsedID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in event_record: %w", err)
		}
		rec.StreamID = parsedID
		rec.Payload = json.RawMessage(payloadStr)

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(records) == 0 && asOf == nil {
		// Sin filtro temporal, cero records significa que el stream no existe.
		if exists, err := s.streamExists(ctx, streamID); err != nil {
			return nil, err
		} else if !exists {
			return nil, domain.ErrStreamNotFound
		}
	}
	return records, nil
}

func (s *EventStoreSQLite) streamExists(ctx context.Context, streamID uuid.UUID) (bool, error) {
	var version uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM event_stream WHERE stream_id = ?`, streamID.String(),
	).Scan(&version)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ------------------ Outbox (lado del relayer) ------------------

// FetchPendingOutbox obtiene los records PENDING más antiguos primero.
func (s *EventStoreSQLite) FetchPendingOutbox(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stream_id, sequence, kind, payload, status, created_at, occurred_at
		 FROM outbox
		 WHERE status = ?
		 ORDER BY created_at
		 LIMIT ?`, domain.OutboxStatusPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.OutboxRecord
	for rows.Next() {
		var rec domain.OutboxRecord
		var idStr, streamStr, payloadStr string
		if err := rows.Scan(&idStr, &streamStr, &rec.Sequence, &rec.Kind, &payloadStr, &rec.Status, &rec.CreatedAt, &rec.OccurredAt); err != nil {
			return nil, err
		}

		parsedID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
		}
		rec.ID = parsedID

		parsedStream, err := uuid.Parse(streamStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stream UUID in outbox row %s: %w", rec.ID, err)
		}
		rec.StreamID = parsedStream
		rec.Payload = json.RawMessage(payloadStr)

		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkOutboxSent marca PENDING -> SENT tras el ack del broker. Nunca va
// hacia atrás: la condición de status protege contra dobles marcados.
func (s *EventStoreSQLite) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, sent_at = ? WHERE id = ? AND status = ?`,
		domain.OutboxStatusSent, time.Now().UTC(), id.String(), domain.OutboxStatusPending,
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

// ------------------ Inicialización de DB ------------------

// InitSQLite crea el esquema si no existe.
func InitSQLite(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS event_stream (
			stream_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_record (
			stream_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			PRIMARY KEY (stream_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id TEXT PRIMARY KEY,
			stream_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at DATETIME NOT NULL,
			occurred_at DATETIME NOT NULL,
			sent_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS item_read_model (
			item_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			version INTEGER NOT NULL,
			last_modified_at DATETIME NOT NULL
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
var _ domain.EventStore = (*EventStoreSQLite)(nil)
var _ domain.OutboxRepository = (*EventStoreSQLite)(nil)
