package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	itemDomain "github.com/davicafu/eventlab/internal/item/domain"
	"github.com/davicafu/eventlab/internal/item/projection"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

// ItemReadModelSQLite persiste las filas proyectadas en SQLite.
type ItemReadModelSQLite struct {
	db *sql.DB
}

func NewItemReadModelSQLite(db *sql.DB) *ItemReadModelSQLite {
	return &ItemReadModelSQLite{db: db}
}

// Get devuelve ErrItemNotFound si no hay fila para el id.
func (r *ItemReadModelSQLite) Get(ctx context.Context, id uuid.UUID) (*itemDomain.ItemRow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT item_id, state, price, version, last_modified_at
		 FROM item_read_model WHERE item_id = ?`, id.String(),
	)
	return scanRow(row)
}

// Apply proyecta el record de forma idempotente (fuera de transacción del
// append: modo asíncrono).
func (r *ItemReadModelSQLite) Apply(ctx context.Context, rec sharedDomain.EventRecord) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var applied bool
	applied, err = applyTx(ctx, tx, rec)
	if err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return applied, nil
}

// ProjectTx encaja con el TxProjector del event store: proyección dentro
// de la misma transacción del append (modo síncrono/co-localizado).
func (r *ItemReadModelSQLite) ProjectTx(ctx context.Context, tx *sql.Tx, records []sharedDomain.EventRecord) error {
	for _, rec := range records {
		if _, err := applyTx(ctx, tx, rec); err != nil {
			return err
		}
	}
	return nil
}

func applyTx(ctx context.Context, tx *sql.Tx, rec sharedDomain.EventRecord) (bool, error) {
	current, err := scanRow(tx.QueryRowContext(ctx,
		`SELECT item_id, state, price, version, last_modified_at
		 FROM item_read_model WHERE item_id = ?`, rec.StreamID.String(),
	))
	if err != nil && err != itemDomain.ErrItemNotFound {
		return false, err
	}

	next, applied, err := projection.Apply(current, rec)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil // duplicado: la fila ya va por delante
	}

	if current == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO item_read_model (item_id, state, price, version, last_modified_at)
			 VALUES (?, ?, ?, ?, ?)`,
			next.ItemID.String(), string(next.State), next.Price, next.Version, next.LastModifiedAt,
		)
	} else {
		// La condición version < ? hace de guarda extra contra un escritor
		// concurrente que ya aplicó una secuencia mayor.
		_, err = tx.ExecContext(ctx,
			`UPDATE item_read_model SET state=?, price=?, version=?, last_modified_at=?
			 WHERE item_id=? AND version < ?`,
			string(next.State), next.Price, next.Version, next.LastModifiedAt,
			next.ItemID.String(), next.Version,
		)
	}
	if err != nil {
		return false, fmt.Errorf("failed to project record seq %d: %w", rec.Sequence, err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(row rowScanner) (*itemDomain.ItemRow, error) {
	var out itemDomain.ItemRow
	var idStr, stateStr string
	if err := row.Scan(&idStr, &stateStr, &out.Price, &out.Version, &out.LastModifiedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, itemDomain.ErrItemNotFound
		}
		return nil, err
	}

	parsedID, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID in read model: %w", err)
	}
	out.ItemID = parsedID
	out.State = itemDomain.State(stateStr)
	return &out, nil
}

// Verificación en tiempo de compilación.
var _ itemDomain.ItemReadModelRepository = (*ItemReadModelSQLite)(nil)
