package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL

	itemDomain "github.com/davicafu/eventlab/internal/item/domain"
	"github.com/davicafu/eventlab/internal/item/projection"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

// ItemReadModelPostgres persiste las filas proyectadas en PostgreSQL.
type ItemReadModelPostgres struct {
	db *sql.DB
}

func NewItemReadModelPostgres(db *sql.DB) *ItemReadModelPostgres {
	return &ItemReadModelPostgres{db: db}
}

func (r *ItemReadModelPostgres) Get(ctx context.Context, id uuid.UUID) (*itemDomain.ItemRow, error) {
	var out itemDomain.ItemRow
	var stateStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT item_id, state, price, version, last_modified_at
		 FROM item_read_model WHERE item_id = $1`, id,
	).Scan(&out.ItemID, &stateStr, &out.Price, &out.Version, &out.LastModifiedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, itemDomain.ErrItemNotFound
		}
		return nil, err
	}
	out.State = itemDomain.State(stateStr)
	return &out, nil
}

func (r *ItemReadModelPostgres) Apply(ctx context.Context, rec sharedDomain.EventRecord) (bool, error) {
	current, err := r.Get(ctx, rec.StreamID)
	if err != nil && err != itemDomain.ErrItemNotFound {
		return false, err
	}

	next, applied, err := projection.Apply(current, rec)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	// Upsert con guarda de versión: un duplicado o un record viejo no pisa
	// una fila más avanzada aunque llegue tarde.
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO item_read_model (item_id, state, price, version, last_modified_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (item_id) DO UPDATE
		 SET state = EXCLUDED.state, price = EXCLUDED.price,
		     version = EXCLUDED.version, last_modified_at = EXCLUDED.last_modified_at
		 WHERE item_read_model.version < EXCLUDED.version`,
		next.ItemID, string(next.State), next.Price, next.Version, next.LastModifiedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to project record seq %d: %w", rec.Sequence, err)
	}
	return true, nil
}

// ProjectTx encaja con el TxProjector del event store Postgres.
func (r *ItemReadModelPostgres) ProjectTx(ctx context.Context, tx *sql.Tx, records []sharedDomain.EventRecord) error {
	for _, rec := range records {
		var current *itemDomain.ItemRow
		var stateStr string
		var row itemDomain.ItemRow
		err := tx.QueryRowContext(ctx,
			`SELECT item_id, state, price, version, last_modified_at
			 FROM item_read_model WHERE item_id = $1`, rec.StreamID,
		).Scan(&row.ItemID, &stateStr, &row.Price, &row.Version, &row.LastModifiedAt)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if err == nil {
			row.State = itemDomain.State(stateStr)
			current = &row
		}

		next, applied, err := projection.Apply(current, rec)
		if err != nil {
			return err
		}
		if !applied {
			continue
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item_read_model (item_id, state, price, version, last_modified_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (item_id) DO UPDATE
			 SET state = EXCLUDED.state, price = EXCLUDED.price,
			     version = EXCLUDED.version, last_modified_at = EXCLUDED.last_modified_at
			 WHERE item_read_model.version < EXCLUDED.version`,
			next.ItemID, string(next.State), next.Price, next.Version, next.LastModifiedAt,
		); err != nil {
			return fmt.Errorf("failed to project record seq %d: %w", rec.Sequence, err)
		}
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ itemDomain.ItemReadModelRepository = (*ItemReadModelPostgres)(nil)
