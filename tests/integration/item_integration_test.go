package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	itemDomain "github.com/davicafu/eventlab/internal/item/domain"
	itemSqlite "github.com/davicafu/eventlab/internal/item/infra/outbound/db/sqlite"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
	storeSqlite "github.com/davicafu/eventlab/internal/shared/infra/db/sqlite"
	"github.com/davicafu/eventlab/internal/shared/infra/relayer"

	"github.com/davicafu/eventlab/tests/mocks"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// una sola conexión: cada conexión nueva vería otra :memory: vacía
	db.SetMaxOpenConns(1)

	require.NoError(t, storeSqlite.InitSQLite(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEventStoreSQLite_AppendAndLoad(t *testing.T) {
	db := setupTestDB(t)
	store := storeSqlite.NewEventStoreSQLite(db)
	ctx := context.Background()

	id := uuid.New()
	t0 := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	version, err := store.Append(ctx, id, 0, []sharedDomain.DomainEvent{
		itemDomain.ItemInitialized{ItemID: id, At: t0},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)

	version, err = store.Append(ctx, id, 1, []sharedDomain.DomainEvent{
		itemDomain.ItemBought{ItemID: id, Price: 20.0, At: t0.Add(time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)

	records, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].Sequence)
	assert.Equal(t, uint64(2), records[1].Sequence)
	assert.Equal(t, itemDomain.ItemInitializedKind, records[0].Kind)
	assert.Equal(t, itemDomain.ItemBoughtKind, records[1].Kind)
}

func TestEventStoreSQLite_OptimisticConcurrency(t *testing.T) {
	db := setupTestDB(t)
	store := storeSqlite.NewEventStoreSQLite(db)
	ctx := context.Background()

	id := uuid.New()
	at := time.Now().UTC()

	_, err := store.Append(ctx, id, 0, []sharedDomain.DomainEvent{
		itemDomain.ItemInitialized{ItemID: id, At: at},
	})
	require.NoError(t, err)

	// dos escritores parten de la versión 1; solo el primero gana
	_, err = store.Append(ctx, id, 1, []sharedDomain.DomainEvent{
		itemDomain.ItemBought{ItemID: id, Price: 20.0, At: at},
	})
	require.NoError(t, err)

	_, err = store.Append(ctx, id, 1, []sharedDomain.DomainEvent{
		itemDomain.ItemBought{ItemID: id, Price: 99.0, At: at},
	})
	assert.ErrorIs(t, err, sharedDomain.ErrConcurrencyConflict)

	// el perdedor no dejó nada escrito
	records, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// crear dos veces el mismo stream también es conflicto
	_, err = store.Append(ctx, id, 0, []sharedDomain.DomainEvent{
		itemDomain.ItemInitialized{ItemID: id, At: at},
	})
	assert.ErrorIs(t, err, sharedDomain.ErrConcurrencyConflict)
}

func TestEventStoreSQLite_LoadUnknownStream(t *testing.T) {
	db := setupTestDB(t)
	store := storeSqlite.NewEventStoreSQLite(db)

	_, err := store.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, sharedDomain.ErrStreamNotFound)
}

func TestEventStoreSQLite_LoadAsOf(t *testing.T) {
	db := setupTestDB(t)
	store := storeSqlite.NewEventStoreSQLite(db)
	ctx := context.Background()

	id := uuid.New()
	t0 := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	_, err := store.Append(ctx, id, 0, []sharedDomain.DomainEvent{
		itemDomain.ItemInitialized{ItemID: id, At: t0},
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, id, 1, []sharedDomain.DomainEvent{
		itemDomain.ItemBought{ItemID: id, Price: 20.0, At: t1},
	})
	require.NoError(t, err)

	// entre los dos eventos: solo el primero cuenta
	records, err := store.LoadAsOf(ctx, id, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, itemDomain.ItemInitializedKind, records[0].Kind)

	// antes del primero: vacío sin error (el filtro temporal no distingue
	// stream inexistente de stream aún sin eventos)
	records, err = store.LoadAsOf(ctx, id, t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEventStoreSQLite_OutboxLifecycle(t *testing.T) {
	db := setupTestDB(t)
	store := storeSqlite.NewEventStoreSQLite(db)
	ctx := context.Background()

	id := uuid.New()
	at := time.Now().UTC()

	_, err := store.Append(ctx, id, 0, []sharedDomain.DomainEvent{
		itemDomain.ItemInitialized{ItemID: id, At: at},
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, id, 1, []sharedDomain.DomainEvent{
		itemDomain.ItemBought{ItemID: id, Price: 20.0, At: at},
	})
	require.NoError(t, err)

	// mismo commit que los records: dos pendientes
	pending, err := store.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, store.MarkOutboxSent(ctx, pending[0].ID))

	pending, err = store.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// marcar dos veces el mismo record no puede pasar en silencio
	err = store.MarkOutboxSent(ctx, uuid.New())
	assert.Error(t, err)
}

func TestEventStoreSQLite_SyncProjection(t *testing.T) {
	db := setupTestDB(t)
	repo := itemSqlite.NewItemReadModelSQLite(db)
	store := storeSqlite.NewEventStoreSQLite(db, storeSqlite.WithTxProjector(repo.ProjectTx))
	ctx := context.Background()

	id := uuid.New()
	t0 := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, id, 0, []sharedDomain.DomainEvent{
		itemDomain.ItemInitialized{ItemID: id, At: t0},
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, id, 1, []sharedDomain.DomainEvent{
		itemDomain.ItemBought{ItemID: id, Price: 20.0, At: t0.Add(time.Hour)},
	})
	require.NoError(t, err)

	// la fila quedó visible en el mismo commit del append
	row, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, itemDomain.StateBought, row.State)
	assert.Equal(t, 20.0, row.Price)
	assert.Equal(t, uint64(2), row.Version)
	assert.True(t, row.LastModifiedAt.Equal(t0.Add(time.Hour)))
}

func TestReadModelSQLite_AsyncApplyIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := itemSqlite.NewItemReadModelSQLite(db)
	store := storeSqlite.NewEventStoreSQLite(db)
	ctx := context.Background()

	id := uuid.New()
	at := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, id, 0, []sharedDomain.DomainEvent{
		itemDomain.ItemInitialized{ItemID: id, At: at},
	})
	require.NoError(t, err)

	records, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)

	applied, err := repo.Apply(ctx, records[0])
	require.NoError(t, err)
	assert.True(t, applied)

	// reentrega: misma secuencia, no-op
	applied, err = repo.Apply(ctx, records[0])
	require.NoError(t, err)
	assert.False(t, applied)

	row, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), row.Version)
}

func TestOutboxWorker_AtLeastOnceWithRealStore(t *testing.T) {
	db := setupTestDB(t)
	store := storeSqlite.NewEventStoreSQLite(db)
	ctx := context.Background()

	id := uuid.New()
	_, err := store.Append(ctx, id, 0, []sharedDomain.DomainEvent{
		itemDomain.ItemInitialized{ItemID: id, At: time.Now().UTC()},
	})
	require.NoError(t, err)

	// primer ciclo: el broker está caído, el record sigue PENDING
	publisher := new(mocks.MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	worker := relayer.NewOutboxWorker(store, publisher, 0, 10, zap.NewNop())
	worker.ProcessBatch(ctx)

	pending, err := store.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// segundo ciclo: el broker vuelve y el mismo record se republica
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	worker.ProcessBatch(ctx)

	pending, err = store.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	publisher.AssertExpectations(t)
}
