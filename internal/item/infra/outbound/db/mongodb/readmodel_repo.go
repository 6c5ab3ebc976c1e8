package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	itemDomain "github.com/davicafu/eventlab/internal/item/domain"
	"github.com/davicafu/eventlab/internal/item/projection"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

// ItemReadModelMongo implementa el read model sobre MongoDB, pensado para
// el despliegue desacoplado donde la proyección vive lejos del write model.
type ItemReadModelMongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewItemReadModelMongo(ctx context.Context, client *mongo.Client, dbName string) (*ItemReadModelMongo, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}

	return &ItemReadModelMongo{
		client: client,
		coll:   client.Database(dbName).Collection("item_read_model"),
	}, nil
}

// --- Struct de BSON para el mapeo ---
// Se define localmente para no "contaminar" el dominio con tags de BSON.

type mongoItemRow struct {
	ID             string    `bson:"_id"`
	State          string    `bson:"state"`
	Price          float64   `bson:"price"`
	Version        int64     `bson:"version"`
	LastModifiedAt time.Time `bson:"lastModifiedAt"`
}

func (r *ItemReadModelMongo) Get(ctx context.Context, id uuid.UUID) (*itemDomain.ItemRow, error) {
	var doc mongoItemRow
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, itemDomain.ErrItemNotFound
		}
		return nil, err
	}

	parsedID, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID in read model document: %w", err)
	}

	return &itemDomain.ItemRow{
		ItemID:         parsedID,
		State:          itemDomain.State(doc.State),
		Price:          doc.Price,
		Version:        uint64(doc.Version),
		LastModifiedAt: doc.LastModifiedAt,
	}, nil
}

func (r *ItemReadModelMongo) Apply(ctx context.Context, rec sharedDomain.EventRecord) (bool, error) {
	current, err := r.Get(ctx, rec.StreamID)
	if err != nil && !errors.Is(err, itemDomain.ErrItemNotFound) {
		return false, err
	}

	next, applied, err := projection.Apply(current, rec)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	doc := mongoItemRow{
		ID:             next.ItemID.String(),
		State:          string(next.State),
		Price:          next.Price,
		Version:        int64(next.Version),
		LastModifiedAt: next.LastModifiedAt,
	}

	// El filtro por versión repite la guarda de idempotencia en el upsert:
	// si otro consumidor ya avanzó la fila, este replace no matchea nada.
	filter := bson.M{"_id": doc.ID, "version": bson.M{"$lt": doc.Version}}
	if current == nil {
		filter = bson.M{"_id": doc.ID}
	}

	_, err = r.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(current == nil))
	if err != nil {
		return false, fmt.Errorf("failed to project record seq %d: %w", rec.Sequence, err)
	}
	return true, nil
}

// Verificación en tiempo de compilación.
var _ itemDomain.ItemReadModelRepository = (*ItemReadModelMongo)(nil)
