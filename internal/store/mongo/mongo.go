// Package mongo is the MongoDB store.Driver.
//
// MongoDB has no partition keys, so the (partition-key value, id) address is
// folded into a compound _id. The JSON body is stored as native BSON fields
// next to it and an index on "id" serves cross-partition lookups.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/car-manager/internal/store"
)

// codeNamespaceExists is returned by createCollection for an existing name.
const codeNamespaceExists = 48

// Driver holds one MongoDB client.
type Driver struct {
	client *mongo.Client
}

var _ store.Driver = (*Driver)(nil)

// Connect dials uri and verifies the deployment is reachable.
func Connect(ctx context.Context, uri string) (*Driver, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Driver{client: client}, nil
}

// Name implements store.Driver.
func (d *Driver) Name() string { return "mongo" }

// Close implements store.Driver.
func (d *Driver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// EnsureDatabase implements store.Driver. MongoDB creates databases lazily
// with their first collection, so this only returns the handle.
func (d *Driver) EnsureDatabase(_ context.Context, id string) (store.Database, error) {
	return &database{db: d.client.Database(id)}, nil
}

type database struct {
	db *mongo.Database
}

func (b *database) ID() string { return b.db.Name() }

func (b *database) EnsureCollection(ctx context.Context, id, _ string) (store.Collection, error) {
	err := b.db.CreateCollection(ctx, id)
	var ce mongo.CommandError
	if err != nil && !(errors.As(err, &ce) && ce.Code == codeNamespaceExists) {
		return nil, fmt.Errorf("mongo: create collection %q: %w", id, err)
	}

	c := b.db.Collection(id)
	_, err = c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetName("id_lookup"),
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: index %q: %w", id, err)
	}
	return &collection{c: c}, nil
}

type collection struct {
	c *mongo.Collection
}

func (c *collection) ID() string { return c.c.Name() }

func (c *collection) CreateItem(ctx context.Context, pk, id string, doc []byte) error {
	d, err := encode(pk, id, doc)
	if err != nil {
		return err
	}
	if _, err := c.c.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("mongo: create %q: %w: %w", id, store.ErrConflict, err)
		}
		return fmt.Errorf("mongo: create %q: %w", id, err)
	}
	return nil
}

func (c *collection) ReplaceItem(ctx context.Context, pk, id string, doc []byte) error {
	d, err := encode(pk, id, doc)
	if err != nil {
		return err
	}
	res, err := c.c.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key(pk, id)}}, d)
	if err != nil {
		return fmt.Errorf("mongo: replace %q: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mongo: replace %q: %w", id, store.ErrNotFound)
	}
	return nil
}

func (c *collection) DeleteItem(ctx context.Context, pk, id string) error {
	res, err := c.c.DeleteOne(ctx, bson.D{{Key: "_id", Value: key(pk, id)}})
	if err != nil {
		return fmt.Errorf("mongo: delete %q: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("mongo: delete %q: %w", id, store.ErrNotFound)
	}
	return nil
}

func (c *collection) QueryItems(ctx context.Context, q store.Query) ([][]byte, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 0}}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := c.c.Find(ctx, filter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: query %s: %w", c.c.Name(), err)
	}
	defer cur.Close(ctx)

	out := make([][]byte, 0)
	for cur.Next(ctx) {
		b, err := decode(cur.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo: query %s: %w", c.c.Name(), err)
	}
	return out, nil
}

func key(pk, id string) bson.D {
	return bson.D{{Key: "pk", Value: pk}, {Key: "id", Value: id}}
}

func filter(q store.Query) bson.D {
	if q.ID == "" {
		return bson.D{}
	}
	return bson.D{{Key: "id", Value: q.ID}}
}

// encode turns a JSON document into BSON with the compound _id first.
func encode(pk, id string, doc []byte) (bson.D, error) {
	var body bson.D
	if err := bson.UnmarshalExtJSON(doc, false, &body); err != nil {
		return nil, fmt.Errorf("mongo: encode %q: %w", id, err)
	}
	out := make(bson.D, 0, len(body)+1)
	out = append(out, bson.E{Key: "_id", Value: key(pk, id)})
	for _, e := range body {
		if e.Key != "_id" {
			out = append(out, e)
		}
	}
	return out, nil
}

// decode renders a stored document back to relaxed JSON.
func decode(raw bson.Raw) ([]byte, error) {
	b, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("mongo: decode: %w", err)
	}
	return b, nil
}
