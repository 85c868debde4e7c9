package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/tbourn/car-manager/internal/store"

// Client owns the connection to the document store and hands out database
// and collection handles, provisioning them on first use.
//
// Resolved handles are cached: the hot path is a lock-free sync.Map read.
// Concurrent first access to the same key is collapsed into one provisioning
// call. Failures are never cached. A handle is evicted when an operation on
// it reports ErrCollectionGone, so the next call provisions it again.
//
// Client is safe for concurrent use.
type Client struct {
	driver Driver
	tracer trace.Tracer

	dbs   sync.Map // databaseID -> Database
	cols  sync.Map // collectionKey -> *collection
	group singleflight.Group
}

// NewClient wraps driver. The driver is shared by every handle and closed by
// Close.
func NewClient(driver Driver) *Client {
	return &Client{
		driver: driver,
		tracer: otel.Tracer(tracerName),
	}
}

// Driver returns the underlying driver name.
func (c *Client) Driver() string { return c.driver.Name() }

// Close closes the driver.
func (c *Client) Close() error { return c.driver.Close() }

// Database returns the database handle for id, creating the database if it
// does not exist.
func (c *Client) Database(ctx context.Context, id string) (Database, error) {
	if v, ok := c.dbs.Load(id); ok {
		return v.(Database), nil
	}
	v, err := c.provision(ctx, "db\x00"+id, func(ctx context.Context) (any, error) {
		if v, ok := c.dbs.Load(id); ok {
			return v, nil
		}
		ctx, span := c.tracer.Start(ctx, "store.EnsureDatabase",
			trace.WithAttributes(
				attribute.String("db.system", c.driver.Name()),
				attribute.String("db.name", id),
			))
		defer span.End()

		db, err := c.driver.EnsureDatabase(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, Unavailable(err)
		}
		storeProvisioned.WithLabelValues(c.driver.Name(), "database").Inc()
		log.Ctx(ctx).Debug().Str("driver", c.driver.Name()).Str("database", id).Msg("database provisioned")
		c.dbs.Store(id, db)
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Database), nil
}

// Collection resolves the database and then the collection, creating either
// when absent.
func (c *Client) Collection(ctx context.Context, databaseID, collectionID, partitionKeyPath string) (Collection, error) {
	key := collectionKey(databaseID, collectionID, partitionKeyPath)
	if v, ok := c.cols.Load(key); ok {
		return v.(*collection), nil
	}
	db, err := c.Database(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	return c.CollectionIn(ctx, db, collectionID, partitionKeyPath)
}

// CollectionIn resolves a collection inside an already resolved database.
func (c *Client) CollectionIn(ctx context.Context, db Database, collectionID, partitionKeyPath string) (Collection, error) {
	key := collectionKey(db.ID(), collectionID, partitionKeyPath)
	if v, ok := c.cols.Load(key); ok {
		return v.(*collection), nil
	}
	v, err := c.provision(ctx, "col\x00"+key, func(ctx context.Context) (any, error) {
		if v, ok := c.cols.Load(key); ok {
			return v, nil
		}
		ctx, span := c.tracer.Start(ctx, "store.EnsureCollection",
			trace.WithAttributes(
				attribute.String("db.system", c.driver.Name()),
				attribute.String("db.name", db.ID()),
				attribute.String("db.collection.name", collectionID),
			))
		defer span.End()

		raw, err := db.EnsureCollection(ctx, collectionID, partitionKeyPath)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, Unavailable(err)
		}
		storeProvisioned.WithLabelValues(c.driver.Name(), "collection").Inc()
		log.Ctx(ctx).Debug().
			Str("driver", c.driver.Name()).
			Str("database", db.ID()).
			Str("collection", collectionID).
			Str("partition_key_path", partitionKeyPath).
			Msg("collection provisioned")

		col := &collection{client: c, inner: raw, databaseID: db.ID(), key: key}
		c.cols.Store(key, col)
		return col, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*collection), nil
}

// provision runs fn once for concurrent callers of the same key. fn gets a
// context that keeps the first caller's values (span, logger) but not its
// cancellation, so one caller going away does not fail the others. Each
// caller stops waiting when its own ctx is done.
func (c *Client) provision(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) { return fn(detached) })
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget evicts the cached handles of a collection (every partition-key
// path) and of its database. The next call provisions them again.
func (c *Client) Forget(databaseID, collectionID string) {
	prefix := databaseID + "\x00" + collectionID + "\x00"
	c.cols.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			c.cols.Delete(k)
		}
		return true
	})
	c.dbs.Delete(databaseID)
}

func collectionKey(databaseID, collectionID, partitionKeyPath string) string {
	return databaseID + "\x00" + collectionID + "\x00" + partitionKeyPath
}

// collection decorates a driver collection with tracing, metrics, error
// classification and cache eviction.
type collection struct {
	client     *Client
	inner      Collection
	databaseID string
	key        string
}

func (c *collection) ID() string { return c.inner.ID() }

func (c *collection) CreateItem(ctx context.Context, pk, id string, doc []byte) error {
	return c.observe(ctx, "create", id, func(ctx context.Context) error {
		return c.inner.CreateItem(ctx, pk, id, doc)
	})
}

func (c *collection) ReplaceItem(ctx context.Context, pk, id string, doc []byte) error {
	return c.observe(ctx, "replace", id, func(ctx context.Context) error {
		return c.inner.ReplaceItem(ctx, pk, id, doc)
	})
}

func (c *collection) DeleteItem(ctx context.Context, pk, id string) error {
	return c.observe(ctx, "delete", id, func(ctx context.Context) error {
		return c.inner.DeleteItem(ctx, pk, id)
	})
}

func (c *collection) QueryItems(ctx context.Context, q Query) ([][]byte, error) {
	var out [][]byte
	err := c.observe(ctx, "query", q.ID, func(ctx context.Context) error {
		var err error
		out, err = c.inner.QueryItems(ctx, q)
		return err
	})
	if out == nil && err == nil {
		out = [][]byte{}
	}
	return out, err
}

func (c *collection) observe(ctx context.Context, op, id string, fn func(context.Context) error) error {
	driver := c.client.driver.Name()
	ctx, span := c.client.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", driver),
			attribute.String("db.name", c.databaseID),
			attribute.String("db.collection.name", c.inner.ID()),
			attribute.String("db.operation.name", op),
		))
	defer span.End()
	if id != "" {
		span.SetAttributes(attribute.String("document.id", id))
	}

	start := time.Now()
	err := fn(ctx)
	storeLat.WithLabelValues(driver, op).Observe(time.Since(start).Seconds())
	storeOps.WithLabelValues(driver, op, resultLabel(err)).Inc()

	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCollectionGone) {
		c.client.cols.Delete(c.key)
		c.client.dbs.Delete(c.databaseID)
		log.Ctx(ctx).Warn().
			Str("driver", driver).
			Str("database", c.databaseID).
			Str("collection", c.inner.ID()).
			Msg("collection vanished; cached handle evicted")
	}
	err = Unavailable(err)
	if !IsDomain(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
