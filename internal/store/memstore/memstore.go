// Package memstore is an in-process store.Driver. It keeps documents in maps
// guarded by a single RWMutex and is intended for tests and local demos.
//
// It mirrors the addressing rules of the real drivers: documents are keyed by
// (partition-key value, id), databases and collections are created on demand,
// and a collection dropped with DropCollection reports store.ErrCollectionGone
// through every handle that still points at it.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tbourn/car-manager/internal/store"
)

type itemKey struct{ pk, id string }

// Driver is the in-memory store. The zero value is not usable; call New.
type Driver struct {
	mu   sync.RWMutex
	dbs  map[string]*database
	fail error

	ensureDB  atomic.Int64
	ensureCol atomic.Int64
}

var _ store.Driver = (*Driver)(nil)

// New returns an empty in-memory store.
func New() *Driver {
	return &Driver{dbs: make(map[string]*database)}
}

// Name implements store.Driver.
func (d *Driver) Name() string { return "memory" }

// Close implements store.Driver.
func (d *Driver) Close() error { return nil }

// Fail makes every subsequent call return err (nil restores normal service).
func (d *Driver) Fail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

// EnsureCalls reports how many times EnsureDatabase and EnsureCollection ran.
func (d *Driver) EnsureCalls() (databases, collections int64) {
	return d.ensureDB.Load(), d.ensureCol.Load()
}

// DropCollection removes a collection and all of its documents, simulating an
// out-of-band deletion.
func (d *Driver) DropCollection(databaseID, collectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	db, ok := d.dbs[databaseID]
	if !ok {
		return
	}
	if col, ok := db.cols[collectionID]; ok {
		col.gone = true
		delete(db.cols, collectionID)
	}
}

// EnsureDatabase implements store.Driver.
func (d *Driver) EnsureDatabase(ctx context.Context, id string) (store.Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.ensureDB.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	db, ok := d.dbs[id]
	if !ok {
		db = &database{d: d, id: id, cols: make(map[string]*collection)}
		d.dbs[id] = db
	}
	return db, nil
}

type database struct {
	d    *Driver
	id   string
	cols map[string]*collection
}

func (db *database) ID() string { return db.id }

func (db *database) EnsureCollection(ctx context.Context, id, partitionKeyPath string) (store.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.d.ensureCol.Add(1)
	db.d.mu.Lock()
	defer db.d.mu.Unlock()
	if db.d.fail != nil {
		return nil, db.d.fail
	}
	// The database may have been recreated; always attach to the live one.
	live, ok := db.d.dbs[db.id]
	if !ok {
		live = db
		db.d.dbs[db.id] = db
	}
	col, ok := live.cols[id]
	if !ok {
		col = &collection{d: db.d, id: id, pkPath: partitionKeyPath, items: make(map[itemKey][]byte)}
		live.cols[id] = col
	}
	if col.pkPath != partitionKeyPath {
		return nil, fmt.Errorf("memstore: collection %q already exists with partition key %q", id, col.pkPath)
	}
	return col, nil
}

type collection struct {
	d      *Driver
	id     string
	pkPath string
	items  map[itemKey][]byte
	gone   bool
}

func (c *collection) ID() string { return c.id }

// check must be called with the driver lock held.
func (c *collection) check(ctx context.Context, id string, needID bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.d.fail != nil {
		return c.d.fail
	}
	if c.gone {
		return fmt.Errorf("memstore: %q: %w", c.id, store.ErrCollectionGone)
	}
	if needID && id == "" {
		return store.ErrInvalidID
	}
	return nil
}

func (c *collection) CreateItem(ctx context.Context, pk, id string, doc []byte) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if err := c.check(ctx, id, true); err != nil {
		return err
	}
	k := itemKey{pk: pk, id: id}
	if _, exists := c.items[k]; exists {
		return fmt.Errorf("memstore: create %q: %w", id, store.ErrConflict)
	}
	c.items[k] = clone(doc)
	return nil
}

func (c *collection) ReplaceItem(ctx context.Context, pk, id string, doc []byte) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if err := c.check(ctx, id, true); err != nil {
		return err
	}
	k := itemKey{pk: pk, id: id}
	if _, exists := c.items[k]; !exists {
		return fmt.Errorf("memstore: replace %q: %w", id, store.ErrNotFound)
	}
	c.items[k] = clone(doc)
	return nil
}

func (c *collection) DeleteItem(ctx context.Context, pk, id string) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if err := c.check(ctx, id, true); err != nil {
		return err
	}
	k := itemKey{pk: pk, id: id}
	if _, exists := c.items[k]; !exists {
		return fmt.Errorf("memstore: delete %q: %w", id, store.ErrNotFound)
	}
	delete(c.items, k)
	return nil
}

func (c *collection) QueryItems(ctx context.Context, q store.Query) ([][]byte, error) {
	c.d.mu.RLock()
	defer c.d.mu.RUnlock()
	if err := c.check(ctx, "", false); err != nil {
		return nil, err
	}
	keys := make([]itemKey, 0, len(c.items))
	for k := range c.items {
		if q.Matches(k.id) {
			keys = append(keys, k)
		}
	}
	// Map iteration order is random; keep scans stable for callers and tests.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].id != keys[j].id {
			return keys[i].id < keys[j].id
		}
		return keys[i].pk < keys[j].pk
	})
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(c.items[k]))
	}
	return out, nil
}

// Put stores doc directly, bypassing conflict checks. Tests use it to seed
// states the public API cannot produce (e.g. the same id under two
// partition-key values).
func (d *Driver) Put(databaseID, collectionID, pk, id string, doc []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	db, ok := d.dbs[databaseID]
	if !ok {
		return fmt.Errorf("memstore: database %q: %w", databaseID, store.ErrCollectionGone)
	}
	col, ok := db.cols[collectionID]
	if !ok {
		return fmt.Errorf("memstore: collection %q: %w", collectionID, store.ErrCollectionGone)
	}
	col.items[itemKey{pk: pk, id: id}] = clone(doc)
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
