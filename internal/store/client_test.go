package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/car-manager/internal/store"
	"github.com/tbourn/car-manager/internal/store/memstore"
)

func TestClient_Collection_CachesHandles(t *testing.T) {
	ctx := context.Background()
	drv := memstore.New()
	c := store.NewClient(drv)

	for i := 0; i < 3; i++ {
		if _, err := c.Collection(ctx, "cars-db", "cars", "/id"); err != nil {
			t.Fatalf("Collection #%d: %v", i, err)
		}
	}
	dbs, cols := drv.EnsureCalls()
	if dbs != 1 || cols != 1 {
		t.Fatalf("ensure calls = (%d,%d); want (1,1)", dbs, cols)
	}
}

func TestClient_Collection_ConcurrentFirstAccess(t *testing.T) {
	ctx := context.Background()
	drv := memstore.New()
	c := store.NewClient(drv)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Collection(ctx, "cars-db", "cars", "/id"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Collection: %v", err)
	}
	dbs, cols := drv.EnsureCalls()
	if dbs != 1 || cols != 1 {
		t.Fatalf("ensure calls = (%d,%d); want (1,1)", dbs, cols)
	}
}

// gatedDriver blocks EnsureDatabase until release is closed, honoring the
// context it is given.
type gatedDriver struct {
	*memstore.Driver
	entered chan struct{}
	release chan struct{}
}

func (d *gatedDriver) EnsureDatabase(ctx context.Context, id string) (store.Database, error) {
	close(d.entered)
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return d.Driver.EnsureDatabase(ctx, id)
}

func TestClient_Database_CancelledCallerDoesNotFailOthers(t *testing.T) {
	drv := &gatedDriver{Driver: memstore.New(), entered: make(chan struct{}), release: make(chan struct{})}
	c := store.NewClient(drv)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Database(ctxA, "cars-db")
		errA <- err
	}()
	<-drv.entered

	errB := make(chan error, 1)
	go func() {
		_, err := c.Database(context.Background(), "cars-db")
		errB <- err
	}()

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller: got %v; want context.Canceled", err)
		}
		if errors.Is(err, store.ErrUnavailable) {
			t.Fatalf("cancellation must not be reported as unavailable: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled caller still waiting")
	}

	close(drv.release)
	select {
	case err := <-errB:
		if err != nil {
			t.Fatalf("healthy caller failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("healthy caller never returned")
	}
	if dbs, _ := drv.EnsureCalls(); dbs != 1 {
		t.Fatalf("EnsureDatabase calls = %d; want 1", dbs)
	}
	// The shared result was cached.
	if _, err := c.Database(context.Background(), "cars-db"); err != nil {
		t.Fatalf("cached Database: %v", err)
	}
}

func TestClient_Database_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	drv := memstore.New()
	c := store.NewClient(drv)

	boom := errors.New("dial tcp: connection refused")
	drv.Fail(boom)
	_, err := c.Database(ctx, "cars-db")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("underlying error lost: %v", err)
	}

	drv.Fail(nil)
	db, err := c.Database(ctx, "cars-db")
	if err != nil {
		t.Fatalf("Database after recovery: %v", err)
	}
	if db.ID() != "cars-db" {
		t.Fatalf("db id = %q", db.ID())
	}
	if dbs, _ := drv.EnsureCalls(); dbs != 2 {
		t.Fatalf("EnsureDatabase calls = %d; want 2", dbs)
	}
}

func TestClient_CollectionIn_UsesResolvedDatabase(t *testing.T) {
	ctx := context.Background()
	drv := memstore.New()
	c := store.NewClient(drv)

	db, err := c.Database(ctx, "cars-db")
	if err != nil {
		t.Fatalf("Database: %v", err)
	}
	col, err := c.CollectionIn(ctx, db, "cars", "/id")
	if err != nil {
		t.Fatalf("CollectionIn: %v", err)
	}
	if col.ID() != "cars" {
		t.Fatalf("collection id = %q", col.ID())
	}
	// Same key through the other entry point hits the cache.
	if _, err := c.Collection(ctx, "cars-db", "cars", "/id"); err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if _, cols := drv.EnsureCalls(); cols != 1 {
		t.Fatalf("EnsureCollection calls = %d; want 1", cols)
	}
}

func TestClient_EvictsHandleWhenCollectionVanishes(t *testing.T) {
	ctx := context.Background()
	drv := memstore.New()
	c := store.NewClient(drv)

	col, err := c.Collection(ctx, "cars-db", "cars", "/id")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if err := col.CreateItem(ctx, "a", "a", []byte(`{"id":"a"}`)); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	drv.DropCollection("cars-db", "cars")

	_, err = col.QueryItems(ctx, store.All())
	if !errors.Is(err, store.ErrCollectionGone) || !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected gone+unavailable, got %v", err)
	}

	col2, err := c.Collection(ctx, "cars-db", "cars", "/id")
	if err != nil {
		t.Fatalf("Collection after eviction: %v", err)
	}
	items, err := col2.QueryItems(ctx, store.All())
	if err != nil {
		t.Fatalf("QueryItems: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("recreated collection should be empty, got %d items", len(items))
	}
	if _, cols := drv.EnsureCalls(); cols != 2 {
		t.Fatalf("EnsureCollection calls = %d; want 2", cols)
	}
}

func TestClient_Forget(t *testing.T) {
	ctx := context.Background()
	drv := memstore.New()
	c := store.NewClient(drv)

	if _, err := c.Collection(ctx, "cars-db", "cars", "/id"); err != nil {
		t.Fatalf("Collection: %v", err)
	}
	c.Forget("cars-db", "cars")
	if _, err := c.Collection(ctx, "cars-db", "cars", "/id"); err != nil {
		t.Fatalf("Collection: %v", err)
	}
	dbs, cols := drv.EnsureCalls()
	if dbs != 2 || cols != 2 {
		t.Fatalf("ensure calls = (%d,%d); want (2,2)", dbs, cols)
	}
}

func TestClient_DomainErrorsAreNotUnavailable(t *testing.T) {
	ctx := context.Background()
	c := store.NewClient(memstore.New())
	col, err := c.Collection(ctx, "cars-db", "cars", "/id")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}

	err = col.DeleteItem(ctx, "missing", "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("not-found must not be reported as unavailable: %v", err)
	}

	if err := col.CreateItem(ctx, "a", "a", []byte(`{}`)); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	err = col.CreateItem(ctx, "a", "a", []byte(`{}`))
	if !errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected plain ErrConflict, got %v", err)
	}
}

func TestClient_QueryItems_EmptyIsNonNil(t *testing.T) {
	ctx := context.Background()
	c := store.NewClient(memstore.New())
	col, err := c.Collection(ctx, "cars-db", "cars", "/id")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	items, err := col.QueryItems(ctx, store.All())
	if err != nil {
		t.Fatalf("QueryItems: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
}

func TestUnavailable(t *testing.T) {
	if store.Unavailable(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	if err := store.Unavailable(store.ErrNotFound); err != store.ErrNotFound {
		t.Fatalf("domain errors must pass through, got %v", err)
	}
	wrapped := store.Unavailable(errors.New("x"))
	if !errors.Is(wrapped, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable in chain")
	}
	if again := store.Unavailable(wrapped); again != wrapped {
		t.Fatalf("double wrap")
	}
	for _, ctxErr := range []error{context.Canceled, context.DeadlineExceeded} {
		if got := store.Unavailable(ctxErr); got != ctxErr {
			t.Fatalf("Unavailable(%v) = %v; want unchanged", ctxErr, got)
		}
	}
}

func TestQueryAndPartitionKeyField(t *testing.T) {
	if !store.All().Matches("anything") {
		t.Fatalf("All must match every id")
	}
	if store.ByID("a").Matches("b") || !store.ByID("a").Matches("a") {
		t.Fatalf("ByID mismatch")
	}
	cases := map[string]string{"/id": "id", " /carId ": "carId", "id": "id"}
	for in, want := range cases {
		if got := store.PartitionKeyField(in); got != want {
			t.Fatalf("PartitionKeyField(%q) = %q; want %q", in, got, want)
		}
	}
}
