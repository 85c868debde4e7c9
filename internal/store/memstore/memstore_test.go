package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/car-manager/internal/store"
)

func newCol(t *testing.T, d *Driver) store.Collection {
	t.Helper()
	db, err := d.EnsureDatabase(context.Background(), "db")
	if err != nil {
		t.Fatalf("EnsureDatabase: %v", err)
	}
	col, err := db.EnsureCollection(context.Background(), "cars", "/id")
	if err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	return col
}

func TestEnsure_Idempotent(t *testing.T) {
	d := New()
	a := newCol(t, d)
	b := newCol(t, d)
	ctx := context.Background()
	if err := a.CreateItem(ctx, "1", "1", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	items, err := b.QueryItems(ctx, store.All())
	if err != nil || len(items) != 1 {
		t.Fatalf("second handle should see the item: %v %d", err, len(items))
	}
}

func TestEnsureCollection_PartitionKeyMismatch(t *testing.T) {
	d := New()
	_ = newCol(t, d)
	db, _ := d.EnsureDatabase(context.Background(), "db")
	if _, err := db.EnsureCollection(context.Background(), "cars", "/other"); err == nil {
		t.Fatalf("expected error for different partition key path")
	}
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	col := newCol(t, New())

	if err := col.CreateItem(ctx, "1", "1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := col.CreateItem(ctx, "1", "1", []byte(`{"v":1}`)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
	if err := col.ReplaceItem(ctx, "1", "1", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := col.ReplaceItem(ctx, "2", "2", []byte(`{}`)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	items, err := col.QueryItems(ctx, store.ByID("1"))
	if err != nil || len(items) != 1 || string(items[0]) != `{"v":2}` {
		t.Fatalf("query: %v %q", err, items)
	}
	if err := col.DeleteItem(ctx, "1", "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := col.DeleteItem(ctx, "1", "1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	if err := col.CreateItem(ctx, "", "", nil); !errors.Is(err, store.ErrInvalidID) {
		t.Fatalf("want invalid id, got %v", err)
	}
}

func TestStoredBytesAreCopied(t *testing.T) {
	ctx := context.Background()
	col := newCol(t, New())
	doc := []byte(`{"v":1}`)
	if err := col.CreateItem(ctx, "1", "1", doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	doc[2] = 'X'
	items, _ := col.QueryItems(ctx, store.All())
	if string(items[0]) != `{"v":1}` {
		t.Fatalf("stored document aliased caller buffer: %s", items[0])
	}
}

func TestFailAndDrop(t *testing.T) {
	ctx := context.Background()
	d := New()
	col := newCol(t, d)

	boom := errors.New("boom")
	d.Fail(boom)
	if _, err := col.QueryItems(ctx, store.All()); !errors.Is(err, boom) {
		t.Fatalf("want injected error, got %v", err)
	}
	d.Fail(nil)

	d.DropCollection("db", "cars")
	if err := col.CreateItem(ctx, "1", "1", nil); !errors.Is(err, store.ErrCollectionGone) {
		t.Fatalf("want collection gone, got %v", err)
	}
}

func TestPut_SeedsDuplicates(t *testing.T) {
	ctx := context.Background()
	d := New()
	col := newCol(t, d)
	if err := d.Put("db", "cars", "p1", "dup", []byte(`{}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := d.Put("db", "cars", "p2", "dup", []byte(`{}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	items, err := col.QueryItems(ctx, store.ByID("dup"))
	if err != nil || len(items) != 2 {
		t.Fatalf("expected 2 items, got %d (%v)", len(items), err)
	}
}
