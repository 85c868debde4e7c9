package store

import (
	"context"
	"strings"
)

// Driver is implemented by every document-database backend. A driver owns the
// connection to the store; it must be safe for concurrent use and is never
// mutated after construction.
type Driver interface {
	// Name is a short, stable identifier used in logs and metrics.
	Name() string
	// EnsureDatabase returns a handle to the logical database, creating it
	// when absent. Repeated calls with the same id must succeed.
	EnsureDatabase(ctx context.Context, id string) (Database, error)
	// Close releases the underlying connection.
	Close() error
}

// Database is a handle to a logical database.
type Database interface {
	ID() string
	// EnsureCollection returns a handle to the collection, creating it with
	// the given partition-key path when absent. Idempotent.
	EnsureCollection(ctx context.Context, id, partitionKeyPath string) (Collection, error)
}

// Collection is a handle to a container of JSON documents. Every item
// operation is addressed by (partition-key value, id).
type Collection interface {
	ID() string
	// CreateItem stores doc under id. ErrConflict if the id is taken.
	CreateItem(ctx context.Context, pk, id string, doc []byte) error
	// ReplaceItem overwrites the document at id. ErrNotFound if absent.
	ReplaceItem(ctx context.Context, pk, id string, doc []byte) error
	// DeleteItem removes the document at id. ErrNotFound if absent.
	DeleteItem(ctx context.Context, pk, id string) error
	// QueryItems returns every document matching q. An empty collection
	// yields an empty result and no error.
	QueryItems(ctx context.Context, q Query) ([][]byte, error)
}

// Query is the predicate accepted by QueryItems. The zero value matches
// every document.
type Query struct {
	// ID, when set, restricts the result to documents with this id.
	ID string
}

// All matches every document in the collection.
func All() Query { return Query{} }

// ByID matches the documents whose id equals id.
func ByID(id string) Query { return Query{ID: id} }

// Matches reports whether a document with the given id satisfies q.
func (q Query) Matches(id string) bool { return q.ID == "" || q.ID == id }

// PartitionKeyField returns the top-level document field addressed by a
// partition-key path such as "/id".
func PartitionKeyField(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

// Addressing names where records live: the database, the collection inside
// it and the partition-key path the collection is created with. All three
// are required.
type Addressing struct {
	DatabaseID       string
	CollectionID     string
	PartitionKeyPath string
}
