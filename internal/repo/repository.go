// Package repo implements the record-access layer on top of the document
// store client. It exposes a storage-agnostic CRUD contract and one
// implementation, DocumentRepository, that maps records to JSON documents.
//
// Addressing rules:
//   - Every operation resolves (database, collection, partition-key path)
//     through store.Client before acting. The client caches the handle.
//   - The partition-key value of a record is always its id, so every record
//     lives in its own logical partition.
//   - When the partition-key path names a field other than "id", that field
//     is written into the stored document with the id as its value.
//
// Error semantics:
//   - GetByID reports absence as (zero, false, nil), never as an error.
//   - Edit and Delete return store.ErrNotFound for unknown ids.
//   - Add returns store.ErrConflict for ids already in use.
//   - More than one match for an id yields store.ErrConsistency.
//   - Infrastructure failures carry store.ErrUnavailable.
//
// The repository never generates ids and never retries.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/car-manager/internal/store"
)

// Repository is the CRUD contract over records of type T addressed by a
// string id.
type Repository[T any] interface {
	// GetAll returns every record. Each call queries the store again; an
	// empty collection yields an empty slice.
	GetAll(ctx context.Context) ([]T, error)
	// GetByID returns the record with the given id. ok is false when no such
	// record exists.
	GetByID(ctx context.Context, id string) (item T, ok bool, err error)
	// Add persists new records whose ids are already assigned. Records are
	// written in order and the first failure is returned.
	Add(ctx context.Context, items ...T) error
	// Edit replaces the record at id wholesale. The item's own id is forced
	// to id before writing.
	Edit(ctx context.Context, id string, item T) error
	// Delete removes the record at id.
	Delete(ctx context.Context, id string) error
}

// Identity tells the repository how to read and set a record's id.
type Identity[T any] struct {
	ID     func(T) string
	WithID func(T, string) T
}

// DocumentRepository stores records as JSON documents through a store.Client.
// It holds no mutable state of its own and is safe for concurrent use.
type DocumentRepository[T any] struct {
	client  *store.Client
	addr    store.Addressing
	ident   Identity[T]
	pkField string
}

// NewDocumentRepository returns a repository bound to addr.
func NewDocumentRepository[T any](client *store.Client, addr store.Addressing, ident Identity[T]) *DocumentRepository[T] {
	return &DocumentRepository[T]{
		client:  client,
		addr:    addr,
		ident:   ident,
		pkField: store.PartitionKeyField(addr.PartitionKeyPath),
	}
}

func (r *DocumentRepository[T]) collection(ctx context.Context) (store.Collection, error) {
	return r.client.Collection(ctx, r.addr.DatabaseID, r.addr.CollectionID, r.addr.PartitionKeyPath)
}

// GetAll implements Repository.
func (r *DocumentRepository[T]) GetAll(ctx context.Context) ([]T, error) {
	col, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := col.QueryItems(ctx, store.All())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := r.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	log.Ctx(ctx).Debug().
		Str("collection", r.addr.CollectionID).
		Int("count", len(out)).
		Msg("repo: get all")
	return out, nil
}

// GetByID implements Repository.
func (r *DocumentRepository[T]) GetByID(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if strings.TrimSpace(id) == "" {
		return zero, false, nil
	}
	col, err := r.collection(ctx)
	if err != nil {
		return zero, false, err
	}
	docs, err := col.QueryItems(ctx, store.ByID(id))
	if err != nil {
		return zero, false, err
	}
	switch len(docs) {
	case 0:
		return zero, false, nil
	case 1:
		item, err := r.decode(docs[0])
		if err != nil {
			return zero, false, err
		}
		return item, true, nil
	default:
		log.Ctx(ctx).Error().
			Str("collection", r.addr.CollectionID).
			Str("id", id).
			Int("matches", len(docs)).
			Msg("repo: id is not unique")
		return zero, false, fmt.Errorf("get %q: %d matches: %w", id, len(docs), store.ErrConsistency)
	}
}

// Add implements Repository.
func (r *DocumentRepository[T]) Add(ctx context.Context, items ...T) error {
	if len(items) == 0 {
		return nil
	}
	col, err := r.collection(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		id := r.ident.ID(item)
		if strings.TrimSpace(id) == "" {
			return store.ErrInvalidID
		}
		doc, err := r.encode(item, id)
		if err != nil {
			return err
		}
		if err := col.CreateItem(ctx, id, id, doc); err != nil {
			return err
		}
		log.Ctx(ctx).Debug().Str("collection", r.addr.CollectionID).Str("id", id).Msg("repo: added")
	}
	return nil
}

// Edit implements Repository.
func (r *DocumentRepository[T]) Edit(ctx context.Context, id string, item T) error {
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidID
	}
	col, err := r.collection(ctx)
	if err != nil {
		return err
	}
	item = r.ident.WithID(item, id)
	doc, err := r.encode(item, id)
	if err != nil {
		return err
	}
	if err := col.ReplaceItem(ctx, id, id, doc); err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Str("collection", r.addr.CollectionID).Str("id", id).Msg("repo: replaced")
	return nil
}

// Delete implements Repository.
func (r *DocumentRepository[T]) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidID
	}
	col, err := r.collection(ctx)
	if err != nil {
		return err
	}
	if err := col.DeleteItem(ctx, id, id); err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Str("collection", r.addr.CollectionID).Str("id", id).Msg("repo: deleted")
	return nil
}

// encode serializes item and, when the partition key is not the id field
// itself, writes the partition-key field with the id as its value.
func (r *DocumentRepository[T]) encode(item T, id string) ([]byte, error) {
	doc, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", id, err)
	}
	if r.pkField == "" || r.pkField == "id" {
		return doc, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("encode %q: %w", id, err)
	}
	pk, _ := json.Marshal(id)
	fields[r.pkField] = pk
	return json.Marshal(fields)
}

func (r *DocumentRepository[T]) decode(doc []byte) (T, error) {
	var item T
	if err := json.Unmarshal(doc, &item); err != nil {
		return item, fmt.Errorf("decode document: %w", err)
	}
	return item, nil
}
