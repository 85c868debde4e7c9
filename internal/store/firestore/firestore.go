// Package firestore is the Google Cloud Firestore store.Driver.
//
// Layout: a database is a top-level collection and each store collection is
// a marker document inside it (holding the partition-key path) whose "items"
// subcollection contains the records:
//
//	<database>/<collection>/items/<docID>
//
// docID joins the escaped partition-key value and the record id, so the same
// id may exist once per partition. Once the marker document is deleted,
// queries and replace/delete calls that miss their document report
// store.ErrCollectionGone. Writes never read the marker on the success path.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tbourn/car-manager/internal/store"
)

const (
	itemsCollection = "items"

	fieldPK  = "pk"
	fieldID  = "id"
	fieldDoc = "doc"
)

// Driver wraps one Firestore client.
type Driver struct {
	client *firestore.Client
}

var _ store.Driver = (*Driver)(nil)

// New connects to projectID. credentialsFile may be empty to use
// Application Default Credentials.
func New(ctx context.Context, projectID, credentialsFile string) (*Driver, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: client: %w", err)
	}
	return &Driver{client: client}, nil
}

// Name implements store.Driver.
func (d *Driver) Name() string { return "firestore" }

// Close implements store.Driver.
func (d *Driver) Close() error { return d.client.Close() }

// EnsureDatabase implements store.Driver. Firestore collections exist
// implicitly, so nothing is written.
func (d *Driver) EnsureDatabase(_ context.Context, id string) (store.Database, error) {
	return &database{client: d.client, col: d.client.Collection(id)}, nil
}

type database struct {
	client *firestore.Client
	col    *firestore.CollectionRef
}

func (b *database) ID() string { return b.col.ID }

func (b *database) EnsureCollection(ctx context.Context, id, partitionKeyPath string) (store.Collection, error) {
	marker := b.col.Doc(id)
	_, err := marker.Create(ctx, map[string]any{
		"partitionKeyPath": partitionKeyPath,
		"createdAt":        time.Now().UTC(),
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return nil, fmt.Errorf("firestore: create collection %q: %w", id, err)
	}
	if err != nil {
		snap, gerr := marker.Get(ctx)
		if gerr != nil {
			return nil, fmt.Errorf("firestore: read collection %q: %w", id, gerr)
		}
		if got, _ := snap.Data()["partitionKeyPath"].(string); got != partitionKeyPath {
			return nil, fmt.Errorf("firestore: collection %q already exists with partition key %q", id, got)
		}
	}
	return &collection{
		client: b.client,
		marker: marker,
		items:  marker.Collection(itemsCollection),
	}, nil
}

type collection struct {
	client *firestore.Client
	marker *firestore.DocumentRef
	items  *firestore.CollectionRef
}

func (c *collection) ID() string { return c.marker.ID }

// present fails with store.ErrCollectionGone once the marker is deleted.
func (c *collection) present(ctx context.Context) error {
	_, err := c.marker.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("firestore: %s: %w", c.marker.Path, store.ErrCollectionGone)
	}
	return err
}

// CreateItem writes without reading the marker. A car created after the
// marker was deleted is picked up again once the collection is re-provisioned,
// which the next query triggers.
func (c *collection) CreateItem(ctx context.Context, pk, id string, doc []byte) error {
	_, err := c.items.Doc(DocID(pk, id)).Create(ctx, data(pk, id, doc))
	return translate(err, "create", id)
}

// ReplaceItem overwrites every field of an existing document. Update fails
// with NotFound when the document is absent, so no read is needed first.
func (c *collection) ReplaceItem(ctx context.Context, pk, id string, doc []byte) error {
	_, err := c.items.Doc(DocID(pk, id)).Update(ctx, []firestore.Update{
		{Path: fieldPK, Value: pk},
		{Path: fieldID, Value: id},
		{Path: fieldDoc, Value: string(doc)},
	})
	return c.missing(ctx, err, "replace", id)
}

func (c *collection) DeleteItem(ctx context.Context, pk, id string) error {
	_, err := c.items.Doc(DocID(pk, id)).Delete(ctx, firestore.Exists)
	return c.missing(ctx, err, "delete", id)
}

// missing reads the marker only after a write reported NotFound, so the
// common path costs a single document write.
func (c *collection) missing(ctx context.Context, err error, op, id string) error {
	if status.Code(err) != codes.NotFound {
		return translate(err, op, id)
	}
	return notFoundOrGone(err, c.present(ctx), op, id)
}

// notFoundOrGone decides between store.ErrCollectionGone and
// store.ErrNotFound for a write that got NotFound, given the result of the
// marker check. A failed marker read keeps the item-level answer.
func notFoundOrGone(err, markerErr error, op, id string) error {
	if errors.Is(markerErr, store.ErrCollectionGone) {
		return markerErr
	}
	return translate(err, op, id)
}

func (c *collection) QueryItems(ctx context.Context, q store.Query) ([][]byte, error) {
	if err := c.present(ctx); err != nil {
		return nil, translate(err, "query", q.ID)
	}

	query := c.items.OrderBy(firestore.DocumentID, firestore.Asc)
	if q.ID != "" {
		query = c.items.Where(fieldID, "==", q.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	out := make([][]byte, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, translate(err, "query", q.ID)
		}
		b, err := body(snap.Data())
		if err != nil {
			return nil, fmt.Errorf("firestore: %s: %w", snap.Ref.Path, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// DocID is the Firestore document id for a (partition-key value, id) pair.
func DocID(pk, id string) string {
	return url.PathEscape(pk) + "|" + url.PathEscape(id)
}

func data(pk, id string, doc []byte) map[string]any {
	return map[string]any{
		fieldPK:  pk,
		fieldID:  id,
		fieldDoc: string(doc),
	}
}

func body(m map[string]any) ([]byte, error) {
	s, ok := m[fieldDoc].(string)
	if !ok {
		return nil, fmt.Errorf("missing %q field", fieldDoc)
	}
	return []byte(s), nil
}

// translate maps gRPC status codes onto the store sentinels. Errors that
// already carry a sentinel pass through.
func translate(err error, op, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrCollectionGone) {
		return err
	}
	switch status.Code(err) {
	case codes.AlreadyExists:
		return fmt.Errorf("firestore: %s %q: %w: %w", op, id, store.ErrConflict, err)
	case codes.NotFound:
		return fmt.Errorf("firestore: %s %q: %w: %w", op, id, store.ErrNotFound, err)
	}
	return fmt.Errorf("firestore: %s %q: %w", op, id, err)
}
