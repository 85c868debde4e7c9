// Package cosmos is the Azure Cosmos DB (NoSQL API) store.Driver. It
// authenticates with an account connection string and creates databases and
// containers on demand.
//
// Items are addressed by (partition-key value, id) exactly as Cosmos does.
// Queries run cross-partition so lookups by id work for any partition-key
// path.
package cosmos

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/tbourn/car-manager/internal/store"
)

// subStatusOwnerMissing is the x-ms-substatus Cosmos returns with a 404 when
// the addressed container (rather than the item) does not exist.
const subStatusOwnerMissing = "1003"

// Driver talks to one Cosmos DB account.
type Driver struct {
	client *azcosmos.Client
}

var _ store.Driver = (*Driver)(nil)

// New connects with an account connection string of the form
// "AccountEndpoint=...;AccountKey=...;".
func New(connectionString string) (*Driver, error) {
	client, err := azcosmos.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("cosmos: client: %w", err)
	}
	return &Driver{client: client}, nil
}

// Name implements store.Driver.
func (d *Driver) Name() string { return "cosmos" }

// Close implements store.Driver. The SDK client holds no resources that need
// releasing.
func (d *Driver) Close() error { return nil }

// EnsureDatabase implements store.Driver.
func (d *Driver) EnsureDatabase(ctx context.Context, id string) (store.Database, error) {
	_, err := d.client.CreateDatabase(ctx, azcosmos.DatabaseProperties{ID: id}, nil)
	if err != nil && statusCode(err) != http.StatusConflict {
		return nil, fmt.Errorf("cosmos: create database %q: %w", id, err)
	}
	db, err := d.client.NewDatabase(id)
	if err != nil {
		return nil, fmt.Errorf("cosmos: database %q: %w", id, err)
	}
	return &database{db: db}, nil
}

type database struct {
	db *azcosmos.DatabaseClient
}

func (b *database) ID() string { return b.db.ID() }

func (b *database) EnsureCollection(ctx context.Context, id, partitionKeyPath string) (store.Collection, error) {
	props := azcosmos.ContainerProperties{
		ID: id,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{partitionKeyPath},
		},
	}
	_, err := b.db.CreateContainer(ctx, props, nil)
	if err != nil && statusCode(err) != http.StatusConflict {
		return nil, fmt.Errorf("cosmos: create container %q: %w", id, err)
	}
	c, err := b.db.NewContainer(id)
	if err != nil {
		return nil, fmt.Errorf("cosmos: container %q: %w", id, err)
	}
	return &collection{c: c}, nil
}

type collection struct {
	c *azcosmos.ContainerClient
}

func (c *collection) ID() string { return c.c.ID() }

func (c *collection) CreateItem(ctx context.Context, pk, id string, doc []byte) error {
	_, err := c.c.CreateItem(ctx, azcosmos.NewPartitionKeyString(pk), doc, nil)
	return translate(err, "create", id)
}

func (c *collection) ReplaceItem(ctx context.Context, pk, id string, doc []byte) error {
	_, err := c.c.ReplaceItem(ctx, azcosmos.NewPartitionKeyString(pk), id, doc, nil)
	return translate(err, "replace", id)
}

func (c *collection) DeleteItem(ctx context.Context, pk, id string) error {
	_, err := c.c.DeleteItem(ctx, azcosmos.NewPartitionKeyString(pk), id, nil)
	return translate(err, "delete", id)
}

func (c *collection) QueryItems(ctx context.Context, q store.Query) ([][]byte, error) {
	text, opts := queryText(q)
	pager := c.c.NewQueryItemsPager(text, azcosmos.NewPartitionKey(), opts)

	out := make([][]byte, 0)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			// A query never 404s on a missing item, only on a missing container.
			if statusCode(err) == http.StatusNotFound {
				return nil, fmt.Errorf("cosmos: query %s: %w: %w", c.c.ID(), store.ErrCollectionGone, err)
			}
			return nil, fmt.Errorf("cosmos: query %s: %w", c.c.ID(), err)
		}
		out = append(out, page.Items...)
	}
	return out, nil
}

// queryText renders q as Cosmos SQL. The id filter is always parameterized.
func queryText(q store.Query) (string, *azcosmos.QueryOptions) {
	if q.ID == "" {
		return "SELECT * FROM c", nil
	}
	return "SELECT * FROM c WHERE c.id = @id", &azcosmos.QueryOptions{
		QueryParameters: []azcosmos.QueryParameter{{Name: "@id", Value: q.ID}},
	}
}

// translate maps Cosmos HTTP status codes onto the store sentinels, keeping
// the SDK error in the chain.
func translate(err error, op, id string) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch statusCode(err) {
	case http.StatusConflict:
		sentinel = store.ErrConflict
	case http.StatusNotFound:
		if subStatus(err) == subStatusOwnerMissing {
			sentinel = store.ErrCollectionGone
		} else {
			sentinel = store.ErrNotFound
		}
	default:
		return fmt.Errorf("cosmos: %s %q: %w", op, id, err)
	}
	return fmt.Errorf("cosmos: %s %q: %w: %w", op, id, sentinel, err)
}

func statusCode(err error) int {
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

func subStatus(err error) string {
	var re *azcore.ResponseError
	if errors.As(err, &re) && re.RawResponse != nil {
		return re.RawResponse.Header.Get("x-ms-substatus")
	}
	return ""
}
