// Package dynamo is the Amazon DynamoDB store.Driver.
//
// DynamoDB has no databases, so a collection maps to the table
// "<database>.<collection>". Tables are keyed by pk (HASH) and id (RANGE),
// billed on demand, and created on first use. The JSON document is kept
// verbatim in the "doc" attribute.
//
// Table schema:
//   - Partition key: pk (string) - the record's partition-key value
//   - Sort key: id (string) - the record id
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tbourn/car-manager/internal/store"
)

const (
	attrPK  = "pk"
	attrID  = "id"
	attrDoc = "doc"

	tableWait = 2 * time.Minute
)

// API is the subset of the DynamoDB client the driver uses.
type API interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Driver maps databases and collections onto DynamoDB tables.
type Driver struct {
	api API
}

var _ store.Driver = (*Driver)(nil)

// New loads the default AWS configuration (environment, shared config,
// instance role). region and endpoint override it when non-empty; endpoint
// is meant for DynamoDB Local.
func New(ctx context.Context, region, endpoint string) (*Driver, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewWithAPI(client), nil
}

// NewWithAPI builds a driver over an existing client.
func NewWithAPI(api API) *Driver {
	return &Driver{api: api}
}

// Name implements store.Driver.
func (d *Driver) Name() string { return "dynamodb" }

// Close implements store.Driver.
func (d *Driver) Close() error { return nil }

// EnsureDatabase implements store.Driver. Databases are only a table-name
// prefix, so nothing is provisioned.
func (d *Driver) EnsureDatabase(_ context.Context, id string) (store.Database, error) {
	return &database{api: d.api, id: id}, nil
}

// TableName returns the table backing a collection.
func TableName(databaseID, collectionID string) string {
	return databaseID + "." + collectionID
}

type database struct {
	api API
	id  string
}

func (b *database) ID() string { return b.id }

func (b *database) EnsureCollection(ctx context.Context, id, _ string) (store.Collection, error) {
	table := TableName(b.id, id)

	_, err := b.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	var nf *types.ResourceNotFoundException
	switch {
	case err == nil:
		return &collection{api: b.api, id: id, table: table}, nil
	case !errors.As(err, &nf):
		return nil, fmt.Errorf("dynamodb: describe %s: %w", table, err)
	}

	_, err = b.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrID), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return nil, fmt.Errorf("dynamodb: create %s: %w", table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(b.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, tableWait); err != nil {
		return nil, fmt.Errorf("dynamodb: wait for %s: %w", table, err)
	}
	return &collection{api: b.api, id: id, table: table}, nil
}

type collection struct {
	api   API
	id    string
	table string
}

func (c *collection) ID() string { return c.id }

func (c *collection) CreateItem(ctx context.Context, pk, id string, doc []byte) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.table),
		Item:                item(pk, id, doc),
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	return c.translate(err, "create", id, store.ErrConflict)
}

func (c *collection) ReplaceItem(ctx context.Context, pk, id string, doc []byte) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.table),
		Item:                item(pk, id, doc),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	return c.translate(err, "replace", id, store.ErrNotFound)
}

func (c *collection) DeleteItem(ctx context.Context, pk, id string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(c.table),
		Key:                 key(pk, id),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	return c.translate(err, "delete", id, store.ErrNotFound)
}

func (c *collection) QueryItems(ctx context.Context, q store.Query) ([][]byte, error) {
	in := &dynamodb.ScanInput{
		TableName:      aws.String(c.table),
		ConsistentRead: aws.Bool(true),
	}
	if q.ID != "" {
		in.FilterExpression = aws.String("#id = :id")
		in.ExpressionAttributeNames = map[string]string{"#id": attrID}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: q.ID},
		}
	}

	out := make([][]byte, 0)
	p := dynamodb.NewScanPaginator(c.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, c.translate(err, "query", q.ID, nil)
		}
		for _, it := range page.Items {
			d, ok := it[attrDoc].(*types.AttributeValueMemberS)
			if !ok {
				return nil, fmt.Errorf("dynamodb: %s: item without %s attribute", c.table, attrDoc)
			}
			out = append(out, []byte(d.Value))
		}
	}
	return out, nil
}

// translate maps a failed condition to onCondition and a missing table to
// store.ErrCollectionGone.
func (c *collection) translate(err error, op, id string, onCondition error) error {
	if err == nil {
		return nil
	}
	var condErr *types.ConditionalCheckFailedException
	if onCondition != nil && errors.As(err, &condErr) {
		return fmt.Errorf("dynamodb: %s %q: %w", op, id, onCondition)
	}
	var nf *types.ResourceNotFoundException
	if errors.As(err, &nf) {
		return fmt.Errorf("dynamodb: %s %q: %w: %w", op, id, store.ErrCollectionGone, err)
	}
	return fmt.Errorf("dynamodb: %s %q: %w", op, id, err)
}

func key(pk, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
		attrID: &types.AttributeValueMemberS{Value: id},
	}
}

func item(pk, id string, doc []byte) map[string]types.AttributeValue {
	m := key(pk, id)
	m[attrDoc] = &types.AttributeValueMemberS{Value: string(doc)}
	return m
}
