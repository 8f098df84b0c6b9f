// Package dynamodb implements the repository ports on a single DynamoDB
// table. Worlds and stories live in their owner's partition; entities and
// relationships have their own partitions, and every relationship keeps an
// adjacency copy under both endpoints so directional lists are strongly
// consistent base-table queries.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"worldbuilder/application/ports"
)

const (
	PartitionKey = "PK"
	SortKey      = "SK"
	GSI1PK       = "GSI1PK"
	GSI1SK       = "GSI1SK"
)

// API is the subset of the DynamoDB client used by the store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store hands out the repositories of one table.
type Store struct {
	api       API
	tableName string
	gsi1      string
	logger    *zap.Logger
}

var _ ports.HealthChecker = (*Store)(nil)

// New wraps client with the decorators selected by opts. The breaker sits
// inside the metrics decorator so rejected calls are counted too.
func New(client API, tableName string, logger *zap.Logger, opts ...Option) *Store {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	api := client
	if o.breaker != nil {
		api = newBreakerAPI(api, *o.breaker, o.metrics, logger)
	}
	if o.metrics != nil {
		api = newInstrumentedAPI(api, o.metrics)
	}

	return &Store{
		api:       api,
		tableName: tableName,
		gsi1:      o.gsi1IndexName,
		logger:    logger,
	}
}

func (s *Store) Worlds() *WorldRepository               { return &WorldRepository{s: s} }
func (s *Store) Entities() *EntityRepository            { return &EntityRepository{s: s} }
func (s *Store) Relationships() *RelationshipRepository { return &RelationshipRepository{s: s} }
func (s *Store) Stories() *StoryRepository              { return &StoryRepository{s: s} }

// Init validates the table schema: PK/SK composite key and the GSI1 index
// keyed on GSI1PK/GSI1SK. Pass skipSchemaValidation to return immediately.
func (s *Store) Init(ctx context.Context, skipSchemaValidation bool) error {
	if skipSchemaValidation {
		return nil
	}

	out, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return fmt.Errorf("table %s does not exist", s.tableName)
		}
		return fmt.Errorf("failed to describe table %s: %w", s.tableName, err)
	}
	table := out.Table
	if table == nil {
		return fmt.Errorf("table %s has no description", s.tableName)
	}

	if err := verifyKeySchema(table.KeySchema, PartitionKey, SortKey); err != nil {
		return fmt.Errorf("table %s: %w", s.tableName, err)
	}
	if table.TableStatus != types.TableStatusActive {
		return fmt.Errorf("table %s is not active (status: %s)", s.tableName, table.TableStatus)
	}

	for _, gsi := range table.GlobalSecondaryIndexes {
		if aws.ToString(gsi.IndexName) != s.gsi1 {
			continue
		}
		if err := verifyKeySchema(gsi.KeySchema, GSI1PK, GSI1SK); err != nil {
			return fmt.Errorf("index %s: %w", s.gsi1, err)
		}
		return nil
	}
	return fmt.Errorf("table %s is missing global secondary index %s", s.tableName, s.gsi1)
}

func verifyKeySchema(schema []types.KeySchemaElement, hash, rng string) error {
	if len(schema) != 2 {
		return fmt.Errorf("expected composite key %s/%s, got %d key attributes", hash, rng, len(schema))
	}
	for _, el := range schema {
		want := rng
		if el.KeyType == types.KeyTypeHash {
			want = hash
		}
		if aws.ToString(el.AttributeName) != want {
			return fmt.Errorf("%s key is %s, expected %s", el.KeyType, aws.ToString(el.AttributeName), want)
		}
	}
	return nil
}

// Ping checks that the table is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)}); err != nil {
		return fmt.Errorf("dynamodb ping: %w", err)
	}
	return nil
}
