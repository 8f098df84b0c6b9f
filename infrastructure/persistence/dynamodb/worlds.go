package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
)

// WorldRepository implements ports.WorldRepository.
type WorldRepository struct{ s *Store }

var _ ports.WorldRepository = (*WorldRepository)(nil)

func (r *WorldRepository) Create(ctx context.Context, world *entities.World) error {
	av, err := marshal(newWorldItem(world))
	if err != nil {
		return fmt.Errorf("failed to marshal world: %w", err)
	}
	expr, err := conditionExpr(expression.AttributeNotExists(expression.Name(PartitionKey)))
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = r.s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if _, ok := isConditionalCheckFailed(err); ok {
		return fmt.Errorf("world %s: %w", world.ID, ports.ErrAlreadyExists)
	}
	if err != nil {
		r.s.logger.Error("Failed to save world", zap.String("worldID", world.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to save world: %w", err)
	}
	r.s.logger.Debug("World saved", zap.String("worldID", world.ID.String()))
	return nil
}

func (r *WorldRepository) GetByID(ctx context.Context, ownerID string, id valueobjects.WorldID) (*entities.World, error) {
	out, err := r.s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.s.tableName),
		Key:            worldKey(ownerID, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get world: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("world %s: %w", id, ports.ErrNotFound)
	}
	item, err := unmarshal[worldItem](out.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal world: %w", err)
	}
	return item.toDomain(), nil
}

func (r *WorldRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entities.World, error) {
	input, err := keyQuery(r.s.tableName, "", userPK(ownerID), SortKey, "WORLD#")
	if err != nil {
		return nil, err
	}
	items, err := queryAll[worldItem](ctx, r.s, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list worlds: %w", err)
	}
	out := make([]*entities.World, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain())
	}
	return out, nil
}

// Update replaces the World if it is active and the stored version matches.
// A missing item is reported as NotFound; a version mismatch or a World
// being deleted as Conflict.
func (r *WorldRepository) Update(ctx context.Context, world *entities.World, expectedVersion int) error {
	av, err := marshal(newWorldItem(world))
	if err != nil {
		return fmt.Errorf("failed to marshal world: %w", err)
	}
	expr, err := conditionExpr(versionCondition(expectedVersion).And(worldActiveCondition()))
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = r.s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           aws.String(r.s.tableName),
		Item:                                av,
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if ccf, ok := isConditionalCheckFailed(err); ok {
		return fmt.Errorf("world %s: %w", world.ID, conditionFailure(errVersionConflict, ccf.Item))
	}
	if err != nil {
		return fmt.Errorf("failed to update world: %w", err)
	}
	return nil
}

// MarkDeleting sets the World's status to deleting and leaves every other
// attribute untouched.
func (r *WorldRepository) MarkDeleting(ctx context.Context, ownerID string, id valueobjects.WorldID) error {
	upd, err := r.s.update(
		worldKey(ownerID, id),
		expression.Set(expression.Name(attrStatus), expression.Value(string(entities.WorldStatusDeleting))),
		expression.AttributeExists(expression.Name(PartitionKey)),
		ports.ErrNotFound,
	)
	if err != nil {
		return err
	}
	if err := r.s.transact(ctx, "mark world deleting "+id.String(), upd); err != nil {
		return err
	}
	r.s.logger.Debug("World marked deleting", zap.String("worldID", id.String()))
	return nil
}

// Delete removes the World only once it is marked deleting.
func (r *WorldRepository) Delete(ctx context.Context, ownerID string, id valueobjects.WorldID) error {
	expr, err := conditionExpr(expression.Name(attrStatus).Equal(expression.Value(string(entities.WorldStatusDeleting))))
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}
	_, err = r.s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                           aws.String(r.s.tableName),
		Key:                                 worldKey(ownerID, id),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if ccf, ok := isConditionalCheckFailed(err); ok {
		if len(ccf.Item) == 0 {
			return nil
		}
		return fmt.Errorf("world %s is not marked deleting: %w", id, ports.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to delete world: %w", err)
	}
	r.s.logger.Debug("World deleted", zap.String("worldID", id.String()))
	return nil
}

func versionCondition(expected int) expression.ConditionBuilder {
	return expression.AttributeExists(expression.Name(PartitionKey)).
		And(expression.Name(attrVersion).Equal(expression.Value(expected)))
}

// keyQuery selects the items of partition pk whose sort key starts with
// prefix. An empty index queries the base table with strong consistency;
// GSI reads are eventually consistent.
func keyQuery(table, index, pk, skName, prefix string) (*dynamodb.QueryInput, error) {
	pkName := PartitionKey
	if index != "" {
		pkName = GSI1PK
	}
	keyCond := expression.Key(pkName).Equal(expression.Value(pk)).
		And(expression.Key(skName).BeginsWith(prefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	} else {
		input.ConsistentRead = aws.Bool(true)
	}
	return input, nil
}

// queryAll reads every page of input.
func queryAll[T any](ctx context.Context, s *Store, input *dynamodb.QueryInput) ([]T, error) {
	var out []T
	paginator := dynamodb.NewQueryPaginator(s.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, av := range page.Items {
			item, err := unmarshal[T](av)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal item: %w", err)
			}
			out = append(out, item)
		}
	}
	return out, nil
}
