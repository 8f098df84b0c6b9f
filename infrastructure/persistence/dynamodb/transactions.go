package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
)

// TransactWriteItems accepts at most this many actions.
const maxTransactItems = 100

const reasonConditionalCheckFailed = "ConditionalCheckFailed"

// txItem is one transaction action together with the sentinel reported
// when its condition fails.
type txItem struct {
	item   types.TransactWriteItem
	onFail error
}

func conditionExpr(cond expression.ConditionBuilder) (expression.Expression, error) {
	return expression.NewBuilder().WithCondition(cond).Build()
}

// worldCheck asserts that the World exists under ownerID and is active.
// Every create and update carries it, so nothing new commits into a World
// once its delete has started.
func (s *Store) worldCheck(ownerID string, worldID valueobjects.WorldID) (txItem, error) {
	return s.conditionCheck(worldKey(ownerID, worldID), worldActiveCondition(), ports.ErrGuardFailed)
}

// worldExistsCheck asserts only that the World exists under ownerID. The
// delete path uses it so a World's own cascade can run while it is marked
// deleting.
func (s *Store) worldExistsCheck(ownerID string, worldID valueobjects.WorldID) (txItem, error) {
	return s.conditionCheck(worldKey(ownerID, worldID), expression.AttributeExists(expression.Name(PartitionKey)), ports.ErrGuardFailed)
}

// worldActiveCondition also accepts World items written before the status
// attribute existed.
func worldActiveCondition() expression.ConditionBuilder {
	return expression.AttributeExists(expression.Name(PartitionKey)).And(
		expression.Or(
			expression.AttributeNotExists(expression.Name(attrStatus)),
			expression.Name(attrStatus).Equal(expression.Value(string(entities.WorldStatusActive))),
		),
	)
}

func (s *Store) conditionCheck(k map[string]types.AttributeValue, cond expression.ConditionBuilder, onFail error) (txItem, error) {
	expr, err := conditionExpr(cond)
	if err != nil {
		return txItem{}, fmt.Errorf("failed to build condition: %w", err)
	}
	return txItem{
		item: types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(s.tableName),
			Key:                       k,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}},
		onFail: onFail,
	}, nil
}

// put writes item. cond may be nil for an unconditional put.
func (s *Store) put(item interface{}, cond *expression.ConditionBuilder, onFail error) (txItem, error) {
	av, err := marshal(item)
	if err != nil {
		return txItem{}, fmt.Errorf("failed to marshal item: %w", err)
	}
	p := &types.Put{TableName: aws.String(s.tableName), Item: av}
	if cond != nil {
		expr, err := conditionExpr(*cond)
		if err != nil {
			return txItem{}, fmt.Errorf("failed to build condition: %w", err)
		}
		p.ConditionExpression = expr.Condition()
		p.ExpressionAttributeNames = expr.Names()
		p.ExpressionAttributeValues = expr.Values()
		p.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}
	return txItem{item: types.TransactWriteItem{Put: p}, onFail: onFail}, nil
}

// del removes the item under k. cond may be nil.
func (s *Store) del(k map[string]types.AttributeValue, cond *expression.ConditionBuilder, onFail error) (txItem, error) {
	d := &types.Delete{TableName: aws.String(s.tableName), Key: k}
	if cond != nil {
		expr, err := conditionExpr(*cond)
		if err != nil {
			return txItem{}, fmt.Errorf("failed to build condition: %w", err)
		}
		d.ConditionExpression = expr.Condition()
		d.ExpressionAttributeNames = expr.Names()
		d.ExpressionAttributeValues = expr.Values()
	}
	return txItem{item: types.TransactWriteItem{Delete: d}, onFail: onFail}, nil
}

// update applies upd to the item under k if cond holds.
func (s *Store) update(k map[string]types.AttributeValue, upd expression.UpdateBuilder, cond expression.ConditionBuilder, onFail error) (txItem, error) {
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return txItem{}, fmt.Errorf("failed to build update: %w", err)
	}
	return txItem{
		item: types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(s.tableName),
			Key:                       k,
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}},
		onFail: onFail,
	}, nil
}

// transact runs items in one transaction. A failed condition is reported as
// the onFail sentinel of the first item whose condition did not hold.
func (s *Store) transact(ctx context.Context, op string, items ...txItem) error {
	if len(items) > maxTransactItems {
		return fmt.Errorf("%s: %d actions exceed the transaction limit", op, len(items))
	}
	actions := make([]types.TransactWriteItem, 0, len(items))
	for _, it := range items {
		actions = append(actions, it.item)
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: actions})
	if err == nil {
		return nil
	}
	return mapTransactionError(op, err, items)
}

func mapTransactionError(op string, err error, items []txItem) error {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	for i, reason := range canceled.CancellationReasons {
		code := aws.ToString(reason.Code)
		switch {
		case code == reasonConditionalCheckFailed && i < len(items):
			return fmt.Errorf("%s: %w", op, conditionFailure(items[i].onFail, reason.Item))
		case code == "TransactionConflict":
			return fmt.Errorf("%s: %w", op, ports.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// conditionFailure refines a version conflict: when the store returned no
// old item the target did not exist at all.
func conditionFailure(onFail error, old map[string]types.AttributeValue) error {
	if errors.Is(onFail, errVersionConflict) {
		if len(old) == 0 {
			return ports.ErrNotFound
		}
		return ports.ErrConflict
	}
	return onFail
}

// errVersionConflict marks puts whose failure means NotFound or Conflict
// depending on whether the item existed.
var errVersionConflict = fmt.Errorf("version check: %w", ports.ErrConflict)

func isConditionalCheckFailed(err error) (*types.ConditionalCheckFailedException, bool) {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ccf, true
	}
	return nil, false
}
