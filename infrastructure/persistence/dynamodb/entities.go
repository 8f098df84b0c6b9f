package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
)

// EntityRepository implements ports.EntityRepository. Every write carries a
// ConditionCheck on the owning World item. Each entity also has a member
// item in its World's MEMBERS# partition, written and removed with it.
type EntityRepository struct{ s *Store }

var _ ports.EntityRepository = (*EntityRepository)(nil)

func (r *EntityRepository) Create(ctx context.Context, entity *entities.Entity) error {
	check, err := r.s.worldCheck(entity.OwnerID, entity.WorldID)
	if err != nil {
		return err
	}
	notExists := expression.AttributeNotExists(expression.Name(PartitionKey))
	put, err := r.s.put(newEntityItem(entity), &notExists, ports.ErrAlreadyExists)
	if err != nil {
		return err
	}
	member, err := r.s.put(newMemberItem(entity), nil, nil)
	if err != nil {
		return err
	}

	if err := r.s.transact(ctx, "create entity "+entity.ID.String(), check, put, member); err != nil {
		return err
	}
	r.s.logger.Debug("Entity saved",
		zap.String("entityID", entity.ID.String()),
		zap.String("worldID", entity.WorldID.String()),
	)
	return nil
}

func (r *EntityRepository) GetByID(ctx context.Context, id valueobjects.EntityID) (*entities.Entity, error) {
	out, err := r.s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.s.tableName),
		Key:            entityKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("entity %s: %w", id, ports.ErrNotFound)
	}
	item, err := unmarshal[entityItem](out.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return item.toDomain(), nil
}

// ListByWorld reads GSI1. The index is eventually consistent, so a just
// created entity may be missing for a moment.
func (r *EntityRepository) ListByWorld(ctx context.Context, worldID valueobjects.WorldID, kind entities.EntityKind) ([]*entities.Entity, error) {
	prefix := "ENTITY#"
	if kind != "" {
		prefix += string(kind) + "#"
	}
	input, err := keyQuery(r.s.tableName, r.s.gsi1, worldGSI1PK(worldID), GSI1SK, prefix)
	if err != nil {
		return nil, err
	}
	items, err := queryAll[entityItem](ctx, r.s, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	out := make([]*entities.Entity, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain())
	}
	return out, nil
}

// ListIDsByWorld reads the World's member partition on the base table.
func (r *EntityRepository) ListIDsByWorld(ctx context.Context, worldID valueobjects.WorldID) ([]valueobjects.EntityID, error) {
	input, err := keyQuery(r.s.tableName, "", worldMembersPK(worldID), SortKey, "ENTITY#")
	if err != nil {
		return nil, err
	}
	items, err := queryAll[memberItem](ctx, r.s, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list world members: %w", err)
	}
	ids := make([]valueobjects.EntityID, 0, len(items))
	for _, it := range items {
		ids = append(ids, valueobjects.EntityID(it.EntityID))
	}
	return ids, nil
}

func (r *EntityRepository) Update(ctx context.Context, entity *entities.Entity, expectedVersion int) error {
	check, err := r.s.worldCheck(entity.OwnerID, entity.WorldID)
	if err != nil {
		return err
	}
	cond := versionCondition(expectedVersion).
		And(expression.Name(attrStatus).Equal(expression.Value(string(entities.EntityStatusActive))))
	put, err := r.s.put(newEntityItem(entity), &cond, ports.ErrConflict)
	if err != nil {
		return err
	}
	return r.s.transact(ctx, "update entity "+entity.ID.String(), check, put)
}

// MarkDeleting flips the stored status to deleting. Only the status
// attribute is written so concurrent field updates are not overwritten.
func (r *EntityRepository) MarkDeleting(ctx context.Context, entity *entities.Entity) error {
	check, err := r.s.worldExistsCheck(entity.OwnerID, entity.WorldID)
	if err != nil {
		return err
	}
	upd, err := r.s.update(
		entityKey(entity.ID),
		expression.Set(expression.Name(attrStatus), expression.Value(string(entities.EntityStatusDeleting))),
		expression.AttributeExists(expression.Name(PartitionKey)),
		ports.ErrNotFound,
	)
	if err != nil {
		return err
	}
	if err := r.s.transact(ctx, "mark entity deleting "+entity.ID.String(), check, upd); err != nil {
		return err
	}
	r.s.logger.Debug("Entity marked deleting", zap.String("entityID", entity.ID.String()))
	return nil
}

func (r *EntityRepository) Delete(ctx context.Context, entity *entities.Entity) error {
	check, err := r.s.worldExistsCheck(entity.OwnerID, entity.WorldID)
	if err != nil {
		return err
	}
	cond := expression.Name(attrStatus).Equal(expression.Value(string(entities.EntityStatusDeleting)))
	del, err := r.s.del(entityKey(entity.ID), &cond, ports.ErrConflict)
	if err != nil {
		return err
	}
	member, err := r.s.del(memberKey(entity.WorldID, entity.ID), nil, nil)
	if err != nil {
		return err
	}
	if err := r.s.transact(ctx, "delete entity "+entity.ID.String(), check, del, member); err != nil {
		return err
	}
	r.s.logger.Debug("Entity deleted", zap.String("entityID", entity.ID.String()))
	return nil
}
