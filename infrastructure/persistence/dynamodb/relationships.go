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

// deleteChunkSize keeps a DeleteBatch transaction, three deletes per
// relationship plus one check per World, within the action limit.
const deleteChunkSize = 25

// RelationshipRepository implements ports.RelationshipRepository. A
// relationship is stored three times: the canonical item, an OUT# copy in
// the source entity's partition and an IN# copy in the target's. All three
// are written and removed together.
type RelationshipRepository struct{ s *Store }

var _ ports.RelationshipRepository = (*RelationshipRepository)(nil)

// Create writes the three items only if the World is still owned and both
// endpoints are active entities of the same World.
func (r *RelationshipRepository) Create(ctx context.Context, rel *entities.Relationship) error {
	check, err := r.s.worldCheck(rel.OwnerID, rel.WorldID)
	if err != nil {
		return err
	}
	items := []txItem{check}
	for _, id := range []valueobjects.EntityID{rel.SourceID, rel.TargetID} {
		endpoint, err := r.s.conditionCheck(entityKey(id), endpointCondition(rel.WorldID), ports.ErrConflict)
		if err != nil {
			return err
		}
		items = append(items, endpoint)
	}

	item := newRelationshipItem(rel)
	notExists := expression.AttributeNotExists(expression.Name(PartitionKey))
	canonical, err := r.s.put(item, &notExists, ports.ErrAlreadyExists)
	if err != nil {
		return err
	}
	out, err := r.s.put(item.outgoing(), nil, nil)
	if err != nil {
		return err
	}
	in, err := r.s.put(item.incoming(), nil, nil)
	if err != nil {
		return err
	}
	items = append(items, canonical, out, in)

	if err := r.s.transact(ctx, "create relationship "+rel.ID.String(), items...); err != nil {
		return err
	}
	r.s.logger.Debug("Relationship saved",
		zap.String("relationshipID", rel.ID.String()),
		zap.String("sourceID", rel.SourceID.String()),
		zap.String("targetID", rel.TargetID.String()),
	)
	return nil
}

func endpointCondition(worldID valueobjects.WorldID) expression.ConditionBuilder {
	return expression.Name(attrStatus).Equal(expression.Value(string(entities.EntityStatusActive))).
		And(expression.Name(attrWorldID).Equal(expression.Value(worldID.String())))
}

func (r *RelationshipRepository) GetByID(ctx context.Context, id valueobjects.RelationshipID) (*entities.Relationship, error) {
	out, err := r.s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.s.tableName),
		Key:            relationshipKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("relationship %s: %w", id, ports.ErrNotFound)
	}
	item, err := unmarshal[relationshipItem](out.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal relationship: %w", err)
	}
	return item.toDomain(), nil
}

func (r *RelationshipRepository) ListBySource(ctx context.Context, entityID valueobjects.EntityID) ([]*entities.Relationship, error) {
	return r.list(ctx, entityID, "OUT#")
}

func (r *RelationshipRepository) ListByTarget(ctx context.Context, entityID valueobjects.EntityID) ([]*entities.Relationship, error) {
	return r.list(ctx, entityID, "IN#")
}

func (r *RelationshipRepository) list(ctx context.Context, entityID valueobjects.EntityID, prefix string) ([]*entities.Relationship, error) {
	input, err := keyQuery(r.s.tableName, "", entityPK(entityID), SortKey, prefix)
	if err != nil {
		return nil, err
	}
	items, err := queryAll[relationshipItem](ctx, r.s, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	out := make([]*entities.Relationship, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain())
	}
	return out, nil
}

// Update rewrites all three items. The canonical put carries the version
// check so a concurrently deleted relationship is not resurrected.
func (r *RelationshipRepository) Update(ctx context.Context, rel *entities.Relationship, expectedVersion int) error {
	check, err := r.s.worldCheck(rel.OwnerID, rel.WorldID)
	if err != nil {
		return err
	}
	item := newRelationshipItem(rel)
	cond := versionCondition(expectedVersion)
	canonical, err := r.s.put(item, &cond, ports.ErrConflict)
	if err != nil {
		return err
	}
	out, err := r.s.put(item.outgoing(), nil, nil)
	if err != nil {
		return err
	}
	in, err := r.s.put(item.incoming(), nil, nil)
	if err != nil {
		return err
	}
	return r.s.transact(ctx, "update relationship "+rel.ID.String(), check, canonical, out, in)
}

// DeleteBatch removes rels in transactions of deleteChunkSize relationships.
// Each transaction re-checks that the owning Worlds still exist. Chunks already committed
// stay deleted when a later chunk fails; callers re-list and retry.
func (r *RelationshipRepository) DeleteBatch(ctx context.Context, ownerID string, rels []*entities.Relationship) error {
	unique := make([]*entities.Relationship, 0, len(rels))
	seen := make(map[valueobjects.RelationshipID]struct{}, len(rels))
	for _, rel := range rels {
		if _, dup := seen[rel.ID]; dup {
			continue
		}
		seen[rel.ID] = struct{}{}
		unique = append(unique, rel)
	}

	for start := 0; start < len(unique); start += deleteChunkSize {
		chunk := unique[start:min(start+deleteChunkSize, len(unique))]
		items, err := r.deleteItems(ownerID, chunk)
		if err != nil {
			return err
		}
		if err := r.s.transact(ctx, "delete relationships", items...); err != nil {
			return err
		}
	}
	r.s.logger.Debug("Relationships deleted", zap.Int("count", len(unique)))
	return nil
}

func (r *RelationshipRepository) deleteItems(ownerID string, chunk []*entities.Relationship) ([]txItem, error) {
	var checks, deletes []txItem
	worlds := make(map[valueobjects.WorldID]struct{})
	for _, rel := range chunk {
		if _, ok := worlds[rel.WorldID]; !ok {
			worlds[rel.WorldID] = struct{}{}
			check, err := r.s.worldExistsCheck(ownerID, rel.WorldID)
			if err != nil {
				return nil, err
			}
			checks = append(checks, check)
		}
		for _, k := range []struct{ pk, sk string }{
			{relationshipPK(rel.ID), metadataSK},
			{entityPK(rel.SourceID), outSK(rel.ID)},
			{entityPK(rel.TargetID), inSK(rel.ID)},
		} {
			d, err := r.s.del(key(k.pk, k.sk), nil, nil)
			if err != nil {
				return nil, err
			}
			deletes = append(deletes, d)
		}
	}
	return append(checks, deletes...), nil
}
