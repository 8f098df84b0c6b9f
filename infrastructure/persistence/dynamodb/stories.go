package dynamodb

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
)

// StoryRepository implements ports.StoryRepository. Stories share the
// owner's partition with Worlds.
type StoryRepository struct{ s *Store }

var _ ports.StoryRepository = (*StoryRepository)(nil)

func (r *StoryRepository) Create(ctx context.Context, story *entities.Story) error {
	notExists := expression.AttributeNotExists(expression.Name(PartitionKey))
	return r.write(ctx, "create story "+story.ID.String(), story, notExists, ports.ErrAlreadyExists)
}

func (r *StoryRepository) GetByID(ctx context.Context, ownerID string, id valueobjects.StoryID) (*entities.Story, error) {
	out, err := r.s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.s.tableName),
		Key:            storyKey(ownerID, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("story %s: %w", id, ports.ErrNotFound)
	}
	item, err := unmarshal[storyItem](out.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal story: %w", err)
	}
	return item.toDomain(), nil
}

func (r *StoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entities.Story, error) {
	input, err := keyQuery(r.s.tableName, "", userPK(ownerID), SortKey, "STORY#")
	if err != nil {
		return nil, err
	}
	items, err := queryAll[storyItem](ctx, r.s, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	out := make([]*entities.Story, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain())
	}
	slices.SortFunc(out, entities.CompareStories)
	return out, nil
}

func (r *StoryRepository) Update(ctx context.Context, story *entities.Story, expectedVersion int) error {
	return r.write(ctx, "update story "+story.ID.String(), story, versionCondition(expectedVersion), errVersionConflict)
}

func (r *StoryRepository) Delete(ctx context.Context, ownerID string, id valueobjects.StoryID) error {
	_, err := r.s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.s.tableName),
		Key:       storyKey(ownerID, id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

// write puts story under cond. A story linked to a World is written in a
// transaction with the World ownership check.
func (r *StoryRepository) write(ctx context.Context, op string, story *entities.Story, cond expression.ConditionBuilder, onFail error) error {
	put, err := r.s.put(newStoryItem(story), &cond, onFail)
	if err != nil {
		return err
	}
	items := []txItem{put}
	if story.WorldID != nil {
		check, err := r.s.worldCheck(story.OwnerID, *story.WorldID)
		if err != nil {
			return err
		}
		items = []txItem{check, put}
	}
	return r.s.transact(ctx, op, items...)
}
