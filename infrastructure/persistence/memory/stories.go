package memory

import (
	"context"
	"fmt"
	"slices"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
)

// StoryRepository implements ports.StoryRepository.
type StoryRepository struct{ s *Store }

func (r *StoryRepository) Create(ctx context.Context, story *entities.Story) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if story.WorldID != nil && !r.s.worldActiveLocked(story.OwnerID, *story.WorldID) {
		return fmt.Errorf("story %s: %w", story.ID, ports.ErrGuardFailed)
	}
	if _, exists := r.s.stories[story.ID]; exists {
		return fmt.Errorf("story %s: %w", story.ID, ports.ErrAlreadyExists)
	}
	r.s.stories[story.ID] = story.Clone()
	return nil
}

func (r *StoryRepository) GetByID(ctx context.Context, ownerID string, id valueobjects.StoryID) (*entities.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.stories[id]
	if !ok || st.OwnerID != ownerID {
		return nil, fmt.Errorf("story %s: %w", id, ports.ErrNotFound)
	}
	return st.Clone(), nil
}

func (r *StoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entities.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*entities.Story{}
	for _, st := range r.s.stories {
		if st.OwnerID == ownerID {
			out = append(out, st.Clone())
		}
	}
	slices.SortFunc(out, entities.CompareStories)
	return out, nil
}

func (r *StoryRepository) Update(ctx context.Context, story *entities.Story, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if story.WorldID != nil && !r.s.worldActiveLocked(story.OwnerID, *story.WorldID) {
		return fmt.Errorf("story %s: %w", story.ID, ports.ErrGuardFailed)
	}
	current, ok := r.s.stories[story.ID]
	if !ok || current.OwnerID != story.OwnerID {
		return fmt.Errorf("story %s: %w", story.ID, ports.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("story %s: %w", story.ID, ports.ErrConflict)
	}
	r.s.stories[story.ID] = story.Clone()
	return nil
}

func (r *StoryRepository) Delete(ctx context.Context, ownerID string, id valueobjects.StoryID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if st, ok := r.s.stories[id]; ok && st.OwnerID == ownerID {
		delete(r.s.stories, id)
	}
	return nil
}
