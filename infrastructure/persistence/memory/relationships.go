package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
)

// RelationshipRepository implements ports.RelationshipRepository.
type RelationshipRepository struct{ s *Store }

func (r *RelationshipRepository) Create(ctx context.Context, rel *entities.Relationship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.worldActiveLocked(rel.OwnerID, rel.WorldID) {
		return fmt.Errorf("relationship %s: %w", rel.ID, ports.ErrGuardFailed)
	}
	for _, id := range []valueobjects.EntityID{rel.SourceID, rel.TargetID} {
		e, ok := r.s.entities[id]
		if !ok || !e.IsActive() || e.WorldID != rel.WorldID {
			return fmt.Errorf("relationship %s endpoint %s: %w", rel.ID, id, ports.ErrConflict)
		}
	}
	if _, exists := r.s.relationships[rel.ID]; exists {
		return fmt.Errorf("relationship %s: %w", rel.ID, ports.ErrAlreadyExists)
	}

	r.s.relationships[rel.ID] = rel.Clone()
	link(r.s.outgoing, rel.SourceID, rel.ID)
	link(r.s.incoming, rel.TargetID, rel.ID)
	return nil
}

func (r *RelationshipRepository) GetByID(ctx context.Context, id valueobjects.RelationshipID) (*entities.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rel, ok := r.s.relationships[id]
	if !ok {
		return nil, fmt.Errorf("relationship %s: %w", id, ports.ErrNotFound)
	}
	return rel.Clone(), nil
}

func (r *RelationshipRepository) ListBySource(ctx context.Context, entityID valueobjects.EntityID) ([]*entities.Relationship, error) {
	return r.list(ctx, r.s.outgoing, entityID)
}

func (r *RelationshipRepository) ListByTarget(ctx context.Context, entityID valueobjects.EntityID) ([]*entities.Relationship, error) {
	return r.list(ctx, r.s.incoming, entityID)
}

func (r *RelationshipRepository) list(ctx context.Context, index map[valueobjects.EntityID]relSet, entityID valueobjects.EntityID) ([]*entities.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*entities.Relationship, 0, len(index[entityID]))
	for id := range index[entityID] {
		if rel, ok := r.s.relationships[id]; ok {
			out = append(out, rel.Clone())
		}
	}
	// Same order as the OUT#/IN#<uuidv7> sort keys.
	slices.SortFunc(out, func(a, b *entities.Relationship) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out, nil
}

func (r *RelationshipRepository) Update(ctx context.Context, rel *entities.Relationship, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.worldActiveLocked(rel.OwnerID, rel.WorldID) {
		return fmt.Errorf("relationship %s: %w", rel.ID, ports.ErrGuardFailed)
	}
	current, ok := r.s.relationships[rel.ID]
	if !ok || current.Version != expectedVersion {
		return fmt.Errorf("relationship %s: %w", rel.ID, ports.ErrConflict)
	}
	r.s.relationships[rel.ID] = rel.Clone()
	return nil
}

func (r *RelationshipRepository) DeleteBatch(ctx context.Context, ownerID string, rels []*entities.Relationship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rel := range rels {
		if !r.s.worldOwnedLocked(ownerID, rel.WorldID) {
			return fmt.Errorf("relationship %s: %w", rel.ID, ports.ErrGuardFailed)
		}
	}
	for _, rel := range rels {
		delete(r.s.relationships, rel.ID)
		unlink(r.s.outgoing, rel.SourceID, rel.ID)
		unlink(r.s.incoming, rel.TargetID, rel.ID)
	}
	return nil
}

func link(index map[valueobjects.EntityID]relSet, entityID valueobjects.EntityID, relID valueobjects.RelationshipID) {
	set, ok := index[entityID]
	if !ok {
		set = relSet{}
		index[entityID] = set
	}
	set[relID] = struct{}{}
}

func unlink(index map[valueobjects.EntityID]relSet, entityID valueobjects.EntityID, relID valueobjects.RelationshipID) {
	set, ok := index[entityID]
	if !ok {
		return
	}
	delete(set, relID)
	if len(set) == 0 {
		delete(index, entityID)
	}
}
