// Package memory is an in-process implementation of the repository ports.
// It enforces the same write preconditions as the DynamoDB adapter and is
// used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
)

type relSet map[valueobjects.RelationshipID]struct{}

// Store holds every item behind one lock. Values are cloned on the way in
// and out so callers never share state with the store.
type Store struct {
	mu            sync.RWMutex
	worlds        map[valueobjects.WorldID]*entities.World
	stories       map[valueobjects.StoryID]*entities.Story
	entities      map[valueobjects.EntityID]*entities.Entity
	relationships map[valueobjects.RelationshipID]*entities.Relationship
	outgoing      map[valueobjects.EntityID]relSet
	incoming      map[valueobjects.EntityID]relSet
}

func NewStore() *Store {
	return &Store{
		worlds:        make(map[valueobjects.WorldID]*entities.World),
		stories:       make(map[valueobjects.StoryID]*entities.Story),
		entities:      make(map[valueobjects.EntityID]*entities.Entity),
		relationships: make(map[valueobjects.RelationshipID]*entities.Relationship),
		outgoing:      make(map[valueobjects.EntityID]relSet),
		incoming:      make(map[valueobjects.EntityID]relSet),
	}
}

func (s *Store) Worlds() *WorldRepository               { return &WorldRepository{s: s} }
func (s *Store) Entities() *EntityRepository            { return &EntityRepository{s: s} }
func (s *Store) Relationships() *RelationshipRepository { return &RelationshipRepository{s: s} }
func (s *Store) Stories() *StoryRepository              { return &StoryRepository{s: s} }

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// worldOwnedLocked reports whether the World exists under ownerID in any
// status. The delete path checks only this.
func (s *Store) worldOwnedLocked(ownerID string, id valueobjects.WorldID) bool {
	w, ok := s.worlds[id]
	return ok && w.OwnerID == ownerID
}

// worldActiveLocked is the in-memory counterpart of the World
// ConditionCheck carried by creates and updates.
func (s *Store) worldActiveLocked(ownerID string, id valueobjects.WorldID) bool {
	return s.worldOwnedLocked(ownerID, id) && s.worlds[id].IsActive()
}

// WorldRepository implements ports.WorldRepository.
type WorldRepository struct{ s *Store }

func (r *WorldRepository) Create(ctx context.Context, world *entities.World) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.worlds[world.ID]; exists {
		return fmt.Errorf("world %s: %w", world.ID, ports.ErrAlreadyExists)
	}
	r.s.worlds[world.ID] = world.Clone()
	return nil
}

func (r *WorldRepository) GetByID(ctx context.Context, ownerID string, id valueobjects.WorldID) (*entities.World, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if !r.s.worldOwnedLocked(ownerID, id) {
		return nil, fmt.Errorf("world %s: %w", id, ports.ErrNotFound)
	}
	return r.s.worlds[id].Clone(), nil
}

func (r *WorldRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entities.World, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*entities.World{}
	for _, w := range r.s.worlds {
		if w.OwnerID == ownerID {
			out = append(out, w.Clone())
		}
	}
	// Same order as the WORLD#<uuidv7> sort key.
	slices.SortFunc(out, func(a, b *entities.World) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out, nil
}

func (r *WorldRepository) Update(ctx context.Context, world *entities.World, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.worlds[world.ID]
	if !ok || current.OwnerID != world.OwnerID {
		return fmt.Errorf("world %s: %w", world.ID, ports.ErrNotFound)
	}
	if current.Version != expectedVersion || !current.IsActive() {
		return fmt.Errorf("world %s: %w", world.ID, ports.ErrConflict)
	}
	r.s.worlds[world.ID] = world.Clone()
	return nil
}

func (r *WorldRepository) MarkDeleting(ctx context.Context, ownerID string, id valueobjects.WorldID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.worldOwnedLocked(ownerID, id) {
		return fmt.Errorf("world %s: %w", id, ports.ErrNotFound)
	}
	r.s.worlds[id].Status = entities.WorldStatusDeleting
	return nil
}

func (r *WorldRepository) Delete(ctx context.Context, ownerID string, id valueobjects.WorldID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.worldOwnedLocked(ownerID, id) {
		return nil
	}
	if r.s.worlds[id].IsActive() {
		return fmt.Errorf("world %s is not marked deleting: %w", id, ports.ErrConflict)
	}
	delete(r.s.worlds, id)
	return nil
}

// EntityRepository implements ports.EntityRepository.
type EntityRepository struct{ s *Store }

func (r *EntityRepository) Create(ctx context.Context, entity *entities.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.worldActiveLocked(entity.OwnerID, entity.WorldID) {
		return fmt.Errorf("entity %s: %w", entity.ID, ports.ErrGuardFailed)
	}
	if _, exists := r.s.entities[entity.ID]; exists {
		return fmt.Errorf("entity %s: %w", entity.ID, ports.ErrAlreadyExists)
	}
	r.s.entities[entity.ID] = entity.Clone()
	return nil
}

func (r *EntityRepository) GetByID(ctx context.Context, id valueobjects.EntityID) (*entities.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, ports.ErrNotFound)
	}
	return e.Clone(), nil
}

func (r *EntityRepository) ListByWorld(ctx context.Context, worldID valueobjects.WorldID, kind entities.EntityKind) ([]*entities.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*entities.Entity{}
	for _, e := range r.s.entities {
		if e.WorldID != worldID || (kind != "" && e.Kind != kind) {
			continue
		}
		out = append(out, e.Clone())
	}
	// Same order as the GSI1 sort key ENTITY#<kind>#<id>.
	slices.SortFunc(out, func(a, b *entities.Entity) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out, nil
}

func (r *EntityRepository) ListIDsByWorld(ctx context.Context, worldID valueobjects.WorldID) ([]valueobjects.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := []valueobjects.EntityID{}
	for _, e := range r.s.entities {
		if e.WorldID == worldID {
			ids = append(ids, e.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *EntityRepository) Update(ctx context.Context, entity *entities.Entity, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.worldActiveLocked(entity.OwnerID, entity.WorldID) {
		return fmt.Errorf("entity %s: %w", entity.ID, ports.ErrGuardFailed)
	}
	current, ok := r.s.entities[entity.ID]
	if !ok || !current.IsActive() || current.Version != expectedVersion {
		return fmt.Errorf("entity %s: %w", entity.ID, ports.ErrConflict)
	}
	r.s.entities[entity.ID] = entity.Clone()
	return nil
}

func (r *EntityRepository) MarkDeleting(ctx context.Context, entity *entities.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.worldOwnedLocked(entity.OwnerID, entity.WorldID) {
		return fmt.Errorf("entity %s: %w", entity.ID, ports.ErrGuardFailed)
	}
	current, ok := r.s.entities[entity.ID]
	if !ok {
		return fmt.Errorf("entity %s: %w", entity.ID, ports.ErrNotFound)
	}
	current.Status = entities.EntityStatusDeleting
	return nil
}

func (r *EntityRepository) Delete(ctx context.Context, entity *entities.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.worldOwnedLocked(entity.OwnerID, entity.WorldID) {
		return fmt.Errorf("entity %s: %w", entity.ID, ports.ErrGuardFailed)
	}
	current, ok := r.s.entities[entity.ID]
	if !ok || current.Status != entities.EntityStatusDeleting {
		return fmt.Errorf("entity %s: %w", entity.ID, ports.ErrConflict)
	}
	delete(r.s.entities, entity.ID)
	return nil
}
