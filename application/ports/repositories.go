package ports

import (
	"context"
	"errors"

	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	"worldbuilder/domain/events"
)

// Storage sentinels. Adapters wrap them; the access layer maps them to
// application errors with errors.Is.
var (
	// ErrNotFound: no item under the given key.
	ErrNotFound = errors.New("item not found")
	// ErrAlreadyExists: an item with the same key is already stored.
	ErrAlreadyExists = errors.New("item already exists")
	// ErrGuardFailed: the owning World no longer exists under the caller or
	// is being deleted.
	ErrGuardFailed = errors.New("ownership check failed")
	// ErrConflict: a version or status precondition did not hold.
	ErrConflict = errors.New("precondition failed")
	// ErrUnavailable: the store is temporarily refusing calls.
	ErrUnavailable = errors.New("store unavailable")
)

// WorldRepository stores Worlds under their owner. Lookups are always
// owner-scoped, so a World of another user is indistinguishable from a
// missing one.
type WorldRepository interface {
	Create(ctx context.Context, world *entities.World) error
	GetByID(ctx context.Context, ownerID string, id valueobjects.WorldID) (*entities.World, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*entities.World, error)
	// Update stores world if it is active and the stored version equals
	// expectedVersion.
	Update(ctx context.Context, world *entities.World, expectedVersion int) error
	// MarkDeleting flips the World to the deleting status. From then on no
	// entity, relationship or story write referencing it can commit.
	MarkDeleting(ctx context.Context, ownerID string, id valueobjects.WorldID) error
	// Delete removes a World already marked deleting. A missing World is not
	// an error; an active one is ErrConflict.
	Delete(ctx context.Context, ownerID string, id valueobjects.WorldID) error
}

// EntityRepository stores Entities. Creates and updates re-check that the
// owning World is active in the same transaction; the delete path only
// requires it to exist.
type EntityRepository interface {
	Create(ctx context.Context, entity *entities.Entity) error
	// GetByID returns the entity in any status.
	GetByID(ctx context.Context, id valueobjects.EntityID) (*entities.Entity, error)
	// ListByWorld returns the entities of a world, optionally of one kind.
	ListByWorld(ctx context.Context, worldID valueobjects.WorldID, kind entities.EntityKind) ([]*entities.Entity, error)
	// ListIDsByWorld returns the ids of every stored entity of a World in any
	// status. Unlike ListByWorld it is strongly consistent.
	ListIDsByWorld(ctx context.Context, worldID valueobjects.WorldID) ([]valueobjects.EntityID, error)
	// Update stores entity if it is active and at expectedVersion.
	Update(ctx context.Context, entity *entities.Entity, expectedVersion int) error
	// MarkDeleting flips the entity to the deleting status.
	MarkDeleting(ctx context.Context, entity *entities.Entity) error
	// Delete removes an entity that is already marked deleting.
	Delete(ctx context.Context, entity *entities.Entity) error
}

// RelationshipRepository stores Relationships with a canonical item plus one
// adjacency copy under each endpoint. Directional lists are strongly
// consistent.
type RelationshipRepository interface {
	// Create stores the relationship only if both endpoints are active
	// entities of the relationship's World.
	Create(ctx context.Context, rel *entities.Relationship) error
	GetByID(ctx context.Context, id valueobjects.RelationshipID) (*entities.Relationship, error)
	ListBySource(ctx context.Context, entityID valueobjects.EntityID) ([]*entities.Relationship, error)
	ListByTarget(ctx context.Context, entityID valueobjects.EntityID) ([]*entities.Relationship, error)
	// Update stores rel if the stored version equals expectedVersion.
	Update(ctx context.Context, rel *entities.Relationship, expectedVersion int) error
	// DeleteBatch removes every item of rels. Already-missing items are not
	// an error.
	DeleteBatch(ctx context.Context, ownerID string, rels []*entities.Relationship) error
}

// StoryRepository stores Stories under their owner.
type StoryRepository interface {
	// Create stores story. A story linked to a World is written only while
	// that World exists under the owner.
	Create(ctx context.Context, story *entities.Story) error
	GetByID(ctx context.Context, ownerID string, id valueobjects.StoryID) (*entities.Story, error)
	// ListByOwner returns the owner's stories ordered by creation.
	ListByOwner(ctx context.Context, ownerID string) ([]*entities.Story, error)
	Update(ctx context.Context, story *entities.Story, expectedVersion int) error
	Delete(ctx context.Context, ownerID string, id valueobjects.StoryID) error
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event events.DomainEvent) error
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
