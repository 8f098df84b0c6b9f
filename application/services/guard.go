package services

import (
	"context"

	"go.uber.org/zap"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

// OwnershipGuard resolves the World that owns a target and checks it
// belongs to the caller. Absent targets, deleting entities or Worlds and
// targets in someone else's World all fail with the same NotFound.
type OwnershipGuard struct {
	worlds        ports.WorldRepository
	entities      ports.EntityRepository
	relationships ports.RelationshipRepository
	logger        *zap.Logger
}

func NewOwnershipGuard(
	worlds ports.WorldRepository,
	entityRepo ports.EntityRepository,
	relationships ports.RelationshipRepository,
	logger *zap.Logger,
) *OwnershipGuard {
	return &OwnershipGuard{
		worlds:        worlds,
		entities:      entityRepo,
		relationships: relationships,
		logger:        logger,
	}
}

// AuthorizeWorld returns the caller's active World.
func (g *OwnershipGuard) AuthorizeWorld(ctx context.Context, userID string, worldID valueobjects.WorldID) (*entities.World, error) {
	world, err := g.AuthorizeWorldForDelete(ctx, userID, worldID)
	if err != nil {
		return nil, err
	}
	if !world.IsActive() {
		return nil, pkgerrors.NewNotFoundError("world")
	}
	return world, nil
}

// AuthorizeWorldForDelete also accepts a World whose delete was interrupted.
func (g *OwnershipGuard) AuthorizeWorldForDelete(ctx context.Context, userID string, worldID valueobjects.WorldID) (*entities.World, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	world, err := g.worlds.GetByID(ctx, userID, worldID)
	if err != nil {
		return nil, storeError(err, "world", "get world")
	}
	return world, nil
}

// AuthorizeEntity returns an active entity in one of the caller's Worlds.
func (g *OwnershipGuard) AuthorizeEntity(ctx context.Context, userID string, entityID valueobjects.EntityID) (*entities.Entity, *entities.World, error) {
	return g.authorizeEntity(ctx, userID, entityID, false)
}

// AuthorizeEntityForDelete also accepts an entity whose delete was
// interrupted, so a retry can finish the cascade.
func (g *OwnershipGuard) AuthorizeEntityForDelete(ctx context.Context, userID string, entityID valueobjects.EntityID) (*entities.Entity, *entities.World, error) {
	return g.authorizeEntity(ctx, userID, entityID, true)
}

func (g *OwnershipGuard) authorizeEntity(ctx context.Context, userID string, entityID valueobjects.EntityID, allowDeleting bool) (*entities.Entity, *entities.World, error) {
	if err := requireUser(userID); err != nil {
		return nil, nil, err
	}
	entity, err := g.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, nil, storeError(err, "entity", "get entity")
	}
	if !allowDeleting && !entity.IsActive() {
		return nil, nil, pkgerrors.NewNotFoundError("entity")
	}
	if entity.OwnerID != userID {
		g.logger.Debug("Entity access denied",
			zap.String("entity_id", entityID.String()),
			zap.String("user_id", userID),
		)
		return nil, nil, pkgerrors.NewNotFoundError("entity")
	}

	// The copied owner can be stale if the World is gone; the World item is
	// authoritative.
	world, err := g.worlds.GetByID(ctx, userID, entity.WorldID)
	if err != nil {
		return nil, nil, storeError(err, "entity", "get world")
	}
	if !allowDeleting && !world.IsActive() {
		return nil, nil, pkgerrors.NewNotFoundError("entity")
	}
	return entity, world, nil
}

// AuthorizeRelationship returns a relationship in one of the caller's Worlds.
func (g *OwnershipGuard) AuthorizeRelationship(ctx context.Context, userID string, relID valueobjects.RelationshipID) (*entities.Relationship, *entities.World, error) {
	if err := requireUser(userID); err != nil {
		return nil, nil, err
	}
	rel, err := g.relationships.GetByID(ctx, relID)
	if err != nil {
		return nil, nil, storeError(err, "relationship", "get relationship")
	}
	if rel.OwnerID != userID {
		return nil, nil, pkgerrors.NewNotFoundError("relationship")
	}
	world, err := g.worlds.GetByID(ctx, userID, rel.WorldID)
	if err != nil {
		return nil, nil, storeError(err, "relationship", "get world")
	}
	if !world.IsActive() {
		return nil, nil, pkgerrors.NewNotFoundError("relationship")
	}
	return rel, world, nil
}
