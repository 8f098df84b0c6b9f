package services

import (
	"context"

	"go.uber.org/zap"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	"worldbuilder/domain/events"
	pkgerrors "worldbuilder/pkg/errors"
	"worldbuilder/pkg/observability"
)

// EntityService manages characters, things and events, including the
// cascade that removes an entity's relationships when it is deleted.
type EntityService struct {
	guard         *OwnershipGuard
	entities      ports.EntityRepository
	relationships ports.RelationshipRepository
	events        eventSink
	logger        *zap.Logger
	tracer        *observability.Tracer
	opts          options
}

func NewEntityService(
	guard *OwnershipGuard,
	entityRepo ports.EntityRepository,
	relationships ports.RelationshipRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *EntityService {
	o := newOptions(opts)
	return &EntityService{
		guard:         guard,
		entities:      entityRepo,
		relationships: relationships,
		events:        eventSink{publisher: publisher, logger: logger, metrics: o.metrics},
		logger:        logger,
		tracer:        observability.NewTracer("entity"),
		opts:          o,
	}
}

// Create adds an entity to one of the caller's Worlds.
func (s *EntityService) Create(
	ctx context.Context,
	userID string,
	id valueobjects.EntityID,
	worldID valueobjects.WorldID,
	kind entities.EntityKind,
	name string,
	attrs map[string]string,
) (*entities.Entity, error) {
	world, err := s.guard.AuthorizeWorld(ctx, userID, worldID)
	if err != nil {
		return nil, err
	}
	entity, err := entities.NewEntity(id, world, kind, name, attrs, s.opts.now())
	if err != nil {
		return nil, err
	}
	if err := s.entities.Create(ctx, entity); err != nil {
		return nil, storeError(err, "entity", "create entity")
	}

	s.events.publish(ctx, events.NewEntityCreated(entity.ID, entity.WorldID, userID, string(entity.Kind), entity.CreatedAt))
	return entity, nil
}

// Get returns an active entity.
func (s *EntityService) Get(ctx context.Context, userID string, id valueobjects.EntityID) (*entities.Entity, error) {
	entity, _, err := s.guard.AuthorizeEntity(ctx, userID, id)
	return entity, err
}

// ListByWorld returns the active entities of a World, optionally of one kind.
func (s *EntityService) ListByWorld(ctx context.Context, userID string, worldID valueobjects.WorldID, kind entities.EntityKind) ([]*entities.Entity, error) {
	if kind != "" && !kind.IsValid() {
		return nil, pkgerrors.NewValidationError("kind must be one of: character, thing, event")
	}
	if _, err := s.guard.AuthorizeWorld(ctx, userID, worldID); err != nil {
		return nil, err
	}
	all, err := s.entities.ListByWorld(ctx, worldID, kind)
	if err != nil {
		return nil, storeError(err, "world", "list entities")
	}

	active := make([]*entities.Entity, 0, len(all))
	for _, e := range all {
		if e.IsActive() {
			active = append(active, e)
		}
	}
	return active, nil
}

// Update replaces name and attributes when expectedVersion is current.
func (s *EntityService) Update(
	ctx context.Context,
	userID string,
	id valueobjects.EntityID,
	expectedVersion int,
	name string,
	attrs map[string]string,
) (*entities.Entity, error) {
	entity, _, err := s.guard.AuthorizeEntity(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion("entity", entity.Version, expectedVersion); err != nil {
		return nil, err
	}
	if err := entity.Update(name, attrs, s.opts.now()); err != nil {
		return nil, err
	}
	if err := s.entities.Update(ctx, entity, expectedVersion); err != nil {
		return nil, storeError(err, "entity", "update entity")
	}

	s.events.publish(ctx, events.NewEntityUpdated(entity.ID, entity.WorldID, userID, string(entity.Kind), entity.Version, entity.UpdatedAt))
	return entity, nil
}

// Delete removes an entity and every relationship it takes part in. It
// returns the number of relationships removed. Calling it again on an
// entity whose delete was interrupted finishes the job.
func (s *EntityService) Delete(ctx context.Context, userID string, id valueobjects.EntityID) (int, error) {
	var removed int
	err := s.tracer.Trace(ctx, "delete", func(ctx context.Context) error {
		entity, _, err := s.guard.AuthorizeEntityForDelete(ctx, userID, id)
		if err != nil {
			return err
		}
		removed, err = s.cascade(ctx, userID, entity)
		return err
	})
	return removed, err
}

// cascade runs the delete protocol: tombstone the entity so no new
// relationship can reference it, drain its relationships until a re-list
// comes back empty, then remove the entity item itself.
func (s *EntityService) cascade(ctx context.Context, userID string, entity *entities.Entity) (int, error) {
	logger := s.logger.With(
		zap.String("entity_id", entity.ID.String()),
		zap.String("world_id", entity.WorldID.String()),
	)

	if entity.IsActive() {
		if err := s.entities.MarkDeleting(ctx, entity); err != nil {
			return 0, storeError(err, "entity", "mark entity deleting")
		}
		entity.Status = entities.EntityStatusDeleting
	} else {
		logger.Info("Resuming interrupted entity delete")
	}

	removed := 0
	drained := false
	for sweep := 0; sweep < s.opts.cascadeSweeps; sweep++ {
		rels, err := collectRelationships(ctx, s.relationships, entity.ID, DirectionBoth)
		if err != nil {
			return removed, err
		}
		if len(rels) == 0 {
			drained = true
			break
		}
		if err := s.relationships.DeleteBatch(ctx, userID, rels); err != nil {
			return removed, storeError(err, "entity", "delete relationships")
		}
		removed += len(rels)
		logger.Debug("Cascade sweep", zap.Int("sweep", sweep), zap.Int("relationships", len(rels)))
	}
	if !drained {
		logger.Error("Cascade did not converge", zap.Int("sweeps", s.opts.cascadeSweeps))
		return removed, pkgerrors.NewInternalError("entity delete did not complete; retry the request")
	}

	if err := s.entities.Delete(ctx, entity); err != nil {
		return removed, storeError(err, "entity", "delete entity")
	}

	s.opts.metrics.RecordCascade(removed)
	logger.Info("Entity deleted", zap.Int("relationships_deleted", removed))
	s.events.publish(ctx, events.NewEntityDeleted(entity.ID, entity.WorldID, userID, removed, s.opts.now()))
	return removed, nil
}
