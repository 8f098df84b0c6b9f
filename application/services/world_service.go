package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	"worldbuilder/domain/events"
	pkgerrors "worldbuilder/pkg/errors"
	"worldbuilder/pkg/observability"
)

// WorldService manages Worlds. Deleting a World cascades through its
// entities and unlinks the owner's stories.
type WorldService struct {
	guard     *OwnershipGuard
	worlds    ports.WorldRepository
	entitySvc *EntityService
	entities  ports.EntityRepository
	storySvc  *StoryService
	events    eventSink
	logger    *zap.Logger
	tracer    *observability.Tracer
	opts      options
}

func NewWorldService(
	guard *OwnershipGuard,
	worlds ports.WorldRepository,
	entityRepo ports.EntityRepository,
	entitySvc *EntityService,
	storySvc *StoryService,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *WorldService {
	o := newOptions(opts)
	return &WorldService{
		guard:     guard,
		worlds:    worlds,
		entities:  entityRepo,
		entitySvc: entitySvc,
		storySvc:  storySvc,
		events:    eventSink{publisher: publisher, logger: logger, metrics: o.metrics},
		logger:    logger,
		tracer:    observability.NewTracer("world"),
		opts:      o,
	}
}

// WorldInput holds the mutable fields of a World.
type WorldInput struct {
	Name        string
	Description string
	Settings    map[string]string
}

func (s *WorldService) Create(ctx context.Context, userID string, id valueobjects.WorldID, in WorldInput) (*entities.World, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	world, err := entities.NewWorld(id, userID, in.Name, in.Description, in.Settings, s.opts.now())
	if err != nil {
		return nil, err
	}
	if err := s.worlds.Create(ctx, world); err != nil {
		return nil, storeError(err, "world", "create world")
	}

	s.events.publish(ctx, events.NewWorldCreated(world.ID, userID, world.Name, world.CreatedAt))
	return world, nil
}

func (s *WorldService) Get(ctx context.Context, userID string, id valueobjects.WorldID) (*entities.World, error) {
	return s.guard.AuthorizeWorld(ctx, userID, id)
}

// List returns the caller's Worlds. Worlds being deleted are left out.
func (s *WorldService) List(ctx context.Context, userID string) ([]*entities.World, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	worlds, err := s.worlds.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storeError(err, "world", "list worlds")
	}
	active := make([]*entities.World, 0, len(worlds))
	for _, w := range worlds {
		if w.IsActive() {
			active = append(active, w)
		}
	}
	return active, nil
}

func (s *WorldService) Update(ctx context.Context, userID string, id valueobjects.WorldID, expectedVersion int, in WorldInput) (*entities.World, error) {
	world, err := s.guard.AuthorizeWorld(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion("world", world.Version, expectedVersion); err != nil {
		return nil, err
	}
	if err := world.Update(in.Name, in.Description, in.Settings, s.opts.now()); err != nil {
		return nil, err
	}
	if err := s.worlds.Update(ctx, world, expectedVersion); err != nil {
		return nil, storeError(err, "world", "update world")
	}

	s.events.publish(ctx, events.NewWorldUpdated(world.ID, userID, world.Name, world.Version, world.UpdatedAt))
	return world, nil
}

// Delete tombstones the World so nothing new can be written into it, drains
// its entities (and with them every relationship) until a consistent
// re-list comes back empty, unlinks the caller's stories, then removes the
// World item. An interrupted delete can be retried.
func (s *WorldService) Delete(ctx context.Context, userID string, id valueobjects.WorldID) error {
	return s.tracer.Trace(ctx, "delete", func(ctx context.Context) error {
		world, err := s.guard.AuthorizeWorldForDelete(ctx, userID, id)
		if err != nil {
			return err
		}
		logger := s.logger.With(zap.String("world_id", id.String()))

		if world.IsActive() {
			if err := s.worlds.MarkDeleting(ctx, userID, id); err != nil {
				return storeError(err, "world", "mark world deleting")
			}
		} else {
			logger.Info("Resuming interrupted world delete")
		}

		deleted, relationships, err := s.drain(ctx, userID, id, logger)
		if err != nil {
			return err
		}

		detached, err := s.storySvc.detachWorld(ctx, userID, id)
		if err != nil {
			return err
		}

		if err := s.worlds.Delete(ctx, userID, id); err != nil {
			return storeError(err, "world", "delete world")
		}

		logger.Info("World deleted",
			zap.Int("entities_deleted", deleted),
			zap.Int("relationships_deleted", relationships),
			zap.Int("stories_detached", detached),
		)
		s.events.publish(ctx, events.NewWorldDeleted(id, userID, deleted, detached, s.opts.now()))
		return nil
	})
}

// drain cascades every entity listed under the World until a re-list is
// empty. The World is already tombstoned, so the list can only shrink.
func (s *WorldService) drain(ctx context.Context, userID string, id valueobjects.WorldID, logger *zap.Logger) (int, int, error) {
	deleted, relationships := 0, 0
	for sweep := 0; ; sweep++ {
		ids, err := s.entities.ListIDsByWorld(ctx, id)
		if err != nil {
			return deleted, relationships, storeError(err, "world", "list entities")
		}
		if len(ids) == 0 {
			return deleted, relationships, nil
		}
		if sweep == s.opts.cascadeSweeps {
			logger.Error("World cascade did not converge", zap.Int("sweeps", sweep))
			return deleted, relationships, pkgerrors.NewInternalError("world delete did not complete; retry the request")
		}
		for _, entityID := range ids {
			entity, err := s.entities.GetByID(ctx, entityID)
			if errors.Is(err, ports.ErrNotFound) {
				continue
			}
			if err != nil {
				return deleted, relationships, storeError(err, "world", "get entity")
			}
			n, err := s.entitySvc.cascade(ctx, userID, entity)
			if err != nil {
				return deleted, relationships, err
			}
			deleted++
			relationships += n
		}
		logger.Debug("World cascade sweep", zap.Int("sweep", sweep), zap.Int("entities", len(ids)))
	}
}
