package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	"worldbuilder/domain/events"
	pkgerrors "worldbuilder/pkg/errors"
	"worldbuilder/pkg/observability"
)

// RelationshipService manages relationships and answers the per-entity
// relationship listing.
type RelationshipService struct {
	guard         *OwnershipGuard
	relationships ports.RelationshipRepository
	events        eventSink
	logger        *zap.Logger
	tracer        *observability.Tracer
	opts          options
}

func NewRelationshipService(
	guard *OwnershipGuard,
	relationships ports.RelationshipRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *RelationshipService {
	o := newOptions(opts)
	return &RelationshipService{
		guard:         guard,
		relationships: relationships,
		events:        eventSink{publisher: publisher, logger: logger, metrics: o.metrics},
		logger:        logger,
		tracer:        observability.NewTracer("relationship"),
		opts:          o,
	}
}

// RelationshipInput holds the mutable fields of a relationship.
type RelationshipInput struct {
	Label      string
	ValidFrom  *time.Time
	ValidTo    *time.Time
	Attributes map[string]string
}

// Create links source to target. Both must be active entities of the same
// World owned by userID.
func (s *RelationshipService) Create(
	ctx context.Context,
	userID string,
	id valueobjects.RelationshipID,
	sourceID, targetID valueobjects.EntityID,
	in RelationshipInput,
) (*entities.Relationship, error) {
	if sourceID == targetID {
		return nil, pkgerrors.NewValidationError("relationship cannot connect an entity to itself")
	}

	var rel *entities.Relationship
	err := s.tracer.Trace(ctx, "create", func(ctx context.Context) error {
		source, _, err := s.guard.AuthorizeEntity(ctx, userID, sourceID)
		if err != nil {
			return err
		}
		target, _, err := s.guard.AuthorizeEntity(ctx, userID, targetID)
		if err != nil {
			return err
		}

		rel, err = entities.NewRelationship(id, source, target, in.Label, in.ValidFrom, in.ValidTo, in.Attributes, s.opts.now())
		if err != nil {
			return err
		}
		if err := s.relationships.Create(ctx, rel); err != nil {
			return createRelationshipError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Relationship created",
		zap.String("relationship_id", rel.ID.String()),
		zap.String("world_id", rel.WorldID.String()),
	)
	s.events.publish(ctx, events.NewRelationshipCreated(rel.ID, rel.WorldID, rel.SourceID, rel.TargetID, userID, rel.Label, rel.CreatedAt))
	return rel, nil
}

// Get returns one relationship.
func (s *RelationshipService) Get(ctx context.Context, userID string, id valueobjects.RelationshipID) (*entities.Relationship, error) {
	rel, _, err := s.guard.AuthorizeRelationship(ctx, userID, id)
	return rel, err
}

// Update changes label, validity and attributes. Endpoints are immutable.
func (s *RelationshipService) Update(ctx context.Context, userID string, id valueobjects.RelationshipID, expectedVersion int, in RelationshipInput) (*entities.Relationship, error) {
	rel, _, err := s.guard.AuthorizeRelationship(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion("relationship", rel.Version, expectedVersion); err != nil {
		return nil, err
	}
	if err := rel.Update(in.Label, in.ValidFrom, in.ValidTo, in.Attributes, s.opts.now()); err != nil {
		return nil, err
	}
	if err := s.relationships.Update(ctx, rel, expectedVersion); err != nil {
		return nil, storeError(err, "relationship", "update relationship")
	}

	s.events.publish(ctx, events.NewRelationshipUpdated(rel.ID, rel.WorldID, rel.SourceID, rel.TargetID, userID, rel.Label, rel.Version, rel.UpdatedAt))
	return rel, nil
}

// Delete removes the relationship and both adjacency entries.
func (s *RelationshipService) Delete(ctx context.Context, userID string, id valueobjects.RelationshipID) error {
	rel, _, err := s.guard.AuthorizeRelationship(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.relationships.DeleteBatch(ctx, userID, []*entities.Relationship{rel}); err != nil {
		return storeError(err, "relationship", "delete relationship")
	}

	s.events.publish(ctx, events.NewRelationshipDeleted(rel.ID, rel.WorldID, rel.SourceID, rel.TargetID, userID, s.opts.now()))
	return nil
}

// ListByEntity returns the relationships where entityID is source or target,
// ordered by (createdAt, id), optionally only those valid at opts.At. Unknown, deleting and foreign entities are
// NotFound; an entity without relationships yields an empty page.
func (s *RelationshipService) ListByEntity(ctx context.Context, userID string, entityID valueobjects.EntityID, opts ListOptions) (*RelationshipPage, error) {
	dir, err := ParseDirection(string(opts.Direction))
	if err != nil {
		return nil, err
	}
	opts.Direction = dir
	if _, err := normalizeLimit(opts.Limit); err != nil {
		return nil, err
	}

	var page *RelationshipPage
	err = s.tracer.Trace(ctx, "list_by_entity", func(ctx context.Context) error {
		if _, _, err := s.guard.AuthorizeEntity(ctx, userID, entityID); err != nil {
			return err
		}
		rels, err := collectRelationships(ctx, s.relationships, entityID, opts.Direction)
		if err != nil {
			return err
		}
		if opts.At != nil {
			at := *opts.At
			rels = slices.DeleteFunc(rels, func(r *entities.Relationship) bool { return !r.ActiveAt(at) })
		}
		page, err = paginate(rels, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// collectRelationships reads the requested directional views concurrently,
// drops duplicates by id and orders the result.
func collectRelationships(ctx context.Context, repo ports.RelationshipRepository, entityID valueobjects.EntityID, dir Direction) ([]*entities.Relationship, error) {
	var outgoing, incoming []*entities.Relationship

	g, gctx := errgroup.WithContext(ctx)
	if dir != DirectionIncoming {
		g.Go(func() error {
			rels, err := repo.ListBySource(gctx, entityID)
			if err != nil {
				return storeError(err, "entity", "list outgoing relationships")
			}
			outgoing = rels
			return nil
		})
	}
	if dir != DirectionOutgoing {
		g.Go(func() error {
			rels, err := repo.ListByTarget(gctx, entityID)
			if err != nil {
				return storeError(err, "entity", "list incoming relationships")
			}
			incoming = rels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[valueobjects.RelationshipID]struct{}, len(outgoing)+len(incoming))
	merged := make([]*entities.Relationship, 0, len(outgoing)+len(incoming))
	for _, rel := range slices.Concat(outgoing, incoming) {
		if _, dup := seen[rel.ID]; dup {
			continue
		}
		seen[rel.ID] = struct{}{}
		merged = append(merged, rel)
	}
	slices.SortFunc(merged, entities.CompareRelationships)
	return merged, nil
}

// createRelationshipError reports a failed endpoint precondition as a
// conflict: one of the entities started deleting after it was authorized.
func createRelationshipError(err error) error {
	if errors.Is(err, ports.ErrConflict) {
		return pkgerrors.NewConflictError("entity is being deleted").WithCause(err)
	}
	return storeError(err, "relationship", "create relationship")
}
