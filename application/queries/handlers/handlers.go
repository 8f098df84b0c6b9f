package handlers

import (
	"context"
	"fmt"

	"worldbuilder/application/queries"
	"worldbuilder/application/queries/bus"
	"worldbuilder/application/services"
)

// WorldQueryHandler answers World queries.
type WorldQueryHandler struct {
	worlds *services.WorldService
}

func NewWorldQueryHandler(worlds *services.WorldService) *WorldQueryHandler {
	return &WorldQueryHandler{worlds: worlds}
}

func (h *WorldQueryHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	switch q := query.(type) {
	case queries.GetWorldQuery:
		return h.worlds.Get(ctx, q.UserID, q.WorldID)
	case queries.ListWorldsQuery:
		return h.worlds.List(ctx, q.UserID)
	default:
		return nil, unsupported(query)
	}
}

// EntityQueryHandler answers entity and relationship queries.
type EntityQueryHandler struct {
	entities      *services.EntityService
	relationships *services.RelationshipService
}

func NewEntityQueryHandler(entities *services.EntityService, relationships *services.RelationshipService) *EntityQueryHandler {
	return &EntityQueryHandler{entities: entities, relationships: relationships}
}

func (h *EntityQueryHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	switch q := query.(type) {
	case queries.GetEntityQuery:
		return h.entities.Get(ctx, q.UserID, q.EntityID)
	case queries.ListEntitiesQuery:
		return h.entities.ListByWorld(ctx, q.UserID, q.WorldID, q.Kind)
	case queries.GetRelationshipQuery:
		return h.relationships.Get(ctx, q.UserID, q.RelationshipID)
	case queries.ListEntityRelationshipsQuery:
		return h.relationships.ListByEntity(ctx, q.UserID, q.EntityID, services.ListOptions{
			Direction: services.Direction(q.Direction),
			Limit:     q.Limit,
			Cursor:    q.Cursor,
			At:        q.At,
		})
	default:
		return nil, unsupported(query)
	}
}

// StoryQueryHandler answers story queries.
type StoryQueryHandler struct {
	stories *services.StoryService
}

func NewStoryQueryHandler(stories *services.StoryService) *StoryQueryHandler {
	return &StoryQueryHandler{stories: stories}
}

func (h *StoryQueryHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	switch q := query.(type) {
	case queries.GetStoryQuery:
		return h.stories.Get(ctx, q.UserID, q.StoryID)
	case queries.ListUserStoriesQuery:
		return h.stories.ListByUser(ctx, q.UserID)
	default:
		return nil, unsupported(query)
	}
}

func unsupported(query bus.Query) error {
	return fmt.Errorf("unsupported query %T", query)
}

// Register binds every query to its handler.
func Register(b *bus.QueryBus, worlds *WorldQueryHandler, entities *EntityQueryHandler, stories *StoryQueryHandler) error {
	registrations := []struct {
		query   bus.Query
		handler bus.QueryHandler
	}{
		{queries.GetWorldQuery{}, worlds},
		{queries.ListWorldsQuery{}, worlds},
		{queries.GetEntityQuery{}, entities},
		{queries.ListEntitiesQuery{}, entities},
		{queries.GetRelationshipQuery{}, entities},
		{queries.ListEntityRelationshipsQuery{}, entities},
		{queries.GetStoryQuery{}, stories},
		{queries.ListUserStoriesQuery{}, stories},
	}
	for _, r := range registrations {
		if err := b.Register(r.query, r.handler); err != nil {
			return err
		}
	}
	return nil
}
