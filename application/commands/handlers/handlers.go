package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"worldbuilder/application/commands"
	"worldbuilder/application/commands/bus"
	"worldbuilder/application/services"
)

// WorldCommandHandler handles World commands.
type WorldCommandHandler struct {
	worlds *services.WorldService
}

func NewWorldCommandHandler(worlds *services.WorldService) *WorldCommandHandler {
	return &WorldCommandHandler{worlds: worlds}
}

func (h *WorldCommandHandler) Handle(ctx context.Context, cmd bus.Command) error {
	switch c := cmd.(type) {
	case commands.CreateWorldCommand:
		_, err := h.worlds.Create(ctx, c.UserID, c.WorldID, services.WorldInput{
			Name:        c.Name,
			Description: c.Description,
			Settings:    c.Settings,
		})
		return err
	case commands.UpdateWorldCommand:
		_, err := h.worlds.Update(ctx, c.UserID, c.WorldID, c.Version, services.WorldInput{
			Name:        c.Name,
			Description: c.Description,
			Settings:    c.Settings,
		})
		return err
	case commands.DeleteWorldCommand:
		return h.worlds.Delete(ctx, c.UserID, c.WorldID)
	default:
		return unsupported(cmd)
	}
}

// EntityCommandHandler handles entity commands.
type EntityCommandHandler struct {
	entities *services.EntityService
	logger   *zap.Logger
}

func NewEntityCommandHandler(entities *services.EntityService, logger *zap.Logger) *EntityCommandHandler {
	return &EntityCommandHandler{entities: entities, logger: logger}
}

func (h *EntityCommandHandler) Handle(ctx context.Context, cmd bus.Command) error {
	switch c := cmd.(type) {
	case commands.CreateEntityCommand:
		_, err := h.entities.Create(ctx, c.UserID, c.EntityID, c.WorldID, c.Kind, c.Name, c.Attributes)
		return err
	case commands.UpdateEntityCommand:
		_, err := h.entities.Update(ctx, c.UserID, c.EntityID, c.Version, c.Name, c.Attributes)
		return err
	case commands.DeleteEntityCommand:
		removed, err := h.entities.Delete(ctx, c.UserID, c.EntityID)
		if err != nil {
			return err
		}
		h.logger.Info("Entity deleted",
			zap.String("entityID", c.EntityID.String()),
			zap.Int("relationshipsDeleted", removed),
		)
		return nil
	default:
		return unsupported(cmd)
	}
}

// RelationshipCommandHandler handles relationship commands.
type RelationshipCommandHandler struct {
	relationships *services.RelationshipService
}

func NewRelationshipCommandHandler(relationships *services.RelationshipService) *RelationshipCommandHandler {
	return &RelationshipCommandHandler{relationships: relationships}
}

func (h *RelationshipCommandHandler) Handle(ctx context.Context, cmd bus.Command) error {
	switch c := cmd.(type) {
	case commands.CreateRelationshipCommand:
		_, err := h.relationships.Create(ctx, c.UserID, c.RelationshipID, c.SourceID, c.TargetID, services.RelationshipInput{
			Label:      c.Label,
			ValidFrom:  c.ValidFrom,
			ValidTo:    c.ValidTo,
			Attributes: c.Attributes,
		})
		return err
	case commands.UpdateRelationshipCommand:
		_, err := h.relationships.Update(ctx, c.UserID, c.RelationshipID, c.Version, services.RelationshipInput{
			Label:      c.Label,
			ValidFrom:  c.ValidFrom,
			ValidTo:    c.ValidTo,
			Attributes: c.Attributes,
		})
		return err
	case commands.DeleteRelationshipCommand:
		return h.relationships.Delete(ctx, c.UserID, c.RelationshipID)
	default:
		return unsupported(cmd)
	}
}

// StoryCommandHandler handles story commands.
type StoryCommandHandler struct {
	stories *services.StoryService
}

func NewStoryCommandHandler(stories *services.StoryService) *StoryCommandHandler {
	return &StoryCommandHandler{stories: stories}
}

func (h *StoryCommandHandler) Handle(ctx context.Context, cmd bus.Command) error {
	switch c := cmd.(type) {
	case commands.CreateStoryCommand:
		_, err := h.stories.Create(ctx, c.UserID, c.StoryID, services.StoryInput{
			WorldID:  c.WorldID,
			Title:    c.Title,
			Synopsis: c.Synopsis,
			Elements: commands.StoryElements(c.Elements),
		})
		return err
	case commands.UpdateStoryCommand:
		_, err := h.stories.Update(ctx, c.UserID, c.StoryID, c.Version, services.StoryInput{
			WorldID:  c.WorldID,
			Title:    c.Title,
			Synopsis: c.Synopsis,
			Elements: commands.StoryElements(c.Elements),
		})
		return err
	case commands.DeleteStoryCommand:
		return h.stories.Delete(ctx, c.UserID, c.StoryID)
	default:
		return unsupported(cmd)
	}
}

func unsupported(cmd bus.Command) error {
	return fmt.Errorf("unsupported command %T", cmd)
}

// Register binds every command to its handler.
func Register(
	b *bus.CommandBus,
	worlds *WorldCommandHandler,
	entities *EntityCommandHandler,
	relationships *RelationshipCommandHandler,
	stories *StoryCommandHandler,
) error {
	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{commands.CreateWorldCommand{}, worlds},
		{commands.UpdateWorldCommand{}, worlds},
		{commands.DeleteWorldCommand{}, worlds},
		{commands.CreateEntityCommand{}, entities},
		{commands.UpdateEntityCommand{}, entities},
		{commands.DeleteEntityCommand{}, entities},
		{commands.CreateRelationshipCommand{}, relationships},
		{commands.UpdateRelationshipCommand{}, relationships},
		{commands.DeleteRelationshipCommand{}, relationships},
		{commands.CreateStoryCommand{}, stories},
		{commands.UpdateStoryCommand{}, stories},
		{commands.DeleteStoryCommand{}, stories},
	}
	for _, r := range registrations {
		if err := b.Register(r.cmd, r.handler); err != nil {
			return err
		}
	}
	return nil
}
