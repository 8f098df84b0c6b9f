package commands

import (
	"time"

	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
	"worldbuilder/pkg/utils"
)

func validate(cmd interface{}) error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	return nil
}

// CreateWorldCommand creates a World with a caller-generated ID.
type CreateWorldCommand struct {
	WorldID     valueobjects.WorldID `json:"world_id" validate:"required"`
	UserID      string               `json:"user_id"`
	Name        string               `json:"name" validate:"required,max=200"`
	Description string               `json:"description" validate:"max=10000"`
	Settings    map[string]string    `json:"settings"`
}

func (c CreateWorldCommand) Validate() error { return validate(c) }

type UpdateWorldCommand struct {
	WorldID     valueobjects.WorldID `json:"world_id" validate:"required"`
	UserID      string               `json:"user_id"`
	Version     int                  `json:"version" validate:"min=1"`
	Name        string               `json:"name" validate:"required,max=200"`
	Description string               `json:"description" validate:"max=10000"`
	Settings    map[string]string    `json:"settings"`
}

func (c UpdateWorldCommand) Validate() error { return validate(c) }

// DeleteWorldCommand removes a World with all of its entities and
// relationships, and detaches its stories.
type DeleteWorldCommand struct {
	WorldID valueobjects.WorldID `json:"world_id" validate:"required"`
	UserID  string               `json:"user_id"`
}

func (c DeleteWorldCommand) Validate() error { return validate(c) }

type CreateEntityCommand struct {
	EntityID   valueobjects.EntityID `json:"entity_id" validate:"required"`
	WorldID    valueobjects.WorldID  `json:"world_id" validate:"required"`
	UserID     string                `json:"user_id"`
	Kind       entities.EntityKind   `json:"kind" validate:"required,oneof=character thing event"`
	Name       string                `json:"name" validate:"required,max=200"`
	Attributes map[string]string     `json:"attributes"`
}

func (c CreateEntityCommand) Validate() error { return validate(c) }

type UpdateEntityCommand struct {
	EntityID   valueobjects.EntityID `json:"entity_id" validate:"required"`
	UserID     string                `json:"user_id"`
	Version    int                   `json:"version" validate:"min=1"`
	Name       string                `json:"name" validate:"required,max=200"`
	Attributes map[string]string     `json:"attributes"`
}

func (c UpdateEntityCommand) Validate() error { return validate(c) }

// DeleteEntityCommand removes an entity and every relationship touching it.
type DeleteEntityCommand struct {
	EntityID valueobjects.EntityID `json:"entity_id" validate:"required"`
	UserID   string                `json:"user_id"`
}

func (c DeleteEntityCommand) Validate() error { return validate(c) }

type CreateRelationshipCommand struct {
	RelationshipID valueobjects.RelationshipID `json:"relationship_id" validate:"required"`
	UserID         string                      `json:"user_id"`
	SourceID       valueobjects.EntityID       `json:"source_id" validate:"required"`
	TargetID       valueobjects.EntityID       `json:"target_id" validate:"required"`
	Label          string                      `json:"label" validate:"required,max=100"`
	ValidFrom      *time.Time                  `json:"valid_from"`
	ValidTo        *time.Time                  `json:"valid_to"`
	Attributes     map[string]string           `json:"attributes"`
}

func (c CreateRelationshipCommand) Validate() error { return validate(c) }

type UpdateRelationshipCommand struct {
	RelationshipID valueobjects.RelationshipID `json:"relationship_id" validate:"required"`
	UserID         string                      `json:"user_id"`
	Version        int                         `json:"version" validate:"min=1"`
	Label          string                      `json:"label" validate:"required,max=100"`
	ValidFrom      *time.Time                  `json:"valid_from"`
	ValidTo        *time.Time                  `json:"valid_to"`
	Attributes     map[string]string           `json:"attributes"`
}

func (c UpdateRelationshipCommand) Validate() error { return validate(c) }

type DeleteRelationshipCommand struct {
	RelationshipID valueobjects.RelationshipID `json:"relationship_id" validate:"required"`
	UserID         string                      `json:"user_id"`
}

func (c DeleteRelationshipCommand) Validate() error { return validate(c) }

// StoryElementInput is a story element as submitted by a client. Position
// is implied by slice order.
type StoryElementInput struct {
	ID    valueobjects.ElementID    `json:"id"`
	Kind  entities.StoryElementKind `json:"kind" validate:"required,oneof=chapter plot_point"`
	Title string                    `json:"title" validate:"required,max=200"`
	Body  string                    `json:"body"`
}

type CreateStoryCommand struct {
	StoryID  valueobjects.StoryID  `json:"story_id" validate:"required"`
	UserID   string                `json:"user_id"`
	WorldID  *valueobjects.WorldID `json:"world_id"`
	Title    string                `json:"title" validate:"required,max=200"`
	Synopsis string                `json:"synopsis" validate:"max=10000"`
	Elements []StoryElementInput   `json:"elements" validate:"max=500,dive"`
}

func (c CreateStoryCommand) Validate() error { return validate(c) }

type UpdateStoryCommand struct {
	StoryID  valueobjects.StoryID  `json:"story_id" validate:"required"`
	UserID   string                `json:"user_id"`
	Version  int                   `json:"version" validate:"min=1"`
	WorldID  *valueobjects.WorldID `json:"world_id"`
	Title    string                `json:"title" validate:"required,max=200"`
	Synopsis string                `json:"synopsis" validate:"max=10000"`
	Elements []StoryElementInput   `json:"elements" validate:"max=500,dive"`
}

func (c UpdateStoryCommand) Validate() error { return validate(c) }

type DeleteStoryCommand struct {
	StoryID valueobjects.StoryID `json:"story_id" validate:"required"`
	UserID  string               `json:"user_id"`
}

func (c DeleteStoryCommand) Validate() error { return validate(c) }

// StoryElements converts client input to domain elements.
func StoryElements(in []StoryElementInput) []entities.StoryElement {
	out := make([]entities.StoryElement, 0, len(in))
	for i, el := range in {
		out = append(out, entities.StoryElement{
			ID:       el.ID,
			Kind:     el.Kind,
			Title:    el.Title,
			Body:     el.Body,
			Position: i,
		})
	}
	return out
}
