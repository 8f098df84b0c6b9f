package queries

import (
	"time"

	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
	"worldbuilder/pkg/utils"
)

func validate(q interface{}) error {
	if err := utils.ValidateStruct(q); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	return nil
}

type GetWorldQuery struct {
	UserID  string               `json:"user_id"`
	WorldID valueobjects.WorldID `json:"world_id" validate:"required"`
}

func (q GetWorldQuery) Validate() error { return validate(q) }

type ListWorldsQuery struct {
	UserID string `json:"user_id"`
}

func (q ListWorldsQuery) Validate() error { return validate(q) }

type GetEntityQuery struct {
	UserID   string                `json:"user_id"`
	EntityID valueobjects.EntityID `json:"entity_id" validate:"required"`
}

func (q GetEntityQuery) Validate() error { return validate(q) }

// ListEntitiesQuery lists the active entities of a World, optionally of
// one kind.
type ListEntitiesQuery struct {
	UserID  string               `json:"user_id"`
	WorldID valueobjects.WorldID `json:"world_id" validate:"required"`
	Kind    entities.EntityKind  `json:"kind" validate:"omitempty,oneof=character thing event"`
}

func (q ListEntitiesQuery) Validate() error { return validate(q) }

type GetRelationshipQuery struct {
	UserID         string                      `json:"user_id"`
	RelationshipID valueobjects.RelationshipID `json:"relationship_id" validate:"required"`
}

func (q GetRelationshipQuery) Validate() error { return validate(q) }

// ListEntityRelationshipsQuery pages through the relationships touching
// one entity. Direction and Cursor are checked by the service.
type ListEntityRelationshipsQuery struct {
	UserID    string                `json:"user_id"`
	EntityID  valueobjects.EntityID `json:"entity_id" validate:"required"`
	Direction string                `json:"direction"`
	Limit     int                   `json:"limit" validate:"min=0"`
	Cursor    string                `json:"cursor"`
	At        *time.Time            `json:"at,omitempty"`
}

func (q ListEntityRelationshipsQuery) Validate() error { return validate(q) }

type GetStoryQuery struct {
	UserID  string               `json:"user_id"`
	StoryID valueobjects.StoryID `json:"story_id" validate:"required"`
}

func (q GetStoryQuery) Validate() error { return validate(q) }

type ListUserStoriesQuery struct {
	UserID string `json:"user_id"`
}

func (q ListUserStoriesQuery) Validate() error { return validate(q) }
