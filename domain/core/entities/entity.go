package entities

import (
	"strings"
	"time"

	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

// EntityKind is the category of a world entity.
type EntityKind string

const (
	KindCharacter EntityKind = "character"
	KindThing     EntityKind = "thing"
	KindEvent     EntityKind = "event"
)

func (k EntityKind) IsValid() bool {
	switch k {
	case KindCharacter, KindThing, KindEvent:
		return true
	}
	return false
}

// EntityStatus tracks the delete lifecycle. A deleting entity is invisible to
// reads and cannot gain new relationships.
type EntityStatus string

const (
	EntityStatusActive   EntityStatus = "active"
	EntityStatusDeleting EntityStatus = "deleting"
)

// Entity is a character, thing or event inside a World.
type Entity struct {
	ID         valueobjects.EntityID `json:"id"`
	WorldID    valueobjects.WorldID  `json:"worldId"`
	OwnerID    string                `json:"ownerId"`
	Kind       EntityKind            `json:"kind"`
	Name       string                `json:"name"`
	Attributes map[string]string     `json:"attributes,omitempty"`
	Status     EntityStatus          `json:"status"`
	CreatedAt  time.Time             `json:"createdAt"`
	UpdatedAt  time.Time             `json:"updatedAt"`
	Version    int                   `json:"version"`
}

// NewEntity builds an active entity inside world. The owner is copied from
// the world.
func NewEntity(id valueobjects.EntityID, world *World, kind EntityKind, name string, attrs map[string]string, now time.Time) (*Entity, error) {
	if world == nil {
		return nil, pkgerrors.NewValidationError("world is required")
	}
	if !kind.IsValid() {
		return nil, pkgerrors.NewValidationError("kind must be one of: character, thing, event")
	}
	e := &Entity{
		ID:        id,
		WorldID:   world.ID,
		OwnerID:   world.OwnerID,
		Kind:      kind,
		Status:    EntityStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := e.apply(name, attrs); err != nil {
		return nil, err
	}
	return e, nil
}

// Update replaces name and attributes. Kind and world are fixed.
func (e *Entity) Update(name string, attrs map[string]string, now time.Time) error {
	if err := e.apply(name, attrs); err != nil {
		return err
	}
	e.UpdatedAt = now
	e.Version++
	return nil
}

func (e *Entity) apply(name string, attrs map[string]string) error {
	name = strings.TrimSpace(name)
	if err := validateName("entity name", name); err != nil {
		return err
	}
	e.Name = name
	e.Attributes = copyMap(attrs)
	return nil
}

func (e *Entity) IsActive() bool {
	return e != nil && e.Status == EntityStatusActive
}

func (e *Entity) Clone() *Entity {
	c := *e
	c.Attributes = copyMap(e.Attributes)
	return &c
}
