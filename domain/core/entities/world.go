package entities

import (
	"maps"
	"strings"
	"time"

	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

const (
	MaxNameLength        = 200
	MaxDescriptionLength = 10000
)

// WorldStatus tracks the delete lifecycle. A deleting World accepts no new
// writes and is invisible to reads until its delete completes.
type WorldStatus string

const (
	WorldStatusActive   WorldStatus = "active"
	WorldStatusDeleting WorldStatus = "deleting"
)

// World is the top-level container owned by a single user. Every entity,
// relationship and linked story lives inside one World.
type World struct {
	ID          valueobjects.WorldID `json:"id"`
	OwnerID     string               `json:"ownerId"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Settings    map[string]string    `json:"settings,omitempty"`
	Status      WorldStatus          `json:"status"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
	Version     int                  `json:"version"`
}

// NewWorld builds a version 1 World.
func NewWorld(id valueobjects.WorldID, ownerID, name, description string, settings map[string]string, now time.Time) (*World, error) {
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("ownerID cannot be empty")
	}
	w := &World{
		ID:        id,
		OwnerID:   ownerID,
		Settings:  map[string]string{},
		Status:    WorldStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := w.apply(name, description, settings); err != nil {
		return nil, err
	}
	return w, nil
}

// Update replaces the mutable fields and bumps the version.
func (w *World) Update(name, description string, settings map[string]string, now time.Time) error {
	if err := w.apply(name, description, settings); err != nil {
		return err
	}
	w.UpdatedAt = now
	w.Version++
	return nil
}

func (w *World) apply(name, description string, settings map[string]string) error {
	name = strings.TrimSpace(name)
	if err := validateName("world name", name); err != nil {
		return err
	}
	if len(description) > MaxDescriptionLength {
		return pkgerrors.NewValidationError("description is too long")
	}
	w.Name = name
	w.Description = description
	w.Settings = copyMap(settings)
	return nil
}

// IsOwnedBy reports whether userID owns the world.
func (w *World) IsOwnedBy(userID string) bool {
	return w != nil && userID != "" && w.OwnerID == userID
}

func (w *World) IsActive() bool {
	return w != nil && w.Status == WorldStatusActive
}

func (w *World) Clone() *World {
	c := *w
	c.Settings = copyMap(w.Settings)
	return &c
}

func validateName(field, name string) error {
	if name == "" {
		return pkgerrors.NewValidationError(field + " cannot be empty")
	}
	if len(name) > MaxNameLength {
		return pkgerrors.NewValidationError(field + " is too long")
	}
	return nil
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
