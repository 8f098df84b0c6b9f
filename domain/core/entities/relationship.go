package entities

import (
	"strings"
	"time"

	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

const MaxLabelLength = 100

// Relationship is a directed, labelled edge between two entities of the
// same World, optionally bounded in time.
type Relationship struct {
	ID         valueobjects.RelationshipID `json:"id"`
	WorldID    valueobjects.WorldID        `json:"worldId"`
	OwnerID    string                      `json:"ownerId"`
	SourceID   valueobjects.EntityID       `json:"sourceId"`
	TargetID   valueobjects.EntityID       `json:"targetId"`
	Label      string                      `json:"label"`
	ValidFrom  *time.Time                  `json:"validFrom,omitempty"`
	ValidTo    *time.Time                  `json:"validTo,omitempty"`
	Attributes map[string]string           `json:"attributes,omitempty"`
	CreatedAt  time.Time                   `json:"createdAt"`
	UpdatedAt  time.Time                   `json:"updatedAt"`
	Version    int                         `json:"version"`
}

// NewRelationship connects source to target. Both must be active and belong
// to the same World.
func NewRelationship(
	id valueobjects.RelationshipID,
	source, target *Entity,
	label string,
	validFrom, validTo *time.Time,
	attrs map[string]string,
	now time.Time,
) (*Relationship, error) {
	if source == nil || target == nil {
		return nil, pkgerrors.NewValidationError("source and target are required")
	}
	if source.ID == target.ID {
		return nil, pkgerrors.NewValidationError("relationship cannot connect an entity to itself")
	}
	if source.WorldID != target.WorldID {
		return nil, pkgerrors.NewValidationError("source and target must belong to the same world")
	}
	if !source.IsActive() || !target.IsActive() {
		return nil, pkgerrors.NewConflictError("entity is being deleted")
	}
	r := &Relationship{
		ID:        id,
		WorldID:   source.WorldID,
		OwnerID:   source.OwnerID,
		SourceID:  source.ID,
		TargetID:  target.ID,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := r.apply(label, validFrom, validTo, attrs); err != nil {
		return nil, err
	}
	return r, nil
}

// Update changes label, validity and attributes. Endpoints never change.
func (r *Relationship) Update(label string, validFrom, validTo *time.Time, attrs map[string]string, now time.Time) error {
	if err := r.apply(label, validFrom, validTo, attrs); err != nil {
		return err
	}
	r.UpdatedAt = now
	r.Version++
	return nil
}

func (r *Relationship) apply(label string, validFrom, validTo *time.Time, attrs map[string]string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return pkgerrors.NewValidationError("label cannot be empty")
	}
	if len(label) > MaxLabelLength {
		return pkgerrors.NewValidationError("label is too long")
	}
	if validFrom != nil && validTo != nil && validTo.Before(*validFrom) {
		return pkgerrors.NewValidationError("validTo must not precede validFrom")
	}
	r.Label = label
	r.ValidFrom = copyTime(validFrom)
	r.ValidTo = copyTime(validTo)
	r.Attributes = copyMap(attrs)
	return nil
}

// ActiveAt reports whether the relationship holds at t.
func (r *Relationship) ActiveAt(t time.Time) bool {
	if r.ValidFrom != nil && t.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && t.After(*r.ValidTo) {
		return false
	}
	return true
}

func (r *Relationship) Clone() *Relationship {
	c := *r
	c.ValidFrom = copyTime(r.ValidFrom)
	c.ValidTo = copyTime(r.ValidTo)
	c.Attributes = copyMap(r.Attributes)
	return &c
}

// CompareRelationships orders by creation time, then id.
func CompareRelationships(a, b *Relationship) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
