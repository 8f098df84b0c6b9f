package entities

import (
	"slices"
	"strings"
	"time"

	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

const MaxStoryElements = 500

// StoryElementKind distinguishes chapters from plot points.
type StoryElementKind string

const (
	ElementChapter   StoryElementKind = "chapter"
	ElementPlotPoint StoryElementKind = "plot_point"
)

// StoryElement is one ordered piece of a story.
type StoryElement struct {
	ID       valueobjects.ElementID `json:"id"`
	Kind     StoryElementKind       `json:"kind"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body,omitempty"`
	Position int                    `json:"position"`
}

// Story is a narrative owned by a user, optionally linked to one World.
type Story struct {
	ID        valueobjects.StoryID  `json:"id"`
	OwnerID   string                `json:"ownerId"`
	WorldID   *valueobjects.WorldID `json:"worldId,omitempty"`
	Title     string                `json:"title"`
	Synopsis  string                `json:"synopsis,omitempty"`
	Elements  []StoryElement        `json:"elements"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
	Version   int                   `json:"version"`
}

// NewStory builds a version 1 story. Elements are re-positioned in the
// order given.
func NewStory(id valueobjects.StoryID, ownerID string, worldID *valueobjects.WorldID, title, synopsis string, elements []StoryElement, now time.Time) (*Story, error) {
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("ownerID cannot be empty")
	}
	s := &Story{
		ID:        id,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := s.apply(worldID, title, synopsis, elements); err != nil {
		return nil, err
	}
	return s, nil
}

// Update replaces every mutable field, including the full element list.
func (s *Story) Update(worldID *valueobjects.WorldID, title, synopsis string, elements []StoryElement, now time.Time) error {
	if err := s.apply(worldID, title, synopsis, elements); err != nil {
		return err
	}
	s.UpdatedAt = now
	s.Version++
	return nil
}

// DetachWorld drops the world link, used when the world is deleted.
func (s *Story) DetachWorld(now time.Time) {
	s.WorldID = nil
	s.UpdatedAt = now
	s.Version++
}

func (s *Story) apply(worldID *valueobjects.WorldID, title, synopsis string, elements []StoryElement) error {
	title = strings.TrimSpace(title)
	if err := validateName("story title", title); err != nil {
		return err
	}
	if len(synopsis) > MaxDescriptionLength {
		return pkgerrors.NewValidationError("synopsis is too long")
	}
	if len(elements) > MaxStoryElements {
		return pkgerrors.NewValidationError("story has too many elements")
	}

	ordered := make([]StoryElement, 0, len(elements))
	seen := make(map[valueobjects.ElementID]struct{}, len(elements))
	for i, el := range elements {
		if el.Kind != ElementChapter && el.Kind != ElementPlotPoint {
			return pkgerrors.NewValidationError("element kind must be one of: chapter, plot_point")
		}
		el.Title = strings.TrimSpace(el.Title)
		if err := validateName("element title", el.Title); err != nil {
			return err
		}
		if el.ID == "" {
			el.ID = valueobjects.NewElementID()
		}
		if _, dup := seen[el.ID]; dup {
			return pkgerrors.NewValidationError("duplicate element id")
		}
		seen[el.ID] = struct{}{}
		el.Position = i
		ordered = append(ordered, el)
	}

	if worldID != nil {
		w := *worldID
		s.WorldID = &w
	} else {
		s.WorldID = nil
	}
	s.Title = title
	s.Synopsis = synopsis
	s.Elements = ordered
	return nil
}

func (s *Story) Clone() *Story {
	c := *s
	if s.WorldID != nil {
		w := *s.WorldID
		c.WorldID = &w
	}
	c.Elements = slices.Clone(s.Elements)
	if c.Elements == nil {
		c.Elements = []StoryElement{}
	}
	return &c
}

// CompareStories orders by creation time, then id.
func CompareStories(a, b *Story) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}
