package services

import (
	"encoding/base64"
	"slices"
	"strings"
	"time"

	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Direction selects which side of an entity's relationships to list.
type Direction string

const (
	DirectionBoth     Direction = "both"
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// ParseDirection maps "" to DirectionBoth.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case "":
		return DirectionBoth, nil
	case DirectionBoth, DirectionOutgoing, DirectionIncoming:
		return d, nil
	}
	return "", pkgerrors.NewValidationError("direction must be one of: both, outgoing, incoming")
}

// ListOptions page through an entity's relationships. A non-nil At keeps
// only relationships whose validity window contains that instant.
type ListOptions struct {
	Direction Direction
	Limit     int
	Cursor    string
	At        *time.Time
}

// RelationshipPage is one page of an ordered relationship listing.
// NextCursor is empty on the last page.
type RelationshipPage struct {
	Items      []*entities.Relationship
	NextCursor string
}

// cursor marks the last relationship of a page by its sort position.
type cursor struct {
	createdAt time.Time
	id        valueobjects.RelationshipID
}

func encodeCursor(r *entities.Relationship) string {
	raw := r.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + string(r.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*cursor, error) {
	invalid := pkgerrors.NewValidationError("invalid cursor")
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, invalid
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, invalid
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, invalid
	}
	return &cursor{createdAt: createdAt, id: valueobjects.RelationshipID(id)}, nil
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, pkgerrors.NewValidationError("limit must not be negative")
	case limit == 0:
		return DefaultPageSize, nil
	case limit > MaxPageSize:
		return MaxPageSize, nil
	}
	return limit, nil
}

// paginate slices an already ordered listing after the cursor position.
func paginate(sorted []*entities.Relationship, opts ListOptions) (*RelationshipPage, error) {
	limit, err := normalizeLimit(opts.Limit)
	if err != nil {
		return nil, err
	}

	start := 0
	if opts.Cursor != "" {
		c, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		marker := &entities.Relationship{ID: c.id, CreatedAt: c.createdAt}
		start, _ = slices.BinarySearchFunc(sorted, marker, entities.CompareRelationships)
		if start < len(sorted) && sorted[start].ID == c.id {
			start++
		}
	}

	end := min(start+limit, len(sorted))
	page := &RelationshipPage{Items: slices.Clone(sorted[start:end])}
	if page.Items == nil {
		page.Items = []*entities.Relationship{}
	}
	if end < len(sorted) && len(page.Items) > 0 {
		page.NextCursor = encodeCursor(page.Items[len(page.Items)-1])
	}
	return page, nil
}
