package valueobjects

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidID is returned for identifiers that are not UUIDs.
var ErrInvalidID = errors.New("invalid identifier")

// Identifiers are UUIDv7 strings. They sort by creation time and are never
// reassigned once an item exists.
type (
	WorldID        string
	EntityID       string
	RelationshipID string
	StoryID        string
	ElementID      string
)

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func NewWorldID() WorldID               { return WorldID(newID()) }
func NewEntityID() EntityID             { return EntityID(newID()) }
func NewRelationshipID() RelationshipID { return RelationshipID(newID()) }
func NewStoryID() StoryID               { return StoryID(newID()) }
func NewElementID() ElementID           { return ElementID(newID()) }

// parseID accepts any UUID version so ids minted by other writers stay
// addressable, and returns the canonical lowercase form.
func parseID(kind, s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: %s id cannot be empty", ErrInvalidID, kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %s id must be a valid UUID", ErrInvalidID, kind)
	}
	return u.String(), nil
}

func ParseWorldID(s string) (WorldID, error) {
	id, err := parseID("world", s)
	return WorldID(id), err
}

func ParseEntityID(s string) (EntityID, error) {
	id, err := parseID("entity", s)
	return EntityID(id), err
}

func ParseRelationshipID(s string) (RelationshipID, error) {
	id, err := parseID("relationship", s)
	return RelationshipID(id), err
}

func ParseStoryID(s string) (StoryID, error) {
	id, err := parseID("story", s)
	return StoryID(id), err
}

func (id WorldID) String() string        { return string(id) }
func (id EntityID) String() string       { return string(id) }
func (id RelationshipID) String() string { return string(id) }
func (id StoryID) String() string        { return string(id) }
func (id ElementID) String() string      { return string(id) }
