package events

import (
	"time"

	"worldbuilder/domain/core/valueobjects"
)

// DomainEvent is something that already happened to an aggregate.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetUserID() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent carries the fields every event shares.
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetUserID() string       { return e.UserID }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

const (
	TypeWorldCreated        = "world.created"
	TypeWorldUpdated        = "world.updated"
	TypeWorldDeleted        = "world.deleted"
	TypeEntityCreated       = "entity.created"
	TypeEntityUpdated       = "entity.updated"
	TypeEntityDeleted       = "entity.deleted"
	TypeRelationshipCreated = "relationship.created"
	TypeRelationshipUpdated = "relationship.updated"
	TypeRelationshipDeleted = "relationship.deleted"
	TypeStoryCreated        = "story.created"
	TypeStoryUpdated        = "story.updated"
	TypeStoryDeleted        = "story.deleted"
)

func base(aggregateID, eventType, userID string, version int, ts time.Time) BaseEvent {
	return BaseEvent{
		AggregateID: aggregateID,
		EventType:   eventType,
		UserID:      userID,
		Timestamp:   ts,
		Version:     version,
	}
}

// World events

type WorldChanged struct {
	BaseEvent
	WorldID valueobjects.WorldID `json:"world_id"`
	Name    string               `json:"name,omitempty"`
}

func NewWorldCreated(id valueobjects.WorldID, userID, name string, ts time.Time) WorldChanged {
	return WorldChanged{BaseEvent: base(id.String(), TypeWorldCreated, userID, 1, ts), WorldID: id, Name: name}
}

func NewWorldUpdated(id valueobjects.WorldID, userID, name string, version int, ts time.Time) WorldChanged {
	return WorldChanged{BaseEvent: base(id.String(), TypeWorldUpdated, userID, version, ts), WorldID: id, Name: name}
}

// WorldDeleted reports how much was removed with the world.
type WorldDeleted struct {
	BaseEvent
	WorldID         valueobjects.WorldID `json:"world_id"`
	EntitiesDeleted int                  `json:"entities_deleted"`
	StoriesDetached int                  `json:"stories_detached"`
}

func NewWorldDeleted(id valueobjects.WorldID, userID string, entities, stories int, ts time.Time) WorldDeleted {
	return WorldDeleted{
		BaseEvent:       base(id.String(), TypeWorldDeleted, userID, 1, ts),
		WorldID:         id,
		EntitiesDeleted: entities,
		StoriesDetached: stories,
	}
}

// Entity events

type EntityChanged struct {
	BaseEvent
	EntityID valueobjects.EntityID `json:"entity_id"`
	WorldID  valueobjects.WorldID  `json:"world_id"`
	Kind     string                `json:"kind"`
}

func NewEntityCreated(id valueobjects.EntityID, worldID valueobjects.WorldID, userID, kind string, ts time.Time) EntityChanged {
	return EntityChanged{BaseEvent: base(id.String(), TypeEntityCreated, userID, 1, ts), EntityID: id, WorldID: worldID, Kind: kind}
}

func NewEntityUpdated(id valueobjects.EntityID, worldID valueobjects.WorldID, userID, kind string, version int, ts time.Time) EntityChanged {
	return EntityChanged{BaseEvent: base(id.String(), TypeEntityUpdated, userID, version, ts), EntityID: id, WorldID: worldID, Kind: kind}
}

// EntityDeleted carries the number of relationships removed by the cascade.
type EntityDeleted struct {
	BaseEvent
	EntityID             valueobjects.EntityID `json:"entity_id"`
	WorldID              valueobjects.WorldID  `json:"world_id"`
	RelationshipsDeleted int                   `json:"relationships_deleted"`
}

func NewEntityDeleted(id valueobjects.EntityID, worldID valueobjects.WorldID, userID string, cascaded int, ts time.Time) EntityDeleted {
	return EntityDeleted{
		BaseEvent:            base(id.String(), TypeEntityDeleted, userID, 1, ts),
		EntityID:             id,
		WorldID:              worldID,
		RelationshipsDeleted: cascaded,
	}
}

// Relationship events

type RelationshipChanged struct {
	BaseEvent
	RelationshipID valueobjects.RelationshipID `json:"relationship_id"`
	WorldID        valueobjects.WorldID        `json:"world_id"`
	SourceID       valueobjects.EntityID       `json:"source_id"`
	TargetID       valueobjects.EntityID       `json:"target_id"`
	Label          string                      `json:"label,omitempty"`
}

func newRelationshipChanged(eventType string, id valueobjects.RelationshipID, worldID valueobjects.WorldID, source, target valueobjects.EntityID, userID, label string, version int, ts time.Time) RelationshipChanged {
	return RelationshipChanged{
		BaseEvent:      base(id.String(), eventType, userID, version, ts),
		RelationshipID: id,
		WorldID:        worldID,
		SourceID:       source,
		TargetID:       target,
		Label:          label,
	}
}

func NewRelationshipCreated(id valueobjects.RelationshipID, worldID valueobjects.WorldID, source, target valueobjects.EntityID, userID, label string, ts time.Time) RelationshipChanged {
	return newRelationshipChanged(TypeRelationshipCreated, id, worldID, source, target, userID, label, 1, ts)
}

func NewRelationshipUpdated(id valueobjects.RelationshipID, worldID valueobjects.WorldID, source, target valueobjects.EntityID, userID, label string, version int, ts time.Time) RelationshipChanged {
	return newRelationshipChanged(TypeRelationshipUpdated, id, worldID, source, target, userID, label, version, ts)
}

func NewRelationshipDeleted(id valueobjects.RelationshipID, worldID valueobjects.WorldID, source, target valueobjects.EntityID, userID string, ts time.Time) RelationshipChanged {
	return newRelationshipChanged(TypeRelationshipDeleted, id, worldID, source, target, userID, "", 1, ts)
}

// Story events

type StoryChanged struct {
	BaseEvent
	StoryID valueobjects.StoryID `json:"story_id"`
	Title   string               `json:"title,omitempty"`
}

func NewStoryCreated(id valueobjects.StoryID, userID, title string, ts time.Time) StoryChanged {
	return StoryChanged{BaseEvent: base(id.String(), TypeStoryCreated, userID, 1, ts), StoryID: id, Title: title}
}

func NewStoryUpdated(id valueobjects.StoryID, userID, title string, version int, ts time.Time) StoryChanged {
	return StoryChanged{BaseEvent: base(id.String(), TypeStoryUpdated, userID, version, ts), StoryID: id, Title: title}
}

func NewStoryDeleted(id valueobjects.StoryID, userID string, ts time.Time) StoryChanged {
	return StoryChanged{BaseEvent: base(id.String(), TypeStoryDeleted, userID, 1, ts), StoryID: id}
}
