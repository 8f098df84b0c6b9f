package dynamodb

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
)

const (
	metadataSK = "METADATA"

	typeWorld           = "WORLD"
	typeStory           = "STORY"
	typeEntity          = "ENTITY"
	typeWorldMember     = "WORLD_MEMBER"
	typeRelationship    = "RELATIONSHIP"
	typeRelationshipOut = "RELATIONSHIP_OUT"
	typeRelationshipIn  = "RELATIONSHIP_IN"

	attrVersion = "Version"
	attrStatus  = "Status"
	attrWorldID = "WorldID"
)

func userPK(ownerID string) string                         { return "USER#" + ownerID }
func worldSK(id valueobjects.WorldID) string               { return "WORLD#" + id.String() }
func storySK(id valueobjects.StoryID) string               { return "STORY#" + id.String() }
func entityPK(id valueobjects.EntityID) string             { return "ENTITY#" + id.String() }
func relationshipPK(id valueobjects.RelationshipID) string { return "RELATIONSHIP#" + id.String() }
func worldGSI1PK(id valueobjects.WorldID) string           { return "WORLD#" + id.String() }
func worldMembersPK(id valueobjects.WorldID) string        { return "MEMBERS#" + id.String() }
func memberSK(id valueobjects.EntityID) string             { return "ENTITY#" + id.String() }
func outSK(id valueobjects.RelationshipID) string          { return "OUT#" + id.String() }
func inSK(id valueobjects.RelationshipID) string           { return "IN#" + id.String() }

func entityGSI1SK(kind entities.EntityKind, id valueobjects.EntityID) string {
	return "ENTITY#" + string(kind) + "#" + id.String()
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		PartitionKey: &types.AttributeValueMemberS{Value: pk},
		SortKey:      &types.AttributeValueMemberS{Value: sk},
	}
}

func worldKey(ownerID string, id valueobjects.WorldID) map[string]types.AttributeValue {
	return key(userPK(ownerID), worldSK(id))
}

func memberKey(worldID valueobjects.WorldID, id valueobjects.EntityID) map[string]types.AttributeValue {
	return key(worldMembersPK(worldID), memberSK(id))
}

func entityKey(id valueobjects.EntityID) map[string]types.AttributeValue {
	return key(entityPK(id), metadataSK)
}

func relationshipKey(id valueobjects.RelationshipID) map[string]types.AttributeValue {
	return key(relationshipPK(id), metadataSK)
}

func storyKey(ownerID string, id valueobjects.StoryID) map[string]types.AttributeValue {
	return key(userPK(ownerID), storySK(id))
}

type worldItem struct {
	PK          string            `dynamodbav:"PK"`
	SK          string            `dynamodbav:"SK"`
	EntityType  string            `dynamodbav:"EntityType"`
	WorldID     string            `dynamodbav:"WorldID"`
	OwnerID     string            `dynamodbav:"OwnerID"`
	Name        string            `dynamodbav:"Name"`
	Description string            `dynamodbav:"Description,omitempty"`
	Settings    map[string]string `dynamodbav:"Settings,omitempty"`
	Status      string            `dynamodbav:"Status"`
	CreatedAt   time.Time         `dynamodbav:"CreatedAt"`
	UpdatedAt   time.Time         `dynamodbav:"UpdatedAt"`
	Version     int               `dynamodbav:"Version"`
}

func newWorldItem(w *entities.World) worldItem {
	return worldItem{
		PK:          userPK(w.OwnerID),
		SK:          worldSK(w.ID),
		EntityType:  typeWorld,
		WorldID:     w.ID.String(),
		OwnerID:     w.OwnerID,
		Name:        w.Name,
		Description: w.Description,
		Settings:    w.Settings,
		Status:      string(w.Status),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
		Version:     w.Version,
	}
}

func (i worldItem) toDomain() *entities.World {
	status := entities.WorldStatus(i.Status)
	if status == "" {
		status = entities.WorldStatusActive
	}
	return &entities.World{
		ID:          valueobjects.WorldID(i.WorldID),
		OwnerID:     i.OwnerID,
		Name:        i.Name,
		Description: i.Description,
		Settings:    i.Settings,
		Status:      status,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
		Version:     i.Version,
	}
}

// memberItem records that an entity belongs to a World. It lives in a
// per-World partition on the base table so the delete path can enumerate a
// World's entities with a consistent read.
type memberItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	EntityID   string `dynamodbav:"EntityID"`
	WorldID    string `dynamodbav:"WorldID"`
}

func newMemberItem(e *entities.Entity) memberItem {
	return memberItem{
		PK:         worldMembersPK(e.WorldID),
		SK:         memberSK(e.ID),
		EntityType: typeWorldMember,
		EntityID:   e.ID.String(),
		WorldID:    e.WorldID.String(),
	}
}

type entityItem struct {
	PK         string            `dynamodbav:"PK"`
	SK         string            `dynamodbav:"SK"`
	EntityType string            `dynamodbav:"EntityType"`
	GSI1PK     string            `dynamodbav:"GSI1PK"`
	GSI1SK     string            `dynamodbav:"GSI1SK"`
	EntityID   string            `dynamodbav:"EntityID"`
	WorldID    string            `dynamodbav:"WorldID"`
	OwnerID    string            `dynamodbav:"OwnerID"`
	Kind       string            `dynamodbav:"Kind"`
	Name       string            `dynamodbav:"Name"`
	Attributes map[string]string `dynamodbav:"Attributes,omitempty"`
	Status     string            `dynamodbav:"Status"`
	CreatedAt  time.Time         `dynamodbav:"CreatedAt"`
	UpdatedAt  time.Time         `dynamodbav:"UpdatedAt"`
	Version    int               `dynamodbav:"Version"`
}

func newEntityItem(e *entities.Entity) entityItem {
	return entityItem{
		PK:         entityPK(e.ID),
		SK:         metadataSK,
		EntityType: typeEntity,
		GSI1PK:     worldGSI1PK(e.WorldID),
		GSI1SK:     entityGSI1SK(e.Kind, e.ID),
		EntityID:   e.ID.String(),
		WorldID:    e.WorldID.String(),
		OwnerID:    e.OwnerID,
		Kind:       string(e.Kind),
		Name:       e.Name,
		Attributes: e.Attributes,
		Status:     string(e.Status),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
		Version:    e.Version,
	}
}

func (i entityItem) toDomain() *entities.Entity {
	return &entities.Entity{
		ID:         valueobjects.EntityID(i.EntityID),
		WorldID:    valueobjects.WorldID(i.WorldID),
		OwnerID:    i.OwnerID,
		Kind:       entities.EntityKind(i.Kind),
		Name:       i.Name,
		Attributes: i.Attributes,
		Status:     entities.EntityStatus(i.Status),
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
		Version:    i.Version,
	}
}

// relationshipItem is used for the canonical item and both adjacency
// copies. Only the canonical item is projected into GSI1.
type relationshipItem struct {
	PK             string            `dynamodbav:"PK"`
	SK             string            `dynamodbav:"SK"`
	EntityType     string            `dynamodbav:"EntityType"`
	GSI1PK         string            `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK         string            `dynamodbav:"GSI1SK,omitempty"`
	RelationshipID string            `dynamodbav:"RelationshipID"`
	WorldID        string            `dynamodbav:"WorldID"`
	OwnerID        string            `dynamodbav:"OwnerID"`
	SourceID       string            `dynamodbav:"SourceID"`
	TargetID       string            `dynamodbav:"TargetID"`
	Label          string            `dynamodbav:"Label"`
	ValidFrom      *time.Time        `dynamodbav:"ValidFrom,omitempty"`
	ValidTo        *time.Time        `dynamodbav:"ValidTo,omitempty"`
	Attributes     map[string]string `dynamodbav:"Attributes,omitempty"`
	CreatedAt      time.Time         `dynamodbav:"CreatedAt"`
	UpdatedAt      time.Time         `dynamodbav:"UpdatedAt"`
	Version        int               `dynamodbav:"Version"`
}

func newRelationshipItem(r *entities.Relationship) relationshipItem {
	return relationshipItem{
		PK:             relationshipPK(r.ID),
		SK:             metadataSK,
		EntityType:     typeRelationship,
		GSI1PK:         worldGSI1PK(r.WorldID),
		GSI1SK:         relationshipPK(r.ID),
		RelationshipID: r.ID.String(),
		WorldID:        r.WorldID.String(),
		OwnerID:        r.OwnerID,
		SourceID:       r.SourceID.String(),
		TargetID:       r.TargetID.String(),
		Label:          r.Label,
		ValidFrom:      r.ValidFrom,
		ValidTo:        r.ValidTo,
		Attributes:     r.Attributes,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Version:        r.Version,
	}
}

func (i relationshipItem) outgoing() relationshipItem {
	i.PK, i.SK, i.EntityType = entityPK(valueobjects.EntityID(i.SourceID)), outSK(valueobjects.RelationshipID(i.RelationshipID)), typeRelationshipOut
	i.GSI1PK, i.GSI1SK = "", ""
	return i
}

func (i relationshipItem) incoming() relationshipItem {
	i.PK, i.SK, i.EntityType = entityPK(valueobjects.EntityID(i.TargetID)), inSK(valueobjects.RelationshipID(i.RelationshipID)), typeRelationshipIn
	i.GSI1PK, i.GSI1SK = "", ""
	return i
}

func (i relationshipItem) toDomain() *entities.Relationship {
	return &entities.Relationship{
		ID:         valueobjects.RelationshipID(i.RelationshipID),
		WorldID:    valueobjects.WorldID(i.WorldID),
		OwnerID:    i.OwnerID,
		SourceID:   valueobjects.EntityID(i.SourceID),
		TargetID:   valueobjects.EntityID(i.TargetID),
		Label:      i.Label,
		ValidFrom:  i.ValidFrom,
		ValidTo:    i.ValidTo,
		Attributes: i.Attributes,
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
		Version:    i.Version,
	}
}

type storyElementItem struct {
	ElementID string `dynamodbav:"ElementID"`
	Kind      string `dynamodbav:"Kind"`
	Title     string `dynamodbav:"Title"`
	Body      string `dynamodbav:"Body,omitempty"`
	Position  int    `dynamodbav:"Position"`
}

type storyItem struct {
	PK         string             `dynamodbav:"PK"`
	SK         string             `dynamodbav:"SK"`
	EntityType string             `dynamodbav:"EntityType"`
	StoryID    string             `dynamodbav:"StoryID"`
	OwnerID    string             `dynamodbav:"OwnerID"`
	WorldID    string             `dynamodbav:"WorldID,omitempty"`
	Title      string             `dynamodbav:"Title"`
	Synopsis   string             `dynamodbav:"Synopsis,omitempty"`
	Elements   []storyElementItem `dynamodbav:"Elements"`
	CreatedAt  time.Time          `dynamodbav:"CreatedAt"`
	UpdatedAt  time.Time          `dynamodbav:"UpdatedAt"`
	Version    int                `dynamodbav:"Version"`
}

func newStoryItem(s *entities.Story) storyItem {
	item := storyItem{
		PK:         userPK(s.OwnerID),
		SK:         storySK(s.ID),
		EntityType: typeStory,
		StoryID:    s.ID.String(),
		OwnerID:    s.OwnerID,
		Title:      s.Title,
		Synopsis:   s.Synopsis,
		Elements:   make([]storyElementItem, 0, len(s.Elements)),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		Version:    s.Version,
	}
	if s.WorldID != nil {
		item.WorldID = s.WorldID.String()
	}
	for _, el := range s.Elements {
		item.Elements = append(item.Elements, storyElementItem{
			ElementID: el.ID.String(),
			Kind:      string(el.Kind),
			Title:     el.Title,
			Body:      el.Body,
			Position:  el.Position,
		})
	}
	return item
}

func (i storyItem) toDomain() *entities.Story {
	s := &entities.Story{
		ID:        valueobjects.StoryID(i.StoryID),
		OwnerID:   i.OwnerID,
		Title:     i.Title,
		Synopsis:  i.Synopsis,
		Elements:  make([]entities.StoryElement, 0, len(i.Elements)),
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
		Version:   i.Version,
	}
	if i.WorldID != "" {
		worldID := valueobjects.WorldID(i.WorldID)
		s.WorldID = &worldID
	}
	for _, el := range i.Elements {
		s.Elements = append(s.Elements, entities.StoryElement{
			ID:       valueobjects.ElementID(el.ElementID),
			Kind:     entities.StoryElementKind(el.Kind),
			Title:    el.Title,
			Body:     el.Body,
			Position: el.Position,
		})
	}
	return s
}

func marshal(item interface{}) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(item)
}

func unmarshal[T any](av map[string]types.AttributeValue) (T, error) {
	var item T
	err := attributevalue.UnmarshalMap(av, &item)
	return item, err
}
