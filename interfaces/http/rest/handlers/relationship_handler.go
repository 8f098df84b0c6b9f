package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"worldbuilder/application/commands"
	"worldbuilder/application/commands/bus"
	"worldbuilder/application/queries"
	querybus "worldbuilder/application/queries/bus"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

// RelationshipHandler handles relationship requests.
type RelationshipHandler struct {
	base
}

func NewRelationshipHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *RelationshipHandler {
	return &RelationshipHandler{base: newBase(commandBus, queryBus, errs, logger)}
}

// CreateRelationshipRequest is the body of POST /relationships.
type CreateRelationshipRequest struct {
	SourceID   string            `json:"sourceId"`
	TargetID   string            `json:"targetId"`
	Label      string            `json:"label"`
	ValidFrom  *time.Time        `json:"validFrom"`
	ValidTo    *time.Time        `json:"validTo"`
	Attributes map[string]string `json:"attributes"`
}

// UpdateRelationshipRequest is the body of PUT /relationships/{relationshipID}.
// Endpoints cannot change.
type UpdateRelationshipRequest struct {
	Version    int               `json:"version"`
	Label      string            `json:"label"`
	ValidFrom  *time.Time        `json:"validFrom"`
	ValidTo    *time.Time        `json:"validTo"`
	Attributes map[string]string `json:"attributes"`
}

// CreateRelationship handles POST /relationships
func (h *RelationshipHandler) CreateRelationship(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req CreateRelationshipRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sourceID, err := valueobjects.ParseEntityID(req.SourceID)
	if err != nil {
		h.fail(w, r, pkgerrors.NewValidationError("sourceId: "+err.Error()))
		return
	}
	targetID, err := valueobjects.ParseEntityID(req.TargetID)
	if err != nil {
		h.fail(w, r, pkgerrors.NewValidationError("targetId: "+err.Error()))
		return
	}

	cmd := commands.CreateRelationshipCommand{
		RelationshipID: valueobjects.NewRelationshipID(),
		UserID:         userID,
		SourceID:       sourceID,
		TargetID:       targetID,
		Label:          req.Label,
		ValidFrom:      req.ValidFrom,
		ValidTo:        req.ValidTo,
		Attributes:     req.Attributes,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondRelationship(w, r, http.StatusCreated, userID, cmd.RelationshipID)
}

// GetRelationship handles GET /relationships/{relationshipID}
func (h *RelationshipHandler) GetRelationship(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	relID, err := pathID(r, "relationshipID", valueobjects.ParseRelationshipID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondRelationship(w, r, http.StatusOK, userID, relID)
}

// UpdateRelationship handles PUT /relationships/{relationshipID}
func (h *RelationshipHandler) UpdateRelationship(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	relID, err := pathID(r, "relationshipID", valueobjects.ParseRelationshipID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req UpdateRelationshipRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := commands.UpdateRelationshipCommand{
		RelationshipID: relID,
		UserID:         userID,
		Version:        req.Version,
		Label:          req.Label,
		ValidFrom:      req.ValidFrom,
		ValidTo:        req.ValidTo,
		Attributes:     req.Attributes,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondRelationship(w, r, http.StatusOK, userID, relID)
}

// DeleteRelationship handles DELETE /relationships/{relationshipID}
func (h *RelationshipHandler) DeleteRelationship(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	relID, err := pathID(r, "relationshipID", valueobjects.ParseRelationshipID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.commandBus.Send(r.Context(), commands.DeleteRelationshipCommand{RelationshipID: relID, UserID: userID}); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RelationshipHandler) respondRelationship(w http.ResponseWriter, r *http.Request, status int, userID string, relID valueobjects.RelationshipID) {
	rel, err := querybus.AskAs[*entities.Relationship](r.Context(), h.queryBus, queries.GetRelationshipQuery{UserID: userID, RelationshipID: relID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, status, rel)
}
