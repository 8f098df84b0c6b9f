package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"worldbuilder/application/commands"
	"worldbuilder/application/commands/bus"
	"worldbuilder/application/queries"
	querybus "worldbuilder/application/queries/bus"
	"worldbuilder/application/services"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

// EntityHandler handles entity requests and the relationship listing of an
// entity.
type EntityHandler struct {
	base
}

func NewEntityHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *EntityHandler {
	return &EntityHandler{base: newBase(commandBus, queryBus, errs, logger)}
}

// EntityRequest is the body of POST /worlds/{worldID}/entities and
// PUT /entities/{entityID}. Kind is fixed at creation.
type EntityRequest struct {
	Kind       entities.EntityKind `json:"kind"`
	Name       string              `json:"name"`
	Attributes map[string]string   `json:"attributes"`
	Version    int                 `json:"version"`
}

// CreateEntity handles POST /worlds/{worldID}/entities
func (h *EntityHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	worldID, err := pathID(r, "worldID", valueobjects.ParseWorldID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req EntityRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := commands.CreateEntityCommand{
		EntityID:   valueobjects.NewEntityID(),
		WorldID:    worldID,
		UserID:     userID,
		Kind:       req.Kind,
		Name:       req.Name,
		Attributes: req.Attributes,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondEntity(w, r, http.StatusCreated, userID, cmd.EntityID)
}

// ListEntities handles GET /worlds/{worldID}/entities
func (h *EntityHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	worldID, err := pathID(r, "worldID", valueobjects.ParseWorldID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	query := queries.ListEntitiesQuery{
		UserID:  userID,
		WorldID: worldID,
		Kind:    entities.EntityKind(r.URL.Query().Get("kind")),
	}
	list, err := querybus.AskAs[[]*entities.Entity](r.Context(), h.queryBus, query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, nonNil(list))
}

// GetEntity handles GET /entities/{entityID}
func (h *EntityHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entityID, err := pathID(r, "entityID", valueobjects.ParseEntityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondEntity(w, r, http.StatusOK, userID, entityID)
}

// UpdateEntity handles PUT /entities/{entityID}
func (h *EntityHandler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entityID, err := pathID(r, "entityID", valueobjects.ParseEntityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req EntityRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := commands.UpdateEntityCommand{
		EntityID:   entityID,
		UserID:     userID,
		Version:    req.Version,
		Name:       req.Name,
		Attributes: req.Attributes,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondEntity(w, r, http.StatusOK, userID, entityID)
}

// DeleteEntity handles DELETE /entities/{entityID}. Every relationship of
// the entity is removed with it.
func (h *EntityHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entityID, err := pathID(r, "entityID", valueobjects.ParseEntityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.commandBus.Send(r.Context(), commands.DeleteEntityCommand{EntityID: entityID, UserID: userID}); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEntityRelationships handles GET /entity-relationships/{entityID}.
// The body is always an array; X-Next-Cursor is set when more pages exist.
// ?at= filters to relationships valid at that time.
func (h *EntityHandler) ListEntityRelationships(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entityID, err := pathID(r, "entityID", valueobjects.ParseEntityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	params := r.URL.Query()
	limit := 0
	if raw := params.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			h.fail(w, r, pkgerrors.NewValidationError("limit must be an integer"))
			return
		}
	}
	var at *time.Time
	if raw := params.Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.fail(w, r, pkgerrors.NewValidationError("at must be an RFC 3339 timestamp"))
			return
		}
		at = &parsed
	}
	query := queries.ListEntityRelationshipsQuery{
		UserID:    userID,
		EntityID:  entityID,
		Direction: params.Get("direction"),
		Limit:     limit,
		Cursor:    params.Get("cursor"),
		At:        at,
	}
	page, err := querybus.AskAs[*services.RelationshipPage](r.Context(), h.queryBus, query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if page.NextCursor != "" {
		w.Header().Set(NextCursorHeader, page.NextCursor)
	}
	h.respondJSON(w, http.StatusOK, nonNil(page.Items))
}

func (h *EntityHandler) respondEntity(w http.ResponseWriter, r *http.Request, status int, userID string, entityID valueobjects.EntityID) {
	entity, err := querybus.AskAs[*entities.Entity](r.Context(), h.queryBus, queries.GetEntityQuery{UserID: userID, EntityID: entityID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, status, entity)
}
