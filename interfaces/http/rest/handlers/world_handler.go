package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"worldbuilder/application/commands"
	"worldbuilder/application/commands/bus"
	"worldbuilder/application/queries"
	querybus "worldbuilder/application/queries/bus"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

// WorldHandler handles World requests.
type WorldHandler struct {
	base
}

func NewWorldHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *WorldHandler {
	return &WorldHandler{base: newBase(commandBus, queryBus, errs, logger)}
}

// WorldRequest is the body of POST /worlds and PUT /worlds/{worldID}.
// Version is required on update.
type WorldRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Settings    map[string]string `json:"settings"`
	Version     int               `json:"version"`
}

// CreateWorld handles POST /worlds
func (h *WorldHandler) CreateWorld(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req WorldRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := commands.CreateWorldCommand{
		WorldID:     valueobjects.NewWorldID(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Settings:    req.Settings,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondWorld(w, r, http.StatusCreated, userID, cmd.WorldID)
}

// GetWorld handles GET /worlds/{worldID}
func (h *WorldHandler) GetWorld(w http.ResponseWriter, r *http.Request) {
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
	h.respondWorld(w, r, http.StatusOK, userID, worldID)
}

// ListWorlds handles GET /worlds
func (h *WorldHandler) ListWorlds(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	worlds, err := querybus.AskAs[[]*entities.World](r.Context(), h.queryBus, queries.ListWorldsQuery{UserID: userID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, nonNil(worlds))
}

// UpdateWorld handles PUT /worlds/{worldID}
func (h *WorldHandler) UpdateWorld(w http.ResponseWriter, r *http.Request) {
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
	var req WorldRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := commands.UpdateWorldCommand{
		WorldID:     worldID,
		UserID:      userID,
		Version:     req.Version,
		Name:        req.Name,
		Description: req.Description,
		Settings:    req.Settings,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondWorld(w, r, http.StatusOK, userID, worldID)
}

// DeleteWorld handles DELETE /worlds/{worldID}
func (h *WorldHandler) DeleteWorld(w http.ResponseWriter, r *http.Request) {
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
	if err := h.commandBus.Send(r.Context(), commands.DeleteWorldCommand{WorldID: worldID, UserID: userID}); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("World deleted", zap.String("worldID", worldID.String()), zap.String("userID", userID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorldHandler) respondWorld(w http.ResponseWriter, r *http.Request, status int, userID string, worldID valueobjects.WorldID) {
	world, err := querybus.AskAs[*entities.World](r.Context(), h.queryBus, queries.GetWorldQuery{UserID: userID, WorldID: worldID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, status, world)
}
