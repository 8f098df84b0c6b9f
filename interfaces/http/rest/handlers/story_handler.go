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

// StoryHandler handles story requests.
type StoryHandler struct {
	base
}

func NewStoryHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{base: newBase(commandBus, queryBus, errs, logger)}
}

// StoryElementRequest is one element of a story body. Order in the list is
// the element's position.
type StoryElementRequest struct {
	ID    string                    `json:"id"`
	Kind  entities.StoryElementKind `json:"kind"`
	Title string                    `json:"title"`
	Body  string                    `json:"body"`
}

// StoryRequest is the body of POST /stories and PUT /stories/{storyID}.
// Elements replace the whole list on update.
type StoryRequest struct {
	WorldID  *string               `json:"worldId"`
	Title    string                `json:"title"`
	Synopsis string                `json:"synopsis"`
	Elements []StoryElementRequest `json:"elements"`
	Version  int                   `json:"version"`
}

func (req StoryRequest) worldID() (*valueobjects.WorldID, error) {
	if req.WorldID == nil || *req.WorldID == "" {
		return nil, nil
	}
	id, err := valueobjects.ParseWorldID(*req.WorldID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error()).WithCause(err)
	}
	return &id, nil
}

func (req StoryRequest) elements() []commands.StoryElementInput {
	out := make([]commands.StoryElementInput, 0, len(req.Elements))
	for _, el := range req.Elements {
		out = append(out, commands.StoryElementInput{
			ID:    valueobjects.ElementID(el.ID),
			Kind:  el.Kind,
			Title: el.Title,
			Body:  el.Body,
		})
	}
	return out
}

// ListUserStories handles GET /user-stories. The owner is always the
// authenticated caller.
func (h *StoryHandler) ListUserStories(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stories, err := querybus.AskAs[[]*entities.Story](r.Context(), h.queryBus, queries.ListUserStoriesQuery{UserID: userID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, nonNil(stories))
}

// CreateStory handles POST /stories
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req StoryRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	worldID, err := req.worldID()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := commands.CreateStoryCommand{
		StoryID:  valueobjects.NewStoryID(),
		UserID:   userID,
		WorldID:  worldID,
		Title:    req.Title,
		Synopsis: req.Synopsis,
		Elements: req.elements(),
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondStory(w, r, http.StatusCreated, userID, cmd.StoryID)
}

// GetStory handles GET /stories/{storyID}
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	storyID, err := pathID(r, "storyID", valueobjects.ParseStoryID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondStory(w, r, http.StatusOK, userID, storyID)
}

// UpdateStory handles PUT /stories/{storyID}
func (h *StoryHandler) UpdateStory(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	storyID, err := pathID(r, "storyID", valueobjects.ParseStoryID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req StoryRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	worldID, err := req.worldID()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := commands.UpdateStoryCommand{
		StoryID:  storyID,
		UserID:   userID,
		Version:  req.Version,
		WorldID:  worldID,
		Title:    req.Title,
		Synopsis: req.Synopsis,
		Elements: req.elements(),
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondStory(w, r, http.StatusOK, userID, storyID)
}

// DeleteStory handles DELETE /stories/{storyID}
func (h *StoryHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	storyID, err := pathID(r, "storyID", valueobjects.ParseStoryID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.commandBus.Send(r.Context(), commands.DeleteStoryCommand{StoryID: storyID, UserID: userID}); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StoryHandler) respondStory(w http.ResponseWriter, r *http.Request, status int, userID string, storyID valueobjects.StoryID) {
	story, err := querybus.AskAs[*entities.Story](r.Context(), h.queryBus, queries.GetStoryQuery{UserID: userID, StoryID: storyID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, status, story)
}
