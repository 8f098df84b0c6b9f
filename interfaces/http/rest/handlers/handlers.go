// Package handlers translates HTTP requests into commands and queries.
// Writes go through the command bus and the response body is read back
// through the query bus.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"worldbuilder/application/commands/bus"
	querybus "worldbuilder/application/queries/bus"
	"worldbuilder/pkg/auth"
	pkgerrors "worldbuilder/pkg/errors"
)

// NextCursorHeader carries the cursor of the next relationship page.
const NextCursorHeader = "X-Next-Cursor"

// maxBodyBytes bounds request bodies; a story with many elements is the
// largest legitimate payload.
const maxBodyBytes = 4 << 20

// base holds what every handler needs.
type base struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

func newBase(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) base {
	return base{commandBus: commandBus, queryBus: queryBus, errors: errs, logger: logger}
}

func (h base) userID(r *http.Request) (string, error) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		return "", pkgerrors.NewUnauthorizedError("Unauthorized")
	}
	return user.UserID, nil
}

func (h base) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return pkgerrors.NewValidationError("invalid request body").WithCause(err)
	}
	return nil
}

func (h base) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h base) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.errors.Handle(w, r, err)
}

// pathID parses the URL parameter name with parse. A malformed id is a
// bad request.
func pathID[T any](r *http.Request, name string, parse func(string) (T, error)) (T, error) {
	id, err := parse(chi.URLParam(r, name))
	if err != nil {
		var zero T
		return zero, pkgerrors.NewValidationError(err.Error()).WithCause(err)
	}
	return id, nil
}

// nonNil keeps empty listings encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
