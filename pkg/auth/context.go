package auth

import (
	"context"
	"errors"
)

// UserContext is the authenticated principal of a request.
type UserContext struct {
	UserID string
	Email  string
}

type contextKey string

const userContextKey contextKey = "user"

// ErrNoUser is returned when a request context carries no principal.
var ErrNoUser = errors.New("user not found in context")

// SetUserInContext stores user in ctx.
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext returns the principal stored by SetUserInContext.
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil || user.UserID == "" {
		return nil, ErrNoUser
	}
	return user, nil
}
