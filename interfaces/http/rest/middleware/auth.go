package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"worldbuilder/pkg/auth"
	pkgerrors "worldbuilder/pkg/errors"
)

// Headers carrying the API Gateway authorizer result. The Lambda entrypoint
// drops any client-supplied values before setting them; every other server
// strips them with StripAuthorizerHeaders.
const (
	AuthorizerSubjectHeader = "X-Authorizer-Sub"
	AuthorizerEmailHeader   = "X-Authorizer-Email"
)

// IsAuthorizerHeader reports whether name, in any case, is one of the
// authorizer headers.
func IsAuthorizerHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case AuthorizerSubjectHeader, AuthorizerEmailHeader:
		return true
	}
	return false
}

// StripAuthorizerHeaders removes authorizer headers sent by the client.
func StripAuthorizerHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name := range r.Header {
			if IsAuthorizerHeader(name) {
				delete(r.Header, name)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticator resolves the principal of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*auth.UserContext, error)
}

// JWTAuthenticator verifies the bearer token itself.
type JWTAuthenticator struct {
	validator *auth.JWTValidator
}

func NewJWTAuthenticator(validator *auth.JWTValidator) *JWTAuthenticator {
	return &JWTAuthenticator{validator: validator}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (*auth.UserContext, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, auth.ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return nil, auth.ErrInvalidToken
	}
	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return &auth.UserContext{UserID: claims.UserID, Email: claims.Email}, nil
}

// GatewayAuthenticator trusts the subject that API Gateway's JWT authorizer
// already verified. Only the Lambda entrypoint may use it.
type GatewayAuthenticator struct{}

func (GatewayAuthenticator) Authenticate(r *http.Request) (*auth.UserContext, error) {
	sub := r.Header.Get(AuthorizerSubjectHeader)
	if sub == "" {
		return nil, auth.ErrMissingToken
	}
	return &auth.UserContext{UserID: sub, Email: r.Header.Get(AuthorizerEmailHeader)}, nil
}

// Authenticate rejects requests without a valid principal and stores the
// principal in the request context.
func Authenticate(authn Authenticator, errs *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authn.Authenticate(r)
			if err != nil {
				logger.Debug("Authentication failed",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				errs.Handle(w, r, pkgerrors.NewUnauthorizedError(unauthorizedMessage(err)))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
		})
	}
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "Missing authentication token"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "Invalid token signature"
	default:
		return "Invalid token"
	}
}
