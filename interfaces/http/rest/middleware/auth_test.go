package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"worldbuilder/pkg/auth"
	pkgerrors "worldbuilder/pkg/errors"
	"worldbuilder/pkg/observability"
)

const secret = "middleware-secret"

func token(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID:           sub,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// echoUser replies with the user id found in the request context.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(user.UserID))
})

func serve(h http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/user-stories", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate_JWT(t *testing.T) {
	validator, err := auth.NewJWTValidator(auth.JWTConfig{SecretKey: secret})
	require.NoError(t, err)
	logger := zap.NewNop()
	h := Authenticate(NewJWTAuthenticator(validator), pkgerrors.NewErrorHandler(logger), logger)(echoUser)

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"valid", "Bearer " + token(t, "user-1", time.Now().Add(time.Hour)), http.StatusOK, ""},
		{"lowercase scheme", "bearer " + token(t, "user-1", time.Now().Add(time.Hour)), http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, "Missing authentication token"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "Invalid token"},
		{"expired", "Bearer " + token(t, "user-1", time.Now().Add(-time.Minute)), http.StatusUnauthorized, "Token has expired"},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			rec := serve(h, header)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "user-1", rec.Body.String())
				return
			}
			var body pkgerrors.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, string(pkgerrors.ErrorTypeUnauthorized), body.Type)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestAuthenticate_Gateway(t *testing.T) {
	logger := zap.NewNop()
	h := Authenticate(GatewayAuthenticator{}, pkgerrors.NewErrorHandler(logger), logger)(echoUser)

	header := http.Header{}
	header.Set(AuthorizerSubjectHeader, "user-9")
	rec := serve(h, header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-9", rec.Body.String())

	rec = serve(h, http.Header{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetrics_OutsideRouterRecordsUnmatched(t *testing.T) {
	c := observability.NewCollector("test")
	h := Metrics(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/entities/abc", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("DELETE", "unmatched", "204")))
}

func TestStripAuthorizerHeaders_GatewayRejectsForgedSubject(t *testing.T) {
	logger := zap.NewNop()
	h := StripAuthorizerHeaders(Authenticate(GatewayAuthenticator{}, pkgerrors.NewErrorHandler(logger), logger)(echoUser))

	rec := serve(h, http.Header{
		"X-Authorizer-Sub":   {"victim-user"},
		"x-authorizer-email": {"victim@example.com"},
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIsAuthorizerHeader(t *testing.T) {
	assert.True(t, IsAuthorizerHeader("x-authorizer-sub"))
	assert.True(t, IsAuthorizerHeader(AuthorizerEmailHeader))
	assert.False(t, IsAuthorizerHeader("Authorization"))
}
