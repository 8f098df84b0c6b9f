package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	commandbus "worldbuilder/application/commands/bus"
	commandhandlers "worldbuilder/application/commands/handlers"
	"worldbuilder/application/ports"
	querybus "worldbuilder/application/queries/bus"
	queryhandlers "worldbuilder/application/queries/handlers"
	"worldbuilder/application/services"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	"worldbuilder/infrastructure/messaging/eventbridge"
	"worldbuilder/infrastructure/persistence/memory"
	"worldbuilder/interfaces/http/rest"
	"worldbuilder/interfaces/http/rest/handlers"
	"worldbuilder/interfaces/http/rest/middleware"
	"worldbuilder/pkg/auth"
	pkgerrors "worldbuilder/pkg/errors"
	"worldbuilder/pkg/observability"
)

const secret = "router-secret"

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("table unreachable") }

type server struct {
	t   *testing.T
	mux *chi.Mux
}

func newServer(t *testing.T, health ports.HealthChecker) *server {
	t.Helper()
	store := memory.NewStore()
	logger := zap.NewNop()
	pub := eventbridge.NewNoopPublisher()

	guard := services.NewOwnershipGuard(store.Worlds(), store.Entities(), store.Relationships(), logger)
	entitySvc := services.NewEntityService(guard, store.Entities(), store.Relationships(), pub, logger)
	relSvc := services.NewRelationshipService(guard, store.Relationships(), pub, logger)
	storySvc := services.NewStoryService(guard, store.Stories(), pub, logger)
	worldSvc := services.NewWorldService(guard, store.Worlds(), store.Entities(), entitySvc, storySvc, pub, logger)

	cb := commandbus.NewCommandBus()
	require.NoError(t, commandhandlers.Register(cb,
		commandhandlers.NewWorldCommandHandler(worldSvc),
		commandhandlers.NewEntityCommandHandler(entitySvc, logger),
		commandhandlers.NewRelationshipCommandHandler(relSvc),
		commandhandlers.NewStoryCommandHandler(storySvc),
	))
	qb := querybus.NewQueryBus()
	require.NoError(t, queryhandlers.Register(qb,
		queryhandlers.NewWorldQueryHandler(worldSvc),
		queryhandlers.NewEntityQueryHandler(entitySvc, relSvc),
		queryhandlers.NewStoryQueryHandler(storySvc),
	))

	validator, err := auth.NewJWTValidator(auth.JWTConfig{SecretKey: secret})
	require.NoError(t, err)
	if health == nil {
		health = store
	}
	router := rest.NewRouter(cb, qb, middleware.NewJWTAuthenticator(validator), health,
		observability.NewCollector("test"), logger, rest.Options{EnableCORS: true, AllowedOrigins: []string{"*"}})
	return &server{t: t, mux: router.Setup()}
}

func (s *server) token(sub string) string {
	s.t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID:           sub,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))
	require.NoError(s.t, err)
	return signed
}

func (s *server) do(user, method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(user))
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[pkgerrors.ErrorResponse](t, rec).Type
}

// seed creates a world with two entities joined by one relationship.
func (s *server) seed(user string) (entities.World, entities.Entity, entities.Entity, entities.Relationship) {
	s.t.Helper()
	rec := s.do(user, http.MethodPost, "/worlds", map[string]interface{}{"name": "Arda"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	world := decode[entities.World](s.t, rec)

	rec = s.do(user, http.MethodPost, "/worlds/"+world.ID.String()+"/entities", map[string]interface{}{"kind": "character", "name": "Frodo"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decode[entities.Entity](s.t, rec)

	rec = s.do(user, http.MethodPost, "/worlds/"+world.ID.String()+"/entities", map[string]interface{}{"kind": "thing", "name": "The Ring"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[entities.Entity](s.t, rec)

	rec = s.do(user, http.MethodPost, "/relationships", map[string]interface{}{
		"sourceId": a.ID.String(), "targetId": b.ID.String(), "label": "carries",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	rel := decode[entities.Relationship](s.t, rec)
	return world, a, b, rel
}

func TestHealthAndReady(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusOK, s.do("", http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, s.do("", http.MethodGet, "/ready", nil).Code)
	assert.Equal(t, http.StatusOK, s.do("", http.MethodGet, "/metrics", nil).Code)

	down := newServer(t, failingPinger{})
	assert.Equal(t, http.StatusServiceUnavailable, down.do("", http.MethodGet, "/ready", nil).Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newServer(t, nil)
	for _, path := range []string{"/user-stories", "/worlds", "/entity-relationships/0190a0b4-7c3e-7000-8000-000000000001"} {
		rec := s.do("", http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestEntityRelationships(t *testing.T) {
	s := newServer(t, nil)
	_, a, b, rel := s.seed("alice")

	t.Run("both endpoints see the relationship", func(t *testing.T) {
		for _, id := range []string{a.ID.String(), b.ID.String()} {
			rec := s.do("alice", http.MethodGet, "/entity-relationships/"+id, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			got := decode[[]entities.Relationship](t, rec)
			require.Len(t, got, 1)
			assert.Equal(t, rel.ID, got[0].ID)
		}
	})

	t.Run("other user gets not found", func(t *testing.T) {
		rec := s.do("mallory", http.MethodGet, "/entity-relationships/"+a.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, string(pkgerrors.ErrorTypeNotFound), errorType(t, rec))
	})

	t.Run("unknown entity is not found", func(t *testing.T) {
		rec := s.do("alice", http.MethodGet, "/entity-relationships/0190a0b4-7c3e-7000-8000-000000000001", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is a bad request", func(t *testing.T) {
		rec := s.do("alice", http.MethodGet, "/entity-relationships/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad direction and limit", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, s.do("alice", http.MethodGet, "/entity-relationships/"+a.ID.String()+"?direction=sideways", nil).Code)
		assert.Equal(t, http.StatusBadRequest, s.do("alice", http.MethodGet, "/entity-relationships/"+a.ID.String()+"?limit=ten", nil).Code)
	})

	t.Run("direction filter", func(t *testing.T) {
		rec := s.do("alice", http.MethodGet, "/entity-relationships/"+a.ID.String()+"?direction=incoming", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]\n", rec.Body.String())
	})
}

func TestEntityRelationships_Pagination(t *testing.T) {
	s := newServer(t, nil)
	world, a, _, first := s.seed("alice")

	rec := s.do("alice", http.MethodPost, "/worlds/"+world.ID.String()+"/entities", map[string]interface{}{"kind": "event", "name": "Council"})
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[entities.Entity](t, rec)
	rec = s.do("alice", http.MethodPost, "/relationships", map[string]interface{}{
		"sourceId": c.ID.String(), "targetId": a.ID.String(), "label": "summons",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[entities.Relationship](t, rec)

	rec = s.do("alice", http.MethodGet, "/entity-relationships/"+a.ID.String()+"?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cursor := rec.Header().Get(handlers.NextCursorHeader)
	require.NotEmpty(t, cursor)
	page := decode[[]entities.Relationship](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	rec = s.do("alice", http.MethodGet, "/entity-relationships/"+a.ID.String()+"?limit=1&cursor="+cursor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(handlers.NextCursorHeader))
	page = decode[[]entities.Relationship](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)
}

func TestEntityRelationships_ValidAt(t *testing.T) {
	s := newServer(t, nil)
	world, a, _, always := s.seed("alice")

	rec := s.do("alice", http.MethodPost, "/worlds/"+world.ID.String()+"/entities", map[string]interface{}{"kind": "event", "name": "Siege"})
	require.Equal(t, http.StatusCreated, rec.Code)
	siege := decode[entities.Entity](t, rec)
	rec = s.do("alice", http.MethodPost, "/relationships", map[string]interface{}{
		"sourceId": a.ID.String(), "targetId": siege.ID.String(), "label": "defends",
		"validFrom": "2020-01-01T00:00:00Z", "validTo": "2020-12-31T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	bounded := decode[entities.Relationship](t, rec)

	cases := []struct {
		name string
		at   string
		want []valueobjects.RelationshipID
	}{
		{name: "no filter", at: "", want: []valueobjects.RelationshipID{always.ID, bounded.ID}},
		{name: "inside window", at: "2020-06-01T00:00:00Z", want: []valueobjects.RelationshipID{always.ID, bounded.ID}},
		{name: "after window", at: "2021-06-01T00:00:00Z", want: []valueobjects.RelationshipID{always.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := "/entity-relationships/" + a.ID.String()
			if tc.at != "" {
				path += "?at=" + tc.at
			}
			rec := s.do("alice", http.MethodGet, path, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			var got []valueobjects.RelationshipID
			for _, rel := range decode[[]entities.Relationship](t, rec) {
				got = append(got, rel.ID)
			}
			assert.ElementsMatch(t, tc.want, got)
		})
	}

	t.Run("malformed time is a bad request", func(t *testing.T) {
		rec := s.do("alice", http.MethodGet, "/entity-relationships/"+a.ID.String()+"?at=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(pkgerrors.ErrorTypeValidation), errorType(t, rec))
	})
}

func TestDeleteEntityCascades(t *testing.T) {
	s := newServer(t, nil)
	_, a, b, _ := s.seed("alice")

	assert.Equal(t, http.StatusNotFound, s.do("mallory", http.MethodDelete, "/entities/"+a.ID.String(), nil).Code)
	require.Equal(t, http.StatusNoContent, s.do("alice", http.MethodDelete, "/entities/"+a.ID.String(), nil).Code)

	rec := s.do("alice", http.MethodGet, "/entity-relationships/"+b.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]entities.Relationship](t, rec))

	assert.Equal(t, http.StatusNotFound, s.do("alice", http.MethodGet, "/entity-relationships/"+a.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("alice", http.MethodGet, "/entities/"+a.ID.String(), nil).Code)
}

func TestUpdateVersioning(t *testing.T) {
	s := newServer(t, nil)
	world, a, _, rel := s.seed("alice")

	rec := s.do("alice", http.MethodPut, "/entities/"+a.ID.String(), map[string]interface{}{"name": "Frodo Baggins", "version": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[entities.Entity](t, rec).Version)

	rec = s.do("alice", http.MethodPut, "/entities/"+a.ID.String(), map[string]interface{}{"name": "Mr. Underhill", "version": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do("alice", http.MethodPut, "/worlds/"+world.ID.String(), map[string]interface{}{"name": "Middle-earth", "version": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Middle-earth", decode[entities.World](t, rec).Name)

	rec = s.do("alice", http.MethodPut, "/relationships/"+rel.ID.String(), map[string]interface{}{"label": "bears", "version": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bears", decode[entities.Relationship](t, rec).Label)

	rec = s.do("alice", http.MethodPut, "/worlds/"+world.ID.String(), map[string]interface{}{"name": "Arda"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelationshipValidation(t *testing.T) {
	s := newServer(t, nil)
	_, a, _, _ := s.seed("alice")

	rec := s.do("alice", http.MethodPost, "/relationships", map[string]interface{}{
		"sourceId": a.ID.String(), "targetId": a.ID.String(), "label": "mirrors",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("alice", http.MethodPost, "/relationships", map[string]interface{}{
		"sourceId": "nope", "targetId": a.ID.String(), "label": "mirrors",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("alice", http.MethodPost, "/relationships", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserStories(t *testing.T) {
	s := newServer(t, nil)
	world, _, _, _ := s.seed("alice")

	rec := s.do("alice", http.MethodPost, "/stories", map[string]interface{}{
		"title":   "There and Back Again",
		"worldId": world.ID.String(),
		"elements": []map[string]string{
			{"kind": "chapter", "title": "An Unexpected Party"},
			{"kind": "plot_point", "title": "Riddles in the Dark"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	story := decode[entities.Story](t, rec)
	require.Len(t, story.Elements, 2)
	assert.Equal(t, 1, story.Elements[1].Position)

	rec = s.do("mallory", http.MethodPost, "/stories", map[string]interface{}{"title": "Stolen", "worldId": world.ID.String()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, http.StatusCreated, s.do("mallory", http.MethodPost, "/stories", map[string]interface{}{"title": "Unlinked"}).Code)

	for _, path := range []string{"/user-stories", "/user-stories/"} {
		rec = s.do("alice", http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		got := decode[[]entities.Story](t, rec)
		require.Len(t, got, 1, path)
		assert.Equal(t, story.ID, got[0].ID)
	}

	assert.Equal(t, http.StatusNotFound, s.do("mallory", http.MethodGet, "/stories/"+story.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do("alice", http.MethodDelete, "/stories/"+story.ID.String(), nil).Code)
	assert.Equal(t, "[]\n", s.do("alice", http.MethodGet, "/user-stories", nil).Body.String())
}

func TestDeleteWorld(t *testing.T) {
	s := newServer(t, nil)
	world, a, _, _ := s.seed("alice")

	rec := s.do("alice", http.MethodGet, "/worlds/"+world.ID.String()+"/entities?kind=character", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]entities.Entity](t, rec), 1)

	require.Equal(t, http.StatusNoContent, s.do("alice", http.MethodDelete, "/worlds/"+world.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("alice", http.MethodGet, "/worlds/"+world.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("alice", http.MethodGet, "/entities/"+a.ID.String(), nil).Code)
	assert.Equal(t, "[]\n", s.do("alice", http.MethodGet, "/worlds", nil).Body.String())
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do("alice", http.MethodGet, "/nodes", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.ErrorTypeNotFound), errorType(t, rec))
}
