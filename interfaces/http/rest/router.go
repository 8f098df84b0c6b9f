package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"worldbuilder/application/commands/bus"
	"worldbuilder/application/ports"
	querybus "worldbuilder/application/queries/bus"
	"worldbuilder/interfaces/http/rest/handlers"
	"worldbuilder/interfaces/http/rest/middleware"
	pkgerrors "worldbuilder/pkg/errors"
	"worldbuilder/pkg/observability"
)

// readyTimeout bounds the store ping of /ready.
const readyTimeout = 2 * time.Second

// Options toggles the optional parts of the router.
type Options struct {
	EnableCORS     bool
	AllowedOrigins []string
	EnableTracing  bool
	// TracingName names the X-Ray segment of each request.
	TracingName string
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus    *bus.CommandBus
	queryBus      *querybus.QueryBus
	authenticator middleware.Authenticator
	health        ports.HealthChecker
	metrics       *observability.Collector
	logger        *zap.Logger
	opts          Options
}

// NewRouter creates a new router instance. metrics may be nil to disable
// /metrics and request instrumentation.
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	authenticator middleware.Authenticator,
	health ports.HealthChecker,
	metrics *observability.Collector,
	logger *zap.Logger,
	opts Options,
) *Router {
	return &Router{
		commandBus:    commandBus,
		queryBus:      queryBus,
		authenticator: authenticator,
		health:        health,
		metrics:       metrics,
		logger:        logger,
		opts:          opts,
	}
}

// Setup configures all routes and middleware. The result is always a
// *chi.Mux; tracing is applied per route group so the Lambda adapter can
// still take the mux.
func (rt *Router) Setup() *chi.Mux {
	errs := pkgerrors.NewErrorHandler(rt.logger)
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger))
	router.Use(errs.Recover)
	if rt.metrics != nil {
		router.Use(middleware.Metrics(rt.metrics))
	}
	if rt.opts.EnableTracing {
		name := rt.opts.TracingName
		if name == "" {
			name = "worldbuilder"
		}
		router.Use(func(next http.Handler) http.Handler {
			return xray.Handler(xray.NewFixedSegmentNamer(name), next)
		})
	}
	if rt.opts.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", handlers.NextCursorHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errs.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errs.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	worlds := handlers.NewWorldHandler(rt.commandBus, rt.queryBus, errs, rt.logger)
	entities := handlers.NewEntityHandler(rt.commandBus, rt.queryBus, errs, rt.logger)
	relationships := handlers.NewRelationshipHandler(rt.commandBus, rt.queryBus, errs, rt.logger)
	stories := handlers.NewStoryHandler(rt.commandBus, rt.queryBus, errs, rt.logger)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.authenticator, errs, rt.logger))

		r.Get("/entity-relationships/{entityID}", entities.ListEntityRelationships)
		r.Get("/user-stories", stories.ListUserStories)
		r.Get("/user-stories/", stories.ListUserStories)

		r.Route("/worlds", func(r chi.Router) {
			r.Post("/", worlds.CreateWorld)
			r.Get("/", worlds.ListWorlds)
			r.Get("/{worldID}", worlds.GetWorld)
			r.Put("/{worldID}", worlds.UpdateWorld)
			r.Delete("/{worldID}", worlds.DeleteWorld)
			r.Get("/{worldID}/entities", entities.ListEntities)
			r.Post("/{worldID}/entities", entities.CreateEntity)
		})

		r.Route("/entities", func(r chi.Router) {
			r.Get("/{entityID}", entities.GetEntity)
			r.Put("/{entityID}", entities.UpdateEntity)
			r.Delete("/{entityID}", entities.DeleteEntity)
		})

		r.Route("/relationships", func(r chi.Router) {
			r.Post("/", relationships.CreateRelationship)
			r.Get("/{relationshipID}", relationships.GetRelationship)
			r.Put("/{relationshipID}", relationships.UpdateRelationship)
			r.Delete("/{relationshipID}", relationships.DeleteRelationship)
		})

		r.Route("/stories", func(r chi.Router) {
			r.Post("/", stories.CreateStory)
			r.Get("/{storyID}", stories.GetStory)
			r.Put("/{storyID}", stories.UpdateStory)
			r.Delete("/{storyID}", stories.DeleteStory)
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "healthy")
}

// readinessCheck reports ready only while the store answers.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := rt.health.Ping(ctx); err != nil {
		rt.logger.Warn("Readiness check failed", zap.Error(err))
		writeStatus(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
