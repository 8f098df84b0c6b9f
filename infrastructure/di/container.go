package di

import (
	"go.uber.org/zap"

	"worldbuilder/application/commands/bus"
	querybus "worldbuilder/application/queries/bus"
	"worldbuilder/infrastructure/config"
	"worldbuilder/interfaces/http/rest"
	"worldbuilder/interfaces/http/rest/middleware"
	"worldbuilder/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Collector
	Repositories  *Repositories
	CommandBus    *bus.CommandBus
	QueryBus      *querybus.QueryBus
	Authenticator middleware.Authenticator
}

// Router builds the HTTP router from the container.
func (c *Container) Router() *rest.Router {
	return rest.NewRouter(
		c.CommandBus,
		c.QueryBus,
		c.Authenticator,
		c.Repositories.Health,
		c.Metrics,
		c.Logger,
		rest.Options{
			EnableCORS:     c.Config.EnableCORS,
			AllowedOrigins: c.Config.CORSAllowedOrigins,
			EnableTracing:  c.Config.EnableTracing,
		},
	)
}
