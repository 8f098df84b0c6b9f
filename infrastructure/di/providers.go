package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"worldbuilder/application/commands/bus"
	commandhandlers "worldbuilder/application/commands/handlers"
	"worldbuilder/application/ports"
	querybus "worldbuilder/application/queries/bus"
	queryhandlers "worldbuilder/application/queries/handlers"
	"worldbuilder/application/services"
	"worldbuilder/infrastructure/config"
	"worldbuilder/infrastructure/messaging/eventbridge"
	"worldbuilder/infrastructure/persistence/dynamodb"
	"worldbuilder/infrastructure/persistence/memory"
	"worldbuilder/interfaces/http/rest/middleware"
	"worldbuilder/pkg/auth"
	"worldbuilder/pkg/observability"
)

// Repositories groups the repository ports of one store driver.
type Repositories struct {
	Worlds        ports.WorldRepository
	Entities      ports.EntityRepository
	Relationships ports.RelationshipRepository
	Stories       ports.StoryRepository
	Health        ports.HealthChecker
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

// ProvideMetrics returns nil when metrics are disabled; every consumer
// accepts a nil collector.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector("worldbuilder")
}

// ProvideAWSConfig creates AWS configuration. With tracing on, every SDK
// call becomes an X-Ray subsegment.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.EnableTracing {
		awsv2.AWSV2Instrumentor(&awsCfg.APIOptions)
	}
	return awsCfg, nil
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideRepositories opens the configured store. The DynamoDB table is
// validated before the service starts taking requests.
func ProvideRepositories(
	ctx context.Context,
	cfg *config.Config,
	client *awsdynamodb.Client,
	metrics *observability.Collector,
	logger *zap.Logger,
) (*Repositories, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("Using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return &Repositories{
			Worlds:        store.Worlds(),
			Entities:      store.Entities(),
			Relationships: store.Relationships(),
			Stories:       store.Stories(),
			Health:        store,
		}, nil
	}

	opts := []dynamodb.Option{
		dynamodb.WithGSI1IndexName(cfg.GSI1IndexName),
		dynamodb.WithMetrics(metrics),
	}
	if cfg.BreakerEnabled {
		settings := dynamodb.DefaultBreakerSettings()
		settings.Timeout = cfg.BreakerTimeout
		settings.MinRequests = cfg.BreakerMinRequests
		settings.FailureThreshold = cfg.BreakerFailureThreshold
		opts = append(opts, dynamodb.WithCircuitBreaker(settings))
	}
	store := dynamodb.New(client, cfg.TableName, logger, opts...)
	if err := store.Init(ctx, cfg.SkipSchemaValidation); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	logger.Info("DynamoDB store ready",
		zap.String("table", cfg.TableName),
		zap.String("gsi1", cfg.GSI1IndexName),
	)
	return &Repositories{
		Worlds:        store.Worlds(),
		Entities:      store.Entities(),
		Relationships: store.Relationships(),
		Stories:       store.Stories(),
		Health:        store,
	}, nil
}

// ProvideEventPublisher publishes to EventBridge when a bus is configured
// and drops events otherwise.
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		logger.Info("EVENT_BUS_NAME not set; domain events are not published")
		return eventbridge.NewNoopPublisher()
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideServiceOptions configures every application service alike.
func ProvideServiceOptions(metrics *observability.Collector) []services.Option {
	return []services.Option{services.WithMetrics(metrics)}
}

func ProvideOwnershipGuard(repos *Repositories, logger *zap.Logger) *services.OwnershipGuard {
	return services.NewOwnershipGuard(repos.Worlds, repos.Entities, repos.Relationships, logger)
}

func ProvideEntityService(guard *services.OwnershipGuard, repos *Repositories, publisher ports.EventPublisher, logger *zap.Logger, opts []services.Option) *services.EntityService {
	return services.NewEntityService(guard, repos.Entities, repos.Relationships, publisher, logger, opts...)
}

func ProvideRelationshipService(guard *services.OwnershipGuard, repos *Repositories, publisher ports.EventPublisher, logger *zap.Logger, opts []services.Option) *services.RelationshipService {
	return services.NewRelationshipService(guard, repos.Relationships, publisher, logger, opts...)
}

func ProvideStoryService(guard *services.OwnershipGuard, repos *Repositories, publisher ports.EventPublisher, logger *zap.Logger, opts []services.Option) *services.StoryService {
	return services.NewStoryService(guard, repos.Stories, publisher, logger, opts...)
}

func ProvideWorldService(
	guard *services.OwnershipGuard,
	repos *Repositories,
	entitySvc *services.EntityService,
	storySvc *services.StoryService,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	opts []services.Option,
) *services.WorldService {
	return services.NewWorldService(guard, repos.Worlds, repos.Entities, entitySvc, storySvc, publisher, logger, opts...)
}

// ProvideCommandBus creates the command bus with every handler registered.
func ProvideCommandBus(
	worlds *services.WorldService,
	entities *services.EntityService,
	relationships *services.RelationshipService,
	stories *services.StoryService,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	b := bus.NewCommandBus(bus.LoggingMiddleware(logger))
	err := commandhandlers.Register(b,
		commandhandlers.NewWorldCommandHandler(worlds),
		commandhandlers.NewEntityCommandHandler(entities, logger),
		commandhandlers.NewRelationshipCommandHandler(relationships),
		commandhandlers.NewStoryCommandHandler(stories),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register command handlers: %w", err)
	}
	return b, nil
}

// ProvideQueryBus creates the query bus with every handler registered.
func ProvideQueryBus(
	worlds *services.WorldService,
	entities *services.EntityService,
	relationships *services.RelationshipService,
	stories *services.StoryService,
) (*querybus.QueryBus, error) {
	b := querybus.NewQueryBus()
	err := queryhandlers.Register(b,
		queryhandlers.NewWorldQueryHandler(worlds),
		queryhandlers.NewEntityQueryHandler(entities, relationships),
		queryhandlers.NewStoryQueryHandler(stories),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register query handlers: %w", err)
	}
	return b, nil
}

// ProvideAuthenticator verifies tokens in-process, or trusts API Gateway's
// authorizer in gateway mode.
func ProvideAuthenticator(cfg *config.Config) (middleware.Authenticator, error) {
	if cfg.AuthMode == config.AuthModeGateway {
		return middleware.GatewayAuthenticator{}, nil
	}
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}
	return middleware.NewJWTAuthenticator(validator), nil
}
