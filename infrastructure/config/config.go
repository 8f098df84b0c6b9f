package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreDriverDynamoDB = "dynamodb"
	StoreDriverMemory   = "memory"

	AuthModeJWT     = "jwt"
	AuthModeGateway = "gateway"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress   string        `env:"SERVER_ADDRESS" envDefault:":8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// AWS configuration
	AWSRegion            string `env:"AWS_REGION" envDefault:"us-west-2"`
	TableName            string `env:"TABLE_NAME" envDefault:"worldbuilder"`
	DynamoDBEndpoint     string `env:"DYNAMODB_ENDPOINT"`
	GSI1IndexName        string `env:"GSI1_INDEX_NAME" envDefault:"GSI1"`
	StoreDriver          string `env:"STORE_DRIVER" envDefault:"dynamodb"`
	SkipSchemaValidation bool   `env:"SKIP_SCHEMA_VALIDATION"`
	EventBusName         string `env:"EVENT_BUS_NAME"`

	// Store circuit breaker
	BreakerEnabled          bool          `env:"STORE_BREAKER_ENABLED" envDefault:"true"`
	BreakerTimeout          time.Duration `env:"STORE_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerMinRequests      uint32        `env:"STORE_BREAKER_MIN_REQUESTS" envDefault:"10"`
	BreakerFailureThreshold float64       `env:"STORE_BREAKER_FAILURE_THRESHOLD" envDefault:"0.6"`

	// Authentication
	AuthMode    string   `env:"AUTH_MODE" envDefault:"jwt"`
	JWTSecret   string   `env:"JWT_SECRET"`
	JWTIssuer   string   `env:"JWT_ISSUER"`
	JWTAudience []string `env:"JWT_AUDIENCE" envSeparator:","`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Feature flags
	EnableMetrics      bool     `env:"ENABLE_METRICS" envDefault:"true"`
	EnableTracing      bool     `env:"ENABLE_TRACING"`
	EnableCORS         bool     `env:"ENABLE_CORS" envDefault:"true"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	return load(env.Options{})
}

// LoadFromMap loads configuration from vars instead of the process
// environment.
func LoadFromMap(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverDynamoDB, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverDynamoDB, StoreDriverMemory)
	}
	switch c.AuthMode {
	case AuthModeJWT, AuthModeGateway:
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q", AuthModeJWT, AuthModeGateway)
	}
	if c.BreakerFailureThreshold <= 0 || c.BreakerFailureThreshold > 1 {
		return errors.New("STORE_BREAKER_FAILURE_THRESHOLD must be in (0, 1]")
	}

	if c.IsProduction() {
		if c.AuthMode == AuthModeJWT && c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required in production")
		}
		if c.TableName == "" {
			return errors.New("TABLE_NAME is required")
		}
		if c.StoreDriver == StoreDriverMemory {
			return errors.New("the memory store driver is not allowed in production")
		}
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
