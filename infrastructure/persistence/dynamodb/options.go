package dynamodb

import (
	"time"

	"worldbuilder/pkg/observability"
)

const DefaultGSI1IndexName = "GSI1"

// Option configures a Store.
type Option func(*options)

type options struct {
	gsi1IndexName string
	breaker       *BreakerSettings
	metrics       *observability.Collector
}

func newOptions() *options {
	return &options{gsi1IndexName: DefaultGSI1IndexName}
}

// BreakerSettings tunes the circuit breaker around store calls.
type BreakerSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// The breaker opens once at least MinRequests calls were seen and the
	// failure ratio reaches FailureThreshold.
	MinRequests      uint32
	FailureThreshold float64
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "dynamodb",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		MinRequests:      10,
		FailureThreshold: 0.6,
	}
}

// WithGSI1IndexName overrides the name of the world index.
func WithGSI1IndexName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.gsi1IndexName = name
		}
	}
}

// WithCircuitBreaker guards every call with a circuit breaker. An open
// breaker fails calls with ports.ErrUnavailable.
func WithCircuitBreaker(settings BreakerSettings) Option {
	return func(o *options) {
		o.breaker = &settings
	}
}

// WithMetrics records per-operation counts and latencies.
func WithMetrics(c *observability.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}
