// Package services is the entity access layer. Every operation takes the
// authenticated user id explicitly and authorizes through OwnershipGuard
// before touching data.
package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"worldbuilder/application/ports"
	"worldbuilder/domain/events"
	pkgerrors "worldbuilder/pkg/errors"
	"worldbuilder/pkg/observability"
)

const defaultCascadeSweeps = 5

type options struct {
	clock         func() time.Time
	metrics       *observability.Collector
	cascadeSweeps int
}

// Option configures a service.
type Option func(*options)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithMetrics records cascade and event counters on c.
func WithMetrics(c *observability.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithCascadeSweeps bounds how many times a delete re-lists relationships,
// or a World delete its entities, before giving up.
func WithCascadeSweeps(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cascadeSweeps = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		clock:         time.Now,
		cascadeSweeps: defaultCascadeSweeps,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) now() time.Time {
	return o.clock().UTC()
}

// storeError maps repository sentinels to application errors. Guard
// failures read as NotFound so a foreign World is indistinguishable from a
// missing one.
func storeError(err error, resource, operation string) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.IsAppError(err):
		return err
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrGuardFailed):
		return pkgerrors.NewNotFoundError(resource).WithCause(err)
	case errors.Is(err, ports.ErrAlreadyExists):
		return pkgerrors.NewConflictError(resource + " already exists").WithCause(err)
	case errors.Is(err, ports.ErrConflict):
		return pkgerrors.NewConflictError(resource + " was modified concurrently").WithCause(err)
	case errors.Is(err, ports.ErrUnavailable):
		return pkgerrors.NewUnavailableError("store").WithCause(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return pkgerrors.NewDatabaseError(operation, err)
	}
}

func requireUser(userID string) error {
	if userID == "" {
		return pkgerrors.NewUnauthorizedError("missing user")
	}
	return nil
}

func checkVersion(resource string, current, expected int) error {
	if current != expected {
		return pkgerrors.NewConflictError(resource + " version mismatch").
			WithDetails(map[string]interface{}{"currentVersion": current})
	}
	return nil
}

// eventSink publishes best effort. A failed publish is logged and counted
// but never fails the write that produced the event.
type eventSink struct {
	publisher ports.EventPublisher
	logger    *zap.Logger
	metrics   *observability.Collector
}

func (s eventSink) publish(ctx context.Context, evs ...events.DomainEvent) {
	if s.publisher == nil || len(evs) == 0 {
		return
	}
	err := s.publisher.PublishBatch(context.WithoutCancel(ctx), evs)
	s.metrics.RecordEvents(len(evs), err)
	if err != nil {
		s.logger.Warn("Failed to publish domain events",
			zap.String("event_type", evs[0].GetEventType()),
			zap.Int("count", len(evs)),
			zap.Error(err),
		)
	}
}
