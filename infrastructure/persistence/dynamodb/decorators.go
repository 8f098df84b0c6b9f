package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"worldbuilder/application/ports"
	"worldbuilder/pkg/observability"
)

// breakerAPI runs every call through a circuit breaker. Failed conditions
// and caller cancellations are expected outcomes and do not count as
// failures.
type breakerAPI struct {
	next API
	cb   *gobreaker.CircuitBreaker
}

func newBreakerAPI(next API, settings BreakerSettings, metrics *observability.Collector, logger *zap.Logger) *breakerAPI {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetBreakerState(name, float64(to))
		},
		IsSuccessful: isExpectedOutcome,
	})
	metrics.SetBreakerState(settings.Name, float64(gobreaker.StateClosed))
	return &breakerAPI{next: next, cb: cb}
}

func isExpectedOutcome(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var ccf *types.ConditionalCheckFailedException
	var tce *types.TransactionCanceledException
	return errors.As(err, &ccf) || errors.As(err, &tce)
}

func execute[T any](b *breakerAPI, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %v", ports.ErrUnavailable, err)
	}
	typed, _ := out.(T)
	return typed, err
}

func (b *breakerAPI) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return execute(b, func() (*dynamodb.GetItemOutput, error) { return b.next.GetItem(ctx, params, optFns...) })
}

func (b *breakerAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return execute(b, func() (*dynamodb.PutItemOutput, error) { return b.next.PutItem(ctx, params, optFns...) })
}

func (b *breakerAPI) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return execute(b, func() (*dynamodb.DeleteItemOutput, error) { return b.next.DeleteItem(ctx, params, optFns...) })
}

func (b *breakerAPI) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return execute(b, func() (*dynamodb.QueryOutput, error) { return b.next.Query(ctx, params, optFns...) })
}

func (b *breakerAPI) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return execute(b, func() (*dynamodb.TransactWriteItemsOutput, error) {
		return b.next.TransactWriteItems(ctx, params, optFns...)
	})
}

func (b *breakerAPI) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return execute(b, func() (*dynamodb.DescribeTableOutput, error) { return b.next.DescribeTable(ctx, params, optFns...) })
}

// instrumentedAPI records a count and latency per DynamoDB operation.
type instrumentedAPI struct {
	next    API
	metrics *observability.Collector
}

func newInstrumentedAPI(next API, metrics *observability.Collector) *instrumentedAPI {
	return &instrumentedAPI{next: next, metrics: metrics}
}

func record[T any](m *observability.Collector, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	m.RecordStore(op, err, time.Since(start))
	return out, err
}

func (a *instrumentedAPI) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return record(a.metrics, "GetItem", func() (*dynamodb.GetItemOutput, error) { return a.next.GetItem(ctx, params, optFns...) })
}

func (a *instrumentedAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return record(a.metrics, "PutItem", func() (*dynamodb.PutItemOutput, error) { return a.next.PutItem(ctx, params, optFns...) })
}

func (a *instrumentedAPI) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return record(a.metrics, "DeleteItem", func() (*dynamodb.DeleteItemOutput, error) { return a.next.DeleteItem(ctx, params, optFns...) })
}

func (a *instrumentedAPI) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return record(a.metrics, "Query", func() (*dynamodb.QueryOutput, error) { return a.next.Query(ctx, params, optFns...) })
}

func (a *instrumentedAPI) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return record(a.metrics, "TransactWriteItems", func() (*dynamodb.TransactWriteItemsOutput, error) {
		return a.next.TransactWriteItems(ctx, params, optFns...)
	})
}

func (a *instrumentedAPI) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return record(a.metrics, "DescribeTable", func() (*dynamodb.DescribeTableOutput, error) {
		return a.next.DescribeTable(ctx, params, optFns...)
	})
}
