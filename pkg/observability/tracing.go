package observability

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// Tracer opens X-Ray subsegments named "<service>.<operation>". It only
// records inside an existing segment, so it is inert in tests and when
// tracing is off.
type Tracer struct {
	serviceName string
}

func NewTracer(serviceName string) *Tracer {
	return &Tracer{serviceName: serviceName}
}

// Trace runs fn inside a subsegment and records its error.
func (t *Tracer) Trace(ctx context.Context, operation string, fn func(context.Context) error) error {
	if t == nil || xray.GetSegment(ctx) == nil {
		return fn(ctx)
	}
	ctx, seg := xray.BeginSubsegment(ctx, fmt.Sprintf("%s.%s", t.serviceName, operation))
	err := fn(ctx)
	seg.Close(err)
	return err
}

// Annotate adds an indexed annotation to the current segment.
func (t *Tracer) Annotate(ctx context.Context, key, value string) {
	if seg := xray.GetSegment(ctx); seg != nil {
		_ = seg.AddAnnotation(key, value)
	}
}
