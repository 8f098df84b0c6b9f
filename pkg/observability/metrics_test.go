package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Record(t *testing.T) {
	c := NewCollector("test")

	c.RecordHTTP(http.MethodGet, "/entity-relationships/{entityID}", 200, 5*time.Millisecond)
	c.RecordStore("Query", nil, time.Millisecond)
	c.RecordStore("Query", errors.New("throttled"), time.Millisecond)
	c.RecordCascade(3)
	c.RecordEvents(2, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/entity-relationships/{entityID}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StoreOperations.WithLabelValues("Query", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.RelationshipsCascade))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.EventsPublished.WithLabelValues("success")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")

	a.RecordCascade(1)

	assert.Equal(t, 0.0, testutil.ToFloat64(b.CascadeDeletes))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("worldbuilder")
	c.RecordCascade(0)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "worldbuilder_entity_cascade_deletes_total 1")
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordHTTP("GET", "/", 200, 0)
	c.RecordStore("GetItem", nil, 0)
}

func TestTracerWithoutSegmentRunsFn(t *testing.T) {
	called := false
	err := NewTracer("entity").Trace(context.Background(), "delete", func(context.Context) error {
		called = true
		return errors.New("boom")
	})
	assert.True(t, called)
	assert.EqualError(t, err, "boom")
}
