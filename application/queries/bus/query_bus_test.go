package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countQuery struct{}

func (countQuery) Validate() error { return nil }

func TestQueryBus_AskAs(t *testing.T) {
	b := NewQueryBus()
	require.NoError(t, b.Register(countQuery{}, QueryHandlerFunc(func(context.Context, Query) (interface{}, error) {
		return 42, nil
	})))

	n, err := AskAs[int](context.Background(), b, countQuery{})
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = AskAs[string](context.Background(), b, countQuery{})
	assert.ErrorContains(t, err, "returned int")
}
