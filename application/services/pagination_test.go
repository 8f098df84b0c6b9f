package services

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	pkgerrors "worldbuilder/pkg/errors"
)

var testTime = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func sortedRels(n int) []*entities.Relationship {
	out := make([]*entities.Relationship, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &entities.Relationship{
			ID:        valueobjects.NewRelationshipID(),
			CreatedAt: testTime.Add(time.Duration(i/2) * time.Second),
		})
	}
	return out
}

func TestPaginate_DefaultLimit(t *testing.T) {
	page, err := paginate(sortedRels(DefaultPageSize+5), ListOptions{})
	require.NoError(t, err)
	assert.Len(t, page.Items, DefaultPageSize)
	assert.NotEmpty(t, page.NextCursor)
}

func TestPaginate_LimitClampedToMax(t *testing.T) {
	page, err := paginate(sortedRels(MaxPageSize+1), ListOptions{Limit: 10_000})
	require.NoError(t, err)
	assert.Len(t, page.Items, MaxPageSize)
}

func TestPaginate_CursorWithTiedTimestamps(t *testing.T) {
	rels := sortedRels(6)

	first, err := paginate(rels, ListOptions{Limit: 3})
	require.NoError(t, err)
	second, err := paginate(rels, ListOptions{Limit: 3, Cursor: first.NextCursor})
	require.NoError(t, err)

	assert.Equal(t, rels[:3], first.Items)
	assert.Equal(t, rels[3:], second.Items)
	assert.Empty(t, second.NextCursor)
}

func TestPaginate_CursorPastDeletedItem(t *testing.T) {
	rels := sortedRels(4)
	first, err := paginate(rels, ListOptions{Limit: 2})
	require.NoError(t, err)

	// The last item of the first page is removed before the next request.
	remaining := append([]*entities.Relationship{rels[0]}, rels[2:]...)
	second, err := paginate(remaining, ListOptions{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)

	assert.Equal(t, rels[2:], second.Items)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, c := range []string{
		"not base64!",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("yesterday|abc")),
	} {
		_, err := decodeCursor(c)
		assert.True(t, pkgerrors.IsValidation(err), c)
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionBoth, d)

	d, err = ParseDirection("Outgoing")
	require.NoError(t, err)
	assert.Equal(t, DirectionOutgoing, d)

	_, err = ParseDirection("up")
	assert.Error(t, err)
}
