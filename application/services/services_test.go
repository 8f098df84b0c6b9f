package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	"worldbuilder/domain/events"
	"worldbuilder/infrastructure/persistence/memory"
	pkgerrors "worldbuilder/pkg/errors"
)

const (
	alice = "user-alice"
	bob   = "user-bob"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{e})
}

func (p *recordingPublisher) PublishBatch(_ context.Context, evs []events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) ofType(t string) []events.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.DomainEvent
	for _, e := range p.events {
		if e.GetEventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// steppingClock advances one millisecond per call so creation times are
// distinct and ordered.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type harness struct {
	store         *memory.Store
	publisher     *recordingPublisher
	guard         *OwnershipGuard
	worlds        *WorldService
	entities      *EntityService
	relationships *RelationshipService
	stories       *StoryService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	clock := &steppingClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	logger := zap.NewNop()
	opts := []Option{WithClock(clock.Now)}

	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), store.Relationships(), logger)
	entitySvc := NewEntityService(guard, store.Entities(), store.Relationships(), pub, logger, opts...)
	storySvc := NewStoryService(guard, store.Stories(), pub, logger, opts...)
	return &harness{
		store:         store,
		publisher:     pub,
		guard:         guard,
		entities:      entitySvc,
		stories:       storySvc,
		relationships: NewRelationshipService(guard, store.Relationships(), pub, logger, opts...),
		worlds:        NewWorldService(guard, store.Worlds(), store.Entities(), entitySvc, storySvc, pub, logger, opts...),
	}
}

func (h *harness) world(t *testing.T, owner string) *entities.World {
	t.Helper()
	w, err := h.worlds.Create(context.Background(), owner, valueobjects.NewWorldID(), WorldInput{Name: "World of " + owner})
	require.NoError(t, err)
	return w
}

func (h *harness) entity(t *testing.T, owner string, w *entities.World, name string) *entities.Entity {
	t.Helper()
	e, err := h.entities.Create(context.Background(), owner, valueobjects.NewEntityID(), w.ID, entities.KindCharacter, name, nil)
	require.NoError(t, err)
	return e
}

func (h *harness) link(t *testing.T, owner string, a, b *entities.Entity) *entities.Relationship {
	t.Helper()
	r, err := h.relationships.Create(context.Background(), owner, valueobjects.NewRelationshipID(), a.ID, b.ID, RelationshipInput{Label: "knows"})
	require.NoError(t, err)
	return r
}

func (h *harness) list(t *testing.T, owner string, e *entities.Entity) []*entities.Relationship {
	t.Helper()
	page, err := h.relationships.ListByEntity(context.Background(), owner, e.ID, ListOptions{Limit: MaxPageSize})
	require.NoError(t, err)
	return page.Items
}

func ids(rels []*entities.Relationship) []valueobjects.RelationshipID {
	out := make([]valueobjects.RelationshipID, 0, len(rels))
	for _, r := range rels {
		out = append(out, r.ID)
	}
	return out
}

func TestListRelationshipsByEntity_ForeignEntityIsNotFound(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	a := h.entity(t, alice, w, "Frodo")
	b := h.entity(t, alice, w, "Sam")
	h.link(t, alice, a, b)

	// Act
	_, errExisting := h.relationships.ListByEntity(ctx, bob, a.ID, ListOptions{})
	_, errMissing := h.relationships.ListByEntity(ctx, bob, valueobjects.NewEntityID(), ListOptions{})

	// Assert
	require.Error(t, errExisting)
	require.Error(t, errMissing)
	assert.True(t, pkgerrors.IsNotFound(errExisting))
	assert.True(t, pkgerrors.IsNotFound(errMissing))
	assert.Equal(t, pkgerrors.GetAppError(errMissing).Message, pkgerrors.GetAppError(errExisting).Message)
}

func TestListStoriesByUser_OnlyOwnStories(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, title := range []string{"First", "Second"} {
		_, err := h.stories.Create(ctx, alice, valueobjects.NewStoryID(), StoryInput{Title: title})
		require.NoError(t, err)
	}
	_, err := h.stories.Create(ctx, bob, valueobjects.NewStoryID(), StoryInput{Title: "Bob's"})
	require.NoError(t, err)

	stories, err := h.stories.ListByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, "First", stories[0].Title)
	assert.Equal(t, "Second", stories[1].Title)
	for _, s := range stories {
		assert.Equal(t, alice, s.OwnerID)
	}

	none, err := h.stories.ListByUser(ctx, "user-carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListRelationshipsByEntity_Symmetry(t *testing.T) {
	h := newHarness(t)
	w := h.world(t, alice)
	a := h.entity(t, alice, w, "Frodo")
	b := h.entity(t, alice, w, "Sam")
	c := h.entity(t, alice, w, "Gollum")

	ab := h.link(t, alice, a, b)
	ca := h.link(t, alice, c, a)

	fromA := h.list(t, alice, a)
	fromB := h.list(t, alice, b)

	assert.Equal(t, []valueobjects.RelationshipID{ab.ID, ca.ID}, ids(fromA))
	assert.Equal(t, []valueobjects.RelationshipID{ab.ID}, ids(fromB))
}

func TestListRelationshipsByEntity_Direction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	a := h.entity(t, alice, w, "Frodo")
	b := h.entity(t, alice, w, "Sam")
	out := h.link(t, alice, a, b)
	in := h.link(t, alice, b, a)

	page, err := h.relationships.ListByEntity(ctx, alice, a.ID, ListOptions{Direction: DirectionOutgoing})
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.RelationshipID{out.ID}, ids(page.Items))

	page, err = h.relationships.ListByEntity(ctx, alice, a.ID, ListOptions{Direction: DirectionIncoming})
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.RelationshipID{in.ID}, ids(page.Items))

	_, err = h.relationships.ListByEntity(ctx, alice, a.ID, ListOptions{Direction: "sideways"})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestDeleteEntity_CascadesRelationships(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	a := h.entity(t, alice, w, "Boromir")
	b := h.entity(t, alice, w, "Aragorn")
	c := h.entity(t, alice, w, "Faramir")
	h.link(t, alice, a, b)
	h.link(t, alice, c, a)
	bc := h.link(t, alice, b, c)

	// Act
	removed, err := h.entities.Delete(ctx, alice, a.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []valueobjects.RelationshipID{bc.ID}, ids(h.list(t, alice, b)))
	assert.Equal(t, []valueobjects.RelationshipID{bc.ID}, ids(h.list(t, alice, c)))

	_, err = h.entities.Get(ctx, alice, a.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	deleted := h.publisher.ofType(events.TypeEntityDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, 2, deleted[0].(events.EntityDeleted).RelationshipsDeleted)
}

func TestDeleteEntity_ResumesInterruptedCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	a := h.entity(t, alice, w, "Smeagol")
	b := h.entity(t, alice, w, "Deagol")
	h.link(t, alice, a, b)

	// Simulate a crash right after the tombstone was written.
	require.NoError(t, h.store.Entities().MarkDeleting(ctx, a))

	_, err := h.relationships.ListByEntity(ctx, alice, a.ID, ListOptions{})
	assert.True(t, pkgerrors.IsNotFound(err), "deleting entity is invisible")

	_, err = h.relationships.Create(ctx, alice, valueobjects.NewRelationshipID(), b.ID, a.ID, RelationshipInput{Label: "kills"})
	assert.True(t, pkgerrors.IsNotFound(err), "deleting entity cannot gain relationships")

	removed, err := h.entities.Delete(ctx, alice, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, h.list(t, alice, b))
}

func TestListRelationshipsByEntity_Idempotent(t *testing.T) {
	h := newHarness(t)
	w := h.world(t, alice)
	a := h.entity(t, alice, w, "Merry")
	for i := 0; i < 5; i++ {
		h.link(t, alice, a, h.entity(t, alice, w, "Friend"))
	}

	first := h.list(t, alice, a)
	second := h.list(t, alice, a)

	assert.Equal(t, first, second)
	assert.Len(t, first, 5)
}

func TestListRelationshipsByEntity_EmptyVersusMissing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	lonely := h.entity(t, alice, w, "Tom Bombadil")

	page, err := h.relationships.ListByEntity(ctx, alice, lonely.ID, ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)

	_, err = h.relationships.ListByEntity(ctx, alice, valueobjects.NewEntityID(), ListOptions{})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCreateRelationship_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w1 := h.world(t, alice)
	w2 := h.world(t, alice)
	a := h.entity(t, alice, w1, "Legolas")
	b := h.entity(t, alice, w2, "Gimli")

	_, err := h.relationships.Create(ctx, alice, valueobjects.NewRelationshipID(), a.ID, b.ID, RelationshipInput{Label: "friend"})
	assert.True(t, pkgerrors.IsValidation(err), "cross world")

	_, err = h.relationships.Create(ctx, alice, valueobjects.NewRelationshipID(), a.ID, a.ID, RelationshipInput{Label: "self"})
	assert.True(t, pkgerrors.IsValidation(err), "self loop")

	from := time.Date(3019, 3, 25, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	c := h.entity(t, alice, w1, "Haldir")
	_, err = h.relationships.Create(ctx, alice, valueobjects.NewRelationshipID(), a.ID, c.ID, RelationshipInput{Label: "kin", ValidFrom: &from, ValidTo: &to})
	assert.True(t, pkgerrors.IsValidation(err), "inverted validity")

	_, err = h.relationships.Create(ctx, bob, valueobjects.NewRelationshipID(), a.ID, c.ID, RelationshipInput{Label: "spy"})
	assert.True(t, pkgerrors.IsNotFound(err), "foreign endpoints")
}

func TestUpdate_StaleVersionConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	e := h.entity(t, alice, w, "Gandalf the Grey")

	updated, err := h.entities.Update(ctx, alice, e.ID, 1, "Gandalf the White", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	_, err = h.entities.Update(ctx, alice, e.ID, 1, "Mithrandir", nil)
	assert.True(t, pkgerrors.IsConflict(err))

	_, err = h.worlds.Update(ctx, alice, w.ID, 7, WorldInput{Name: "Arda"})
	assert.True(t, pkgerrors.IsConflict(err))

	st, err := h.stories.Create(ctx, alice, valueobjects.NewStoryID(), StoryInput{Title: "Draft"})
	require.NoError(t, err)
	_, err = h.stories.Update(ctx, alice, st.ID, 2, StoryInput{Title: "Final"})
	assert.True(t, pkgerrors.IsConflict(err))

	_, err = h.entities.Update(ctx, bob, e.ID, 2, "Stolen", nil)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestListRelationshipsByEntity_PaginationWalksAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	hub := h.entity(t, alice, w, "Rivendell")
	var want []valueobjects.RelationshipID
	for i := 0; i < 7; i++ {
		other := h.entity(t, alice, w, "Guest")
		if i%2 == 0 {
			want = append(want, h.link(t, alice, hub, other).ID)
		} else {
			want = append(want, h.link(t, alice, other, hub).ID)
		}
	}

	var got []valueobjects.RelationshipID
	cursor := ""
	pages := 0
	for {
		page, err := h.relationships.ListByEntity(ctx, alice, hub.ID, ListOptions{Limit: 3, Cursor: cursor})
		require.NoError(t, err)
		got = append(got, ids(page.Items)...)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, want, got)
	assert.Equal(t, 3, pages)

	_, err := h.relationships.ListByEntity(ctx, alice, hub.ID, ListOptions{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsValidation(err))
	_, err = h.relationships.ListByEntity(ctx, alice, hub.ID, ListOptions{Limit: -1})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestDeleteWorld_CascadesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	a := h.entity(t, alice, w, "Sauron")
	b := h.entity(t, alice, w, "Saruman")
	h.link(t, alice, a, b)
	linked, err := h.stories.Create(ctx, alice, valueobjects.NewStoryID(), StoryInput{WorldID: &w.ID, Title: "Fall of Barad-dur"})
	require.NoError(t, err)

	require.NoError(t, h.worlds.Delete(ctx, alice, w.ID))

	_, err = h.worlds.Get(ctx, alice, w.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = h.store.Entities().GetByID(ctx, a.ID)
	assert.Error(t, err)
	rels, err := h.store.Relationships().ListByTarget(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)

	story, err := h.stories.Get(ctx, alice, linked.ID)
	require.NoError(t, err)
	assert.Nil(t, story.WorldID)

	deleted := h.publisher.ofType(events.TypeWorldDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, 2, deleted[0].(events.WorldDeleted).EntitiesDeleted)
	assert.Equal(t, 1, deleted[0].(events.WorldDeleted).StoriesDetached)
}

func TestDeleteWorld_ForeignIsNotFound(t *testing.T) {
	h := newHarness(t)
	w := h.world(t, alice)

	err := h.worlds.Delete(context.Background(), bob, w.ID)

	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = h.worlds.Get(context.Background(), alice, w.ID)
	assert.NoError(t, err)
}

func TestDeleteWorld_TombstoneBlocksWritesAndResumes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	a := h.entity(t, alice, w, "Feanor")
	b := h.entity(t, alice, w, "Fingolfin")
	h.link(t, alice, a, b)
	story, err := h.stories.Create(ctx, alice, valueobjects.NewStoryID(), StoryInput{Title: "Quenta"})
	require.NoError(t, err)

	// State left by a delete that stopped right after the tombstone.
	require.NoError(t, h.store.Worlds().MarkDeleting(ctx, alice, w.ID))

	_, err = h.worlds.Get(ctx, alice, w.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
	listed, err := h.worlds.List(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, listed)
	_, err = h.worlds.Update(ctx, alice, w.ID, 1, WorldInput{Name: "Beleriand"})
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = h.entities.Create(ctx, alice, valueobjects.NewEntityID(), w.ID, entities.KindCharacter, "Fingon", nil)
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = h.entities.Get(ctx, alice, a.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = h.relationships.Create(ctx, alice, valueobjects.NewRelationshipID(), b.ID, a.ID, RelationshipInput{Label: "envies"})
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = h.stories.Update(ctx, alice, story.ID, story.Version, StoryInput{WorldID: &w.ID, Title: "Quenta"})
	assert.True(t, pkgerrors.IsNotFound(err))

	require.NoError(t, h.worlds.Delete(ctx, alice, w.ID))

	_, err = h.store.Worlds().GetByID(ctx, alice, w.ID)
	assert.Error(t, err)
	remaining, err := h.store.Entities().ListIDsByWorld(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	rels, err := h.store.Relationships().ListBySource(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
	kept, err := h.stories.Get(ctx, alice, story.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.WorldID)

	deleted := h.publisher.ofType(events.TypeWorldDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, 2, deleted[0].(events.WorldDeleted).EntitiesDeleted)
}

func TestStory_LinkRequiresOwnedWorld(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bobs := h.world(t, bob)

	_, err := h.stories.Create(ctx, alice, valueobjects.NewStoryID(), StoryInput{WorldID: &bobs.ID, Title: "Trespass"})
	assert.True(t, pkgerrors.IsNotFound(err))

	st, err := h.stories.Create(ctx, alice, valueobjects.NewStoryID(), StoryInput{Title: "Mine"})
	require.NoError(t, err)
	_, err = h.stories.Get(ctx, bob, st.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsNotFound(h.stories.Delete(ctx, bob, st.ID)))
	require.NoError(t, h.stories.Delete(ctx, alice, st.ID))
}

func TestEntity_ListByWorldFiltersKindAndStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	h.entity(t, alice, w, "Pippin")
	ring, err := h.entities.Create(ctx, alice, valueobjects.NewEntityID(), w.ID, entities.KindThing, "Palantir", nil)
	require.NoError(t, err)
	gone := h.entity(t, alice, w, "Denethor")
	require.NoError(t, h.store.Entities().MarkDeleting(ctx, gone))

	all, err := h.entities.ListByWorld(ctx, alice, w.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	things, err := h.entities.ListByWorld(ctx, alice, w.ID, entities.KindThing)
	require.NoError(t, err)
	require.Len(t, things, 1)
	assert.Equal(t, ring.ID, things[0].ID)

	_, err = h.entities.ListByWorld(ctx, alice, w.ID, "place")
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = h.entities.ListByWorld(ctx, bob, w.ID, "")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRelationship_UpdateAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.world(t, alice)
	a := h.entity(t, alice, w, "Beren")
	b := h.entity(t, alice, w, "Luthien")
	r := h.link(t, alice, a, b)

	updated, err := h.relationships.Update(ctx, alice, r.ID, 1, RelationshipInput{Label: "married", Attributes: map[string]string{"age": "first"}})
	require.NoError(t, err)
	assert.Equal(t, "married", updated.Label)
	assert.Equal(t, a.ID, updated.SourceID)

	listed := h.list(t, alice, b)
	require.Len(t, listed, 1)
	assert.Equal(t, "married", listed[0].Label)

	assert.True(t, pkgerrors.IsNotFound(h.relationships.Delete(ctx, bob, r.ID)))
	require.NoError(t, h.relationships.Delete(ctx, alice, r.ID))
	assert.Empty(t, h.list(t, alice, a))
	_, err = h.relationships.Get(ctx, alice, r.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	h := newHarness(t)

	_, err := h.stories.ListByUser(context.Background(), "")

	assert.True(t, pkgerrors.IsUnauthorized(err))
}
