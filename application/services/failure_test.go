package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	"worldbuilder/domain/events"
	"worldbuilder/infrastructure/persistence/memory"
	pkgerrors "worldbuilder/pkg/errors"
)

type MockRelationshipRepository struct {
	mock.Mock
}

func (m *MockRelationshipRepository) Create(ctx context.Context, rel *entities.Relationship) error {
	return m.Called(ctx, rel).Error(0)
}

func (m *MockRelationshipRepository) GetByID(ctx context.Context, id valueobjects.RelationshipID) (*entities.Relationship, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Relationship), args.Error(1)
}

func (m *MockRelationshipRepository) ListBySource(ctx context.Context, id valueobjects.EntityID) ([]*entities.Relationship, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Relationship), args.Error(1)
}

func (m *MockRelationshipRepository) ListByTarget(ctx context.Context, id valueobjects.EntityID) ([]*entities.Relationship, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Relationship), args.Error(1)
}

func (m *MockRelationshipRepository) Update(ctx context.Context, rel *entities.Relationship, expectedVersion int) error {
	return m.Called(ctx, rel, expectedVersion).Error(0)
}

func (m *MockRelationshipRepository) DeleteBatch(ctx context.Context, ownerID string, rels []*entities.Relationship) error {
	return m.Called(ctx, ownerID, rels).Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, e events.DomainEvent) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, evs []events.DomainEvent) error {
	return m.Called(ctx, evs).Error(0)
}

// staleIndexRepository answers ListByWorld from an index that has not yet
// seen any write.
type staleIndexRepository struct {
	ports.EntityRepository
}

func (staleIndexRepository) ListByWorld(context.Context, valueobjects.WorldID, entities.EntityKind) ([]*entities.Entity, error) {
	return []*entities.Entity{}, nil
}

// seededStore returns a store with one World owned by alice and two of its
// entities.
func seededStore(t *testing.T) (*memory.Store, *entities.World, *entities.Entity, *entities.Entity) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	w, err := entities.NewWorld(valueobjects.NewWorldID(), alice, "Earthsea", "", nil, testTime)
	require.NoError(t, err)
	require.NoError(t, store.Worlds().Create(ctx, w))
	a, err := entities.NewEntity(valueobjects.NewEntityID(), w, entities.KindCharacter, "Ged", nil, testTime)
	require.NoError(t, err)
	b, err := entities.NewEntity(valueobjects.NewEntityID(), w, entities.KindCharacter, "Tenar", nil, testTime)
	require.NoError(t, err)
	require.NoError(t, store.Entities().Create(ctx, a))
	require.NoError(t, store.Entities().Create(ctx, b))
	return store, w, a, b
}

func TestListByEntity_StoreFailureIsDatabaseError(t *testing.T) {
	// Arrange
	store, _, a, _ := seededStore(t)
	rels := new(MockRelationshipRepository)
	rels.On("ListBySource", mock.Anything, a.ID).Return([]*entities.Relationship{}, nil)
	rels.On("ListByTarget", mock.Anything, a.ID).Return(nil, fmt.Errorf("query: %w", errors.New("ProvisionedThroughputExceededException")))

	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), rels, zap.NewNop())
	svc := NewRelationshipService(guard, rels, nil, zap.NewNop())

	// Act
	_, err := svc.ListByEntity(context.Background(), alice, a.ID, ListOptions{})

	// Assert
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeDatabase))
	assert.NotContains(t, pkgerrors.GetAppError(err).Message, "Throughput")
	rels.AssertExpectations(t)
}

func TestListByEntity_UnauthorizedNeverQueriesRelationships(t *testing.T) {
	store, _, a, _ := seededStore(t)
	rels := new(MockRelationshipRepository)

	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), rels, zap.NewNop())
	svc := NewRelationshipService(guard, rels, nil, zap.NewNop())

	_, err := svc.ListByEntity(context.Background(), bob, a.ID, ListOptions{})

	assert.True(t, pkgerrors.IsNotFound(err))
	rels.AssertNotCalled(t, "ListBySource", mock.Anything, mock.Anything)
	rels.AssertNotCalled(t, "ListByTarget", mock.Anything, mock.Anything)
}

func TestListByEntity_DeduplicatesAcrossViews(t *testing.T) {
	store, w, a, _ := seededStore(t)
	// A relationship reported by both views must appear once.
	shared := &entities.Relationship{ID: valueobjects.NewRelationshipID(), WorldID: w.ID, OwnerID: alice, SourceID: a.ID, TargetID: a.ID, CreatedAt: testTime}
	rels := new(MockRelationshipRepository)
	rels.On("ListBySource", mock.Anything, a.ID).Return([]*entities.Relationship{shared}, nil)
	rels.On("ListByTarget", mock.Anything, a.ID).Return([]*entities.Relationship{shared.Clone()}, nil)

	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), rels, zap.NewNop())
	svc := NewRelationshipService(guard, rels, nil, zap.NewNop())

	page, err := svc.ListByEntity(context.Background(), alice, a.ID, ListOptions{})

	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestCreateRelationship_EndpointDeletedConcurrently(t *testing.T) {
	store, _, a, b := seededStore(t)
	rels := new(MockRelationshipRepository)
	rels.On("Create", mock.Anything, mock.AnythingOfType("*entities.Relationship")).
		Return(fmt.Errorf("transaction cancelled: %w", ports.ErrConflict))

	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), rels, zap.NewNop())
	svc := NewRelationshipService(guard, rels, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), alice, valueobjects.NewRelationshipID(), a.ID, b.ID, RelationshipInput{Label: "mentor"})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
	assert.Equal(t, "entity is being deleted", pkgerrors.GetAppError(err).Message)
}

func TestCreateRelationship_WorldVanishedIsNotFound(t *testing.T) {
	store, _, a, b := seededStore(t)
	rels := new(MockRelationshipRepository)
	rels.On("Create", mock.Anything, mock.Anything).Return(ports.ErrGuardFailed)

	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), rels, zap.NewNop())
	svc := NewRelationshipService(guard, rels, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), alice, valueobjects.NewRelationshipID(), a.ID, b.ID, RelationshipInput{Label: "mentor"})

	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestDeleteEntity_BatchFailureLeavesEntityDeleting(t *testing.T) {
	// Arrange
	store, w, a, b := seededStore(t)
	ctx := context.Background()
	rel, err := entities.NewRelationship(valueobjects.NewRelationshipID(), a, b, "rival", nil, nil, nil, testTime)
	require.NoError(t, err)
	rels := new(MockRelationshipRepository)
	rels.On("ListBySource", mock.Anything, a.ID).Return([]*entities.Relationship{rel}, nil)
	rels.On("ListByTarget", mock.Anything, a.ID).Return([]*entities.Relationship{}, nil)
	rels.On("DeleteBatch", mock.Anything, alice, mock.Anything).Return(errors.New("throttled"))

	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), rels, zap.NewNop())
	svc := NewEntityService(guard, store.Entities(), rels, nil, zap.NewNop())

	// Act
	_, err = svc.Delete(ctx, alice, a.ID)

	// Assert
	require.Error(t, err)
	stored, getErr := store.Entities().GetByID(ctx, a.ID)
	require.NoError(t, getErr)
	assert.Equal(t, entities.EntityStatusDeleting, stored.Status)
	assert.Equal(t, w.ID, stored.WorldID)
}

func TestDeleteEntity_NonConvergingCascadeFails(t *testing.T) {
	store, _, a, b := seededStore(t)
	rel, err := entities.NewRelationship(valueobjects.NewRelationshipID(), a, b, "rival", nil, nil, nil, testTime)
	require.NoError(t, err)
	rels := new(MockRelationshipRepository)
	// The relationship keeps reappearing.
	rels.On("ListBySource", mock.Anything, a.ID).Return([]*entities.Relationship{rel}, nil)
	rels.On("ListByTarget", mock.Anything, a.ID).Return([]*entities.Relationship{}, nil)
	rels.On("DeleteBatch", mock.Anything, alice, mock.Anything).Return(nil)

	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), rels, zap.NewNop())
	svc := NewEntityService(guard, store.Entities(), rels, nil, zap.NewNop(), WithCascadeSweeps(2))

	_, err = svc.Delete(context.Background(), alice, a.ID)

	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeInternal))
	rels.AssertNumberOfCalls(t, "DeleteBatch", 2)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	store, w, _, _ := seededStore(t)
	pub := new(MockEventPublisher)
	pub.On("PublishBatch", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), store.Relationships(), zap.NewNop())
	svc := NewEntityService(guard, store.Entities(), store.Relationships(), pub, zap.NewNop())

	e, err := svc.Create(context.Background(), alice, valueobjects.NewEntityID(), w.ID, entities.KindEvent, "Founding of Roke", nil)

	require.NoError(t, err)
	assert.Equal(t, entities.KindEvent, e.Kind)
	pub.AssertCalled(t, "PublishBatch", mock.Anything, mock.Anything)
}

func TestStoreErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want pkgerrors.ErrorType
	}{
		{"not found", ports.ErrNotFound, pkgerrors.ErrorTypeNotFound},
		{"guard", fmt.Errorf("tx: %w", ports.ErrGuardFailed), pkgerrors.ErrorTypeNotFound},
		{"exists", ports.ErrAlreadyExists, pkgerrors.ErrorTypeConflict},
		{"conflict", ports.ErrConflict, pkgerrors.ErrorTypeConflict},
		{"unavailable", ports.ErrUnavailable, pkgerrors.ErrorTypeUnavailable},
		{"other", errors.New("boom"), pkgerrors.ErrorTypeDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, pkgerrors.IsType(storeError(tt.err, "entity", "op"), tt.want))
		})
	}
	assert.ErrorIs(t, storeError(context.Canceled, "entity", "op"), context.Canceled)
}

func TestDeleteWorld_DoesNotDependOnEntityIndex(t *testing.T) {
	store, w, a, b := seededStore(t)
	ctx := context.Background()
	rel, err := entities.NewRelationship(valueobjects.NewRelationshipID(), a, b, "teaches", nil, nil, nil, testTime)
	require.NoError(t, err)
	require.NoError(t, store.Relationships().Create(ctx, rel))

	logger := zap.NewNop()
	stale := staleIndexRepository{store.Entities()}
	guard := NewOwnershipGuard(store.Worlds(), stale, store.Relationships(), logger)
	entitySvc := NewEntityService(guard, stale, store.Relationships(), nil, logger)
	storySvc := NewStoryService(guard, store.Stories(), nil, logger)
	worlds := NewWorldService(guard, store.Worlds(), stale, entitySvc, storySvc, nil, logger)

	require.NoError(t, worlds.Delete(ctx, alice, w.ID))

	for _, id := range []valueobjects.EntityID{a.ID, b.ID} {
		_, err := store.Entities().GetByID(ctx, id)
		assert.ErrorIs(t, err, ports.ErrNotFound)
	}
	_, err = store.Relationships().GetByID(ctx, rel.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	_, err = store.Worlds().GetByID(ctx, alice, w.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestDeleteWorld_InterruptedCascadeCanBeRetried(t *testing.T) {
	store, w, a, b := seededStore(t)
	ctx := context.Background()
	rel, err := entities.NewRelationship(valueobjects.NewRelationshipID(), a, b, "teaches", nil, nil, nil, testTime)
	require.NoError(t, err)
	require.NoError(t, store.Relationships().Create(ctx, rel))

	logger := zap.NewNop()
	rels := &MockRelationshipRepository{}
	rels.On("ListBySource", mock.Anything, mock.Anything).Return([]*entities.Relationship{rel}, nil)
	rels.On("ListByTarget", mock.Anything, mock.Anything).Return([]*entities.Relationship{}, nil)
	rels.On("DeleteBatch", mock.Anything, alice, mock.Anything).Return(errors.New("throttled"))
	guard := NewOwnershipGuard(store.Worlds(), store.Entities(), store.Relationships(), logger)
	failing := NewEntityService(guard, store.Entities(), rels, nil, logger)
	storySvc := NewStoryService(guard, store.Stories(), nil, logger)

	err = NewWorldService(guard, store.Worlds(), store.Entities(), failing, storySvc, nil, logger).Delete(ctx, alice, w.ID)
	require.Error(t, err)
	stored, err := store.Worlds().GetByID(ctx, alice, w.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WorldStatusDeleting, stored.Status)

	working := NewEntityService(guard, store.Entities(), store.Relationships(), nil, logger)
	require.NoError(t, NewWorldService(guard, store.Worlds(), store.Entities(), working, storySvc, nil, logger).Delete(ctx, alice, w.ID))

	ids, err := store.Entities().ListIDsByWorld(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, err = store.Relationships().GetByID(ctx, rel.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
