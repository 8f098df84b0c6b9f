package services

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"worldbuilder/application/ports"
	"worldbuilder/domain/core/entities"
	"worldbuilder/domain/core/valueobjects"
	"worldbuilder/domain/events"
)

// StoryService manages the caller's stories. Stories are keyed under their
// owner, so the caller id is the only lookup scope.
type StoryService struct {
	guard   *OwnershipGuard
	stories ports.StoryRepository
	events  eventSink
	logger  *zap.Logger
	opts    options
}

func NewStoryService(
	guard *OwnershipGuard,
	stories ports.StoryRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *StoryService {
	o := newOptions(opts)
	return &StoryService{
		guard:   guard,
		stories: stories,
		events:  eventSink{publisher: publisher, logger: logger, metrics: o.metrics},
		logger:  logger,
		opts:    o,
	}
}

// StoryInput holds the mutable fields of a story.
type StoryInput struct {
	WorldID  *valueobjects.WorldID
	Title    string
	Synopsis string
	Elements []entities.StoryElement
}

// Create stores a story. Linking it to a World requires owning the World.
func (s *StoryService) Create(ctx context.Context, userID string, id valueobjects.StoryID, in StoryInput) (*entities.Story, error) {
	if err := s.authorizeLink(ctx, userID, in.WorldID); err != nil {
		return nil, err
	}
	story, err := entities.NewStory(id, userID, in.WorldID, in.Title, in.Synopsis, in.Elements, s.opts.now())
	if err != nil {
		return nil, err
	}
	if err := s.stories.Create(ctx, story); err != nil {
		return nil, storeError(err, linkResource(in.WorldID, "story"), "create story")
	}

	s.events.publish(ctx, events.NewStoryCreated(story.ID, userID, story.Title, story.CreatedAt))
	return story, nil
}

// Get returns one of the caller's stories.
func (s *StoryService) Get(ctx context.Context, userID string, id valueobjects.StoryID) (*entities.Story, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	story, err := s.stories.GetByID(ctx, userID, id)
	if err != nil {
		return nil, storeError(err, "story", "get story")
	}
	return story, nil
}

// ListByUser returns only the caller's stories, oldest first.
func (s *StoryService) ListByUser(ctx context.Context, userID string) ([]*entities.Story, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	stories, err := s.stories.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storeError(err, "story", "list stories")
	}
	slices.SortFunc(stories, entities.CompareStories)
	return stories, nil
}

// Update replaces every mutable field, including the element order.
func (s *StoryService) Update(ctx context.Context, userID string, id valueobjects.StoryID, expectedVersion int, in StoryInput) (*entities.Story, error) {
	story, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion("story", story.Version, expectedVersion); err != nil {
		return nil, err
	}
	if err := s.authorizeLink(ctx, userID, in.WorldID); err != nil {
		return nil, err
	}
	if err := story.Update(in.WorldID, in.Title, in.Synopsis, in.Elements, s.opts.now()); err != nil {
		return nil, err
	}
	if err := s.stories.Update(ctx, story, expectedVersion); err != nil {
		return nil, storeError(err, linkResource(in.WorldID, "story"), "update story")
	}

	s.events.publish(ctx, events.NewStoryUpdated(story.ID, userID, story.Title, story.Version, story.UpdatedAt))
	return story, nil
}

// Delete removes one of the caller's stories.
func (s *StoryService) Delete(ctx context.Context, userID string, id valueobjects.StoryID) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.stories.Delete(ctx, userID, id); err != nil {
		return storeError(err, "story", "delete story")
	}
	s.events.publish(ctx, events.NewStoryDeleted(id, userID, s.opts.now()))
	return nil
}

// detachWorld unlinks every story of userID from worldID.
func (s *StoryService) detachWorld(ctx context.Context, userID string, worldID valueobjects.WorldID) (int, error) {
	stories, err := s.stories.ListByOwner(ctx, userID)
	if err != nil {
		return 0, storeError(err, "story", "list stories")
	}
	detached := 0
	for _, story := range stories {
		if story.WorldID == nil || *story.WorldID != worldID {
			continue
		}
		expected := story.Version
		story.DetachWorld(s.opts.now())
		if err := s.stories.Update(ctx, story, expected); err != nil {
			return detached, storeError(err, "story", "detach story")
		}
		detached++
	}
	return detached, nil
}

func (s *StoryService) authorizeLink(ctx context.Context, userID string, worldID *valueobjects.WorldID) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if worldID == nil {
		return nil
	}
	_, err := s.guard.AuthorizeWorld(ctx, userID, *worldID)
	return err
}

// linkResource names the World in store errors for linked stories, where a
// guard failure means the World disappeared.
func linkResource(worldID *valueobjects.WorldID, fallback string) string {
	if worldID != nil {
		return "world"
	}
	return fallback
}
