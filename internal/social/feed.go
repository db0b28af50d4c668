package social

import (
	"context"
	"strings"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"example.com/socialfeed/internal/util"
	"github.com/google/uuid"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 200
)

// FeedService composes the global and personal feeds.
type FeedService struct {
	store     store.StoreInterface
	publisher appkafka.Publisher
	clock     util.Clock
}

// NewFeedService wraps clock in a MonotonicClock so post timestamps from
// this process are strictly increasing.
func NewFeedService(st store.StoreInterface, publisher appkafka.Publisher, clock util.Clock) *FeedService {
	if publisher == nil {
		publisher = appkafka.NopPublisher{}
	}
	if clock == nil {
		clock = util.NewRealClock()
	}
	return &FeedService{
		store:     st,
		publisher: publisher,
		clock:     util.NewMonotonicClock(clock),
	}
}

// Publish stores a post. Either text or imageURL must be set.
func (f *FeedService) Publish(ctx context.Context, sessionUser, text string, imageURL *string) (models.Post, error) {
	if sessionUser == "" {
		return models.Post{}, ErrUnauthenticated
	}
	if imageURL != nil && *imageURL == "" {
		imageURL = nil
	}
	if text == "" && imageURL == nil {
		return models.Post{}, ErrEmptyPost
	}

	post := models.Post{
		ID:        uuid.NewString(),
		Username:  sessionUser,
		Text:      text,
		CreatedAt: f.clock.NowUtc(),
		ImageURL:  imageURL,
	}
	if err := f.store.AddPost(ctx, post); err != nil {
		return models.Post{}, storeErr("add post", err)
	}

	event := models.Event{
		Type:    models.EventPostCreated,
		Actor:   sessionUser,
		PostID:  post.ID,
		Created: post.CreatedAt,
	}
	if err := f.publisher.Publish(ctx, event); err != nil {
		logg.Error("feed", "Failed to publish post_created", err)
	}
	return post, nil
}

// ListGlobal returns every post, or those whose text contains query
// case-insensitively, newest first.
func (f *FeedService) ListGlobal(ctx context.Context, query string) ([]models.Post, error) {
	if strings.TrimSpace(query) == "" {
		query = ""
	}
	posts, err := f.store.ListPosts(ctx, query)
	if err != nil {
		return nil, storeErr("list posts", err)
	}
	return posts, nil
}

// ListPersonal returns posts by the authors viewer follows, newest first.
// Anonymous viewers and viewers following nobody get an empty feed.
func (f *FeedService) ListPersonal(ctx context.Context, viewer string) ([]models.Post, error) {
	if viewer == "" {
		return []models.Post{}, nil
	}

	following, err := f.store.GetFollowing(ctx, viewer)
	if err != nil {
		return nil, storeErr("get following", err)
	}
	if len(following) == 0 {
		return []models.Post{}, nil
	}

	posts, err := f.store.ListPostsByAuthors(ctx, following)
	if err != nil {
		return nil, storeErr("list posts by authors", err)
	}
	return posts, nil
}

// Activity returns the viewer's latest activity entries.
func (f *FeedService) Activity(ctx context.Context, viewer string, limit int) ([]models.Activity, error) {
	if viewer == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}

	entries, err := f.store.GetActivity(ctx, viewer, limit)
	if err != nil {
		return nil, storeErr("get activity", err)
	}
	return entries, nil
}
