package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
)

var logg = logger.New()

var (
	// ErrDuplicate is returned when a unique key (username) already exists.
	ErrDuplicate = errors.New("duplicate key")
	// ErrNotFound is returned by updates that target a missing record.
	ErrNotFound = errors.New("not found")
)

// --- Interfaces ---

type AccountStore interface {
	// CreateAccount returns ErrDuplicate if the username is taken.
	CreateAccount(ctx context.Context, acc models.Account) error
	GetAccount(ctx context.Context, username string) (models.Account, bool, error)
	UpdateBio(ctx context.Context, username, bio string) error
	// SearchAccounts matches username case-insensitively; empty query matches all.
	SearchAccounts(ctx context.Context, query string) ([]models.Account, error)
}

type FollowStore interface {
	FollowExists(ctx context.Context, follower, target string) (bool, error)
	CreateFollow(ctx context.Context, follow models.Follow) error
	DeleteFollow(ctx context.Context, follower, target string) error
	GetFollowing(ctx context.Context, follower string) ([]string, error)
	GetFollowers(ctx context.Context, target string) ([]string, error)
	CountFollowers(ctx context.Context, target string) (int64, error)
	CountFollowing(ctx context.Context, follower string) (int64, error)
}

type PostStore interface {
	AddPost(ctx context.Context, post models.Post) error
	// ListPosts returns posts newest first, filtered by a case-insensitive
	// substring of the text when query is not empty.
	ListPosts(ctx context.Context, query string) ([]models.Post, error)
	// ListPostsByAuthors returns every post by the given authors, newest first.
	ListPostsByAuthors(ctx context.Context, authors []string) ([]models.Post, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, s models.Session) error
	GetSession(ctx context.Context, id string) (models.Session, bool, error)
	DeleteSession(ctx context.Context, id string) error
}

type ActivityStore interface {
	AddActivity(ctx context.Context, a models.Activity) error
	GetActivity(ctx context.Context, username string, limit int) ([]models.Activity, error)
}

type StoreInterface interface {
	AccountStore
	FollowStore
	PostStore
	SessionStore
	ActivityStore
	Close()
}

// New opens the backend selected by STORE_BACKEND.
func New(ctx context.Context) (StoreInterface, error) {
	cfg := config.Get()

	switch cfg.StoreBackend {
	case "", "cassandra":
		return NewCassandra(cfg)
	case "mongo":
		return NewMongo(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// containsFold reports whether substr is within s, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
