package social

import (
	"context"
	"errors"
	"sort"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/credential"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/session"
	"example.com/socialfeed/internal/store"
	"example.com/socialfeed/internal/util"
	"golang.org/x/sync/errgroup"
)

var logg = logger.New()

// countConcurrency bounds the count queries issued for one search.
const countConcurrency = 8

// AccountService owns accounts, sessions and the follow graph.
type AccountService struct {
	store     store.StoreInterface
	sessions  session.Store
	hasher    credential.Hasher
	publisher appkafka.Publisher
	clock     util.Clock
}

func NewAccountService(st store.StoreInterface, sessions session.Store, hasher credential.Hasher, publisher appkafka.Publisher, clock util.Clock) *AccountService {
	if publisher == nil {
		publisher = appkafka.NopPublisher{}
	}
	if clock == nil {
		clock = util.NewRealClock()
	}
	return &AccountService{
		store:     st,
		sessions:  sessions,
		hasher:    hasher,
		publisher: publisher,
		clock:     clock,
	}
}

func (s *AccountService) Register(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrMissingField
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	err = s.store.CreateAccount(ctx, models.Account{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.clock.NowUtc(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return storeErr("create account", err)
	}

	logg.Info("account", "Registered "+username)
	return nil
}

// Authenticate checks the credentials and opens a session. The returned
// token is the cookie value.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (models.ProfileStats, string, error) {
	if username == "" || password == "" {
		return models.ProfileStats{}, "", ErrMissingField
	}

	acc, found, err := s.store.GetAccount(ctx, username)
	if err != nil {
		return models.ProfileStats{}, "", storeErr("get account", err)
	}
	if !found || !s.hasher.Compare(acc.PasswordHash, password) {
		return models.ProfileStats{}, "", ErrInvalidCredentials
	}

	stats, err := s.statsFor(ctx, acc)
	if err != nil {
		return models.ProfileStats{}, "", err
	}

	token, err := s.sessions.Create(ctx, username)
	if err != nil {
		return models.ProfileStats{}, "", storeErr("create session", err)
	}
	return stats, token, nil
}

func (s *AccountService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return storeErr("destroy session", err)
	}
	return nil
}

func (s *AccountService) UpdateBio(ctx context.Context, sessionUser, bio string) error {
	if sessionUser == "" {
		return ErrUnauthenticated
	}
	if err := s.store.UpdateBio(ctx, sessionUser, bio); err != nil {
		return storeErr("update bio", err)
	}
	return nil
}

// Follow adds the edge sessionUser -> target. The target does not have to
// be a registered account.
func (s *AccountService) Follow(ctx context.Context, sessionUser, target string) error {
	if sessionUser == "" {
		return ErrUnauthenticated
	}
	if target == "" {
		return ErrMissingField
	}
	if sessionUser == target {
		return ErrSelfFollow
	}

	exists, err := s.store.FollowExists(ctx, sessionUser, target)
	if err != nil {
		return storeErr("follow exists", err)
	}
	if exists {
		return ErrAlreadyFollowing
	}

	now := s.clock.NowUtc()
	err = s.store.CreateFollow(ctx, models.Follow{Follower: sessionUser, Target: target, CreatedAt: now})
	if errors.Is(err, store.ErrDuplicate) {
		return ErrAlreadyFollowing
	}
	if err != nil {
		return storeErr("create follow", err)
	}

	s.publish(ctx, models.Event{
		Type:    models.EventUserFollowed,
		Actor:   sessionUser,
		Target:  target,
		Created: now,
	})
	return nil
}

// Unfollow removes the edge if present.
func (s *AccountService) Unfollow(ctx context.Context, sessionUser, target string) error {
	if sessionUser == "" {
		return ErrUnauthenticated
	}
	if target == "" {
		return ErrMissingField
	}
	if err := s.store.DeleteFollow(ctx, sessionUser, target); err != nil {
		return storeErr("delete follow", err)
	}
	return nil
}

func (s *AccountService) ListFollowing(ctx context.Context, sessionUser string) ([]string, error) {
	if sessionUser == "" {
		return []string{}, nil
	}
	following, err := s.store.GetFollowing(ctx, sessionUser)
	if err != nil {
		return nil, storeErr("get following", err)
	}
	return following, nil
}

// SearchAccounts matches usernames case-insensitively and attaches live
// follow counts. Results are ordered by username.
func (s *AccountService) SearchAccounts(ctx context.Context, query string) ([]models.AccountSummary, error) {
	accounts, err := s.store.SearchAccounts(ctx, query)
	if err != nil {
		return nil, storeErr("search accounts", err)
	}

	results := make([]models.AccountSummary, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)

	for i, acc := range accounts {
		i, acc := i, acc
		g.Go(func() error {
			followers, following, err := s.counts(gctx, acc.Username)
			if err != nil {
				return err
			}
			results[i] = models.AccountSummary{
				Username:       acc.Username,
				Bio:            acc.Bio,
				FollowerCount:  followers,
				FollowingCount: following,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Username < results[j].Username
	})
	return results, nil
}

func (s *AccountService) ProfileStats(ctx context.Context, sessionUser string) (models.ProfileStats, error) {
	if sessionUser == "" {
		return models.ProfileStats{}, ErrUnauthenticated
	}

	acc, found, err := s.store.GetAccount(ctx, sessionUser)
	if err != nil {
		return models.ProfileStats{}, storeErr("get account", err)
	}
	if !found {
		// session outlived its account
		acc = models.Account{Username: sessionUser}
	}
	return s.statsFor(ctx, acc)
}

func (s *AccountService) statsFor(ctx context.Context, acc models.Account) (models.ProfileStats, error) {
	followers, following, err := s.counts(ctx, acc.Username)
	if err != nil {
		return models.ProfileStats{}, err
	}
	return models.ProfileStats{
		Username:       acc.Username,
		Bio:            acc.Bio,
		FollowerCount:  followers,
		FollowingCount: following,
	}, nil
}

// counts runs the follower and following queries in parallel.
func (s *AccountService) counts(ctx context.Context, username string) (followers, following int64, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountFollowers(gctx, username)
		if err != nil {
			return storeErr("count followers", err)
		}
		followers = n
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountFollowing(gctx, username)
		if err != nil {
			return storeErr("count following", err)
		}
		following = n
		return nil
	})
	err = g.Wait()
	return followers, following, err
}

func (s *AccountService) publish(ctx context.Context, event models.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		logg.Error("account", "Failed to publish "+string(event.Type), err)
	}
}
