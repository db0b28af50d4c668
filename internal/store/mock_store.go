package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"example.com/socialfeed/internal/models"
)

// MockStore is an in-memory StoreInterface used by tests.
type MockStore struct {
	mu         sync.Mutex
	Accounts   map[string]models.Account
	Follows    map[models.Follow]struct{}
	Posts      []models.Post
	Sessions   map[string]models.Session
	Activity   map[string][]models.Activity
	ShouldFail bool // flag to simulate failures
}

var _ StoreInterface = (*MockStore)(nil)

var errMockFail = errors.New("mock: store failure")

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Accounts: make(map[string]models.Account),
		Follows:  make(map[models.Follow]struct{}),
		Sessions: make(map[string]models.Session),
		Activity: make(map[string][]models.Activity),
	}
}

func (m *MockStore) Close() {}

// SetFail toggles failure simulation safely while requests are in flight.
func (m *MockStore) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
}

func edge(follower, target string) models.Follow {
	return models.Follow{Follower: follower, Target: target}
}

// --- Accounts ---

func (m *MockStore) CreateAccount(_ context.Context, acc models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	if _, ok := m.Accounts[acc.Username]; ok {
		return ErrDuplicate
	}
	m.Accounts[acc.Username] = acc
	return nil
}

func (m *MockStore) GetAccount(_ context.Context, username string) (models.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.Account{}, false, errMockFail
	}
	acc, ok := m.Accounts[username]
	return acc, ok, nil
}

func (m *MockStore) UpdateBio(_ context.Context, username, bio string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	acc, ok := m.Accounts[username]
	if !ok {
		return ErrNotFound
	}
	acc.Bio = bio
	m.Accounts[username] = acc
	return nil
}

func (m *MockStore) SearchAccounts(_ context.Context, query string) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMockFail
	}
	res := []models.Account{}
	for _, acc := range m.Accounts {
		if query == "" || containsFold(acc.Username, query) {
			res = append(res, models.Account{Username: acc.Username, Bio: acc.Bio})
		}
	}
	return res, nil
}

// --- Follows ---

func (m *MockStore) FollowExists(_ context.Context, follower, target string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return false, errMockFail
	}
	_, ok := m.Follows[edge(follower, target)]
	return ok, nil
}

func (m *MockStore) CreateFollow(_ context.Context, follow models.Follow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	key := edge(follow.Follower, follow.Target)
	if _, ok := m.Follows[key]; ok {
		return ErrDuplicate
	}
	m.Follows[key] = struct{}{}
	return nil
}

func (m *MockStore) DeleteFollow(_ context.Context, follower, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	delete(m.Follows, edge(follower, target))
	return nil
}

func (m *MockStore) GetFollowing(_ context.Context, follower string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMockFail
	}
	res := []string{}
	for e := range m.Follows {
		if e.Follower == follower {
			res = append(res, e.Target)
		}
	}
	sort.Strings(res)
	return res, nil
}

func (m *MockStore) GetFollowers(_ context.Context, target string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMockFail
	}
	res := []string{}
	for e := range m.Follows {
		if e.Target == target {
			res = append(res, e.Follower)
		}
	}
	sort.Strings(res)
	return res, nil
}

func (m *MockStore) CountFollowers(ctx context.Context, target string) (int64, error) {
	names, err := m.GetFollowers(ctx, target)
	return int64(len(names)), err
}

func (m *MockStore) CountFollowing(ctx context.Context, follower string) (int64, error) {
	names, err := m.GetFollowing(ctx, follower)
	return int64(len(names)), err
}

// --- Posts ---

func (m *MockStore) AddPost(_ context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	m.Posts = append(m.Posts, post)
	return nil
}

func (m *MockStore) ListPosts(_ context.Context, query string) ([]models.Post, error) {
	return m.filterPosts(func(p models.Post) bool {
		return query == "" || containsFold(p.Text, query)
	})
}

func (m *MockStore) ListPostsByAuthors(_ context.Context, authors []string) ([]models.Post, error) {
	set := make(map[string]struct{}, len(authors))
	for _, a := range authors {
		set[a] = struct{}{}
	}
	return m.filterPosts(func(p models.Post) bool {
		_, ok := set[p.Username]
		return ok
	})
}

func (m *MockStore) filterPosts(keep func(models.Post) bool) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMockFail
	}
	res := []models.Post{}
	for i := len(m.Posts) - 1; i >= 0; i-- {
		if keep(m.Posts[i]) {
			res = append(res, m.Posts[i])
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// --- Sessions ---

func (m *MockStore) CreateSession(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	m.Sessions[s.ID] = s
	return nil
}

func (m *MockStore) GetSession(_ context.Context, id string) (models.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.Session{}, false, errMockFail
	}
	s, ok := m.Sessions[id]
	return s, ok, nil
}

func (m *MockStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	delete(m.Sessions, id)
	return nil
}

// --- Activity ---

func (m *MockStore) AddActivity(_ context.Context, a models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	m.Activity[a.Username] = append(m.Activity[a.Username], a)
	return nil
}

func (m *MockStore) GetActivity(_ context.Context, username string, limit int) ([]models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMockFail
	}
	entries := m.Activity[username]
	res := make([]models.Activity, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		res = append(res, entries[i])
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var _ StoreInterface = (*MockStoreFail)(nil)

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateAccount(context.Context, models.Account) error {
	return errors.New("mock store create account failed")
}

func (m *MockStoreFail) GetAccount(context.Context, string) (models.Account, bool, error) {
	return models.Account{}, false, errors.New("mock store get account failed")
}

func (m *MockStoreFail) UpdateBio(context.Context, string, string) error {
	return errors.New("mock store update bio failed")
}

func (m *MockStoreFail) SearchAccounts(context.Context, string) ([]models.Account, error) {
	return nil, errors.New("mock store search accounts failed")
}

func (m *MockStoreFail) FollowExists(context.Context, string, string) (bool, error) {
	return false, errors.New("mock store follow exists failed")
}

func (m *MockStoreFail) CreateFollow(context.Context, models.Follow) error {
	return errors.New("mock store create follow failed")
}

func (m *MockStoreFail) DeleteFollow(context.Context, string, string) error {
	return errors.New("mock store delete follow failed")
}

func (m *MockStoreFail) GetFollowing(context.Context, string) ([]string, error) {
	return nil, errors.New("mock store get following failed")
}

func (m *MockStoreFail) GetFollowers(context.Context, string) ([]string, error) {
	return nil, errors.New("mock store get followers failed")
}

func (m *MockStoreFail) CountFollowers(context.Context, string) (int64, error) {
	return 0, errors.New("mock store count followers failed")
}

func (m *MockStoreFail) CountFollowing(context.Context, string) (int64, error) {
	return 0, errors.New("mock store count following failed")
}

func (m *MockStoreFail) AddPost(context.Context, models.Post) error {
	return errors.New("mock store add post failed")
}

func (m *MockStoreFail) ListPosts(context.Context, string) ([]models.Post, error) {
	return nil, errors.New("mock store list posts failed")
}

func (m *MockStoreFail) ListPostsByAuthors(context.Context, []string) ([]models.Post, error) {
	return nil, errors.New("mock store list posts by authors failed")
}

func (m *MockStoreFail) CreateSession(context.Context, models.Session) error {
	return errors.New("mock store create session failed")
}

func (m *MockStoreFail) GetSession(context.Context, string) (models.Session, bool, error) {
	return models.Session{}, false, errors.New("mock store get session failed")
}

func (m *MockStoreFail) DeleteSession(context.Context, string) error {
	return errors.New("mock store delete session failed")
}

func (m *MockStoreFail) AddActivity(context.Context, models.Activity) error {
	return errors.New("mock store add activity failed")
}

func (m *MockStoreFail) GetActivity(context.Context, string, int) ([]models.Activity, error) {
	return nil, errors.New("mock store get activity failed")
}
