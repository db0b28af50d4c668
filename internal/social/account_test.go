package social

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/credential"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/session"
	"example.com/socialfeed/internal/store"
	"example.com/socialfeed/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	store    *store.MockStore
	kafka    *appkafka.MockKafka
	sessions *session.Manager
	accounts *AccountService
	feed     *FeedService
	clock    *util.StubClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMock()
	mk := &appkafka.MockKafka{}
	clock := util.NewStubClock()
	pub := appkafka.NewEventPublisher(mk)
	sessions := session.NewManager(st, "test-secret", time.Hour, clock)

	return &fixture{
		store:    st,
		kafka:    mk,
		sessions: sessions,
		accounts: NewAccountService(st, sessions, credential.NewBcrypt(bcrypt.MinCost), pub, clock),
		feed:     NewFeedService(st, pub, clock),
		clock:    clock,
	}
}

func (f *fixture) register(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, f.accounts.Register(context.Background(), n, "pw-"+n))
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.accounts.Register(ctx, "alice", "secret"))

	acc := f.store.Accounts["alice"]
	assert.Equal(t, "", acc.Bio)
	assert.NotEqual(t, "secret", acc.PasswordHash, "password must not be stored in plaintext")

	err := f.accounts.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	assert.ErrorIs(t, f.accounts.Register(ctx, "", "pw"), ErrMissingField)
	assert.ErrorIs(t, f.accounts.Register(ctx, "bob", ""), ErrMissingField)
}

func TestRegister_CaseSensitiveUsernames(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	assert.NoError(t, f.accounts.Register(context.Background(), "Alice", "pw"))
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice", "bob", "carol")
	require.NoError(t, f.accounts.Follow(ctx, "bob", "alice"))
	require.NoError(t, f.accounts.Follow(ctx, "alice", "carol"))
	require.NoError(t, f.accounts.UpdateBio(ctx, "alice", "hello"))

	stats, token, err := f.accounts.Authenticate(ctx, "alice", "pw-alice")
	require.NoError(t, err)
	assert.Equal(t, models.ProfileStats{Username: "alice", Bio: "hello", FollowerCount: 1, FollowingCount: 1}, stats)

	user, ok, err := f.sessions.Get(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", user)

	_, _, err = f.accounts.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = f.accounts.Authenticate(ctx, "nobody", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = f.accounts.Authenticate(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")

	_, token, err := f.accounts.Authenticate(ctx, "alice", "pw-alice")
	require.NoError(t, err)
	require.NoError(t, f.accounts.Logout(ctx, token))

	_, ok, err := f.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, f.accounts.Logout(ctx, "unknown"))
	assert.NoError(t, f.accounts.Logout(ctx, ""))
}

func TestUpdateBio(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice")

	assert.ErrorIs(t, f.accounts.UpdateBio(ctx, "", "x"), ErrUnauthenticated)

	require.NoError(t, f.accounts.UpdateBio(ctx, "alice", "first"))
	require.NoError(t, f.accounts.UpdateBio(ctx, "alice", ""))
	assert.Equal(t, "", f.store.Accounts["alice"].Bio)
}

func TestFollowCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "a", "b", "c")

	require.NoError(t, f.accounts.Follow(ctx, "b", "a"))
	require.NoError(t, f.accounts.Follow(ctx, "c", "a"))

	stats, err := f.accounts.ProfileStats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.FollowerCount)

	require.NoError(t, f.accounts.Unfollow(ctx, "c", "a"))

	stats, err = f.accounts.ProfileStats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FollowerCount)
	assert.Equal(t, int64(0), stats.FollowingCount)
}

func TestFollow_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "u", "t")

	assert.ErrorIs(t, f.accounts.Follow(ctx, "u", "u"), ErrSelfFollow)
	assert.Empty(t, f.store.Follows)

	require.NoError(t, f.accounts.Follow(ctx, "u", "t"))
	assert.ErrorIs(t, f.accounts.Follow(ctx, "u", "t"), ErrAlreadyFollowing)
	assert.Len(t, f.store.Follows, 1)

	assert.ErrorIs(t, f.accounts.Follow(ctx, "", "t"), ErrUnauthenticated)
	assert.ErrorIs(t, f.accounts.Follow(ctx, "u", ""), ErrMissingField)
}

func TestFollow_UnregisteredTarget(t *testing.T) {
	f := newFixture(t)
	f.register(t, "u")
	assert.NoError(t, f.accounts.Follow(context.Background(), "u", "ghost"))
}

func TestFollow_PublishesEvent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "u", "t")
	require.NoError(t, f.accounts.Follow(context.Background(), "u", "t"))

	written := f.kafka.Written()
	require.Len(t, written, 1)

	var ev models.Event
	require.NoError(t, json.Unmarshal(written[0].Value, &ev))
	assert.Equal(t, models.EventUserFollowed, ev.Type)
	assert.Equal(t, "u", ev.Actor)
	assert.Equal(t, "t", ev.Target)
}

func TestFollow_PublishFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.register(t, "u", "t")
	f.accounts.publisher = appkafka.NewEventPublisher(&appkafka.MockKafkaFail{})

	assert.NoError(t, f.accounts.Follow(context.Background(), "u", "t"))
	assert.Len(t, f.store.Follows, 1)
}

func TestUnfollow_NoEdge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "u", "t")

	assert.NoError(t, f.accounts.Unfollow(ctx, "u", "t"))
	assert.Empty(t, f.store.Follows)

	assert.ErrorIs(t, f.accounts.Unfollow(ctx, "", "t"), ErrUnauthenticated)
	assert.ErrorIs(t, f.accounts.Unfollow(ctx, "u", ""), ErrMissingField)
}

func TestListFollowing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "u", "a", "b")
	require.NoError(t, f.accounts.Follow(ctx, "u", "b"))
	require.NoError(t, f.accounts.Follow(ctx, "u", "a"))

	following, err := f.accounts.ListFollowing(ctx, "u")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, following)

	following, err = f.accounts.ListFollowing(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, following)
}

func TestSearchAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "carol", "Alice", "alicia", "bob")
	require.NoError(t, f.accounts.Follow(ctx, "bob", "Alice"))
	require.NoError(t, f.accounts.Follow(ctx, "alicia", "Alice"))
	require.NoError(t, f.accounts.Follow(ctx, "Alice", "carol"))

	res, err := f.accounts.SearchAccounts(ctx, "ALI")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, models.AccountSummary{Username: "Alice", FollowerCount: 2, FollowingCount: 1}, res[0])
	assert.Equal(t, "alicia", res[1].Username)
	assert.Equal(t, int64(1), res[1].FollowingCount)

	all, err := f.accounts.SearchAccounts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := f.accounts.SearchAccounts(ctx, ".*")
	require.NoError(t, err)
	assert.Empty(t, none, "query is matched literally")
}

func TestProfileStats_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.ProfileStats(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAccountService_StoreFailure(t *testing.T) {
	ctx := context.Background()
	failing := &store.MockStoreFail{}
	sessions := session.NewManager(failing, "s", time.Hour, nil)
	svc := NewAccountService(failing, sessions, credential.NewBcrypt(bcrypt.MinCost), nil, nil)

	assert.ErrorIs(t, svc.Register(ctx, "a", "b"), ErrStoreFailure)
	_, _, err := svc.Authenticate(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, svc.UpdateBio(ctx, "a", "b"), ErrStoreFailure)
	assert.ErrorIs(t, svc.Follow(ctx, "a", "b"), ErrStoreFailure)
	assert.ErrorIs(t, svc.Unfollow(ctx, "a", "b"), ErrStoreFailure)
	_, err = svc.ListFollowing(ctx, "a")
	assert.ErrorIs(t, err, ErrStoreFailure)
	_, err = svc.SearchAccounts(ctx, "")
	assert.ErrorIs(t, err, ErrStoreFailure)
	_, err = svc.ProfileStats(ctx, "a")
	assert.ErrorIs(t, err, ErrStoreFailure)
}
