package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"example.com/socialfeed/internal/util"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var logg = logger.New()

// Store binds opaque session tokens to usernames.
type Store interface {
	Create(ctx context.Context, username string) (string, error)
	// Get returns the username for a live token, or false.
	Get(ctx context.Context, token string) (string, bool, error)
	Destroy(ctx context.Context, token string) error
}

// Manager issues HS256-signed tokens whose jti points at a session record.
// Signature and expiry are checked before the store is consulted, and the
// record must still exist, so logout revokes the token.
type Manager struct {
	repo   store.SessionStore
	secret []byte
	ttl    time.Duration
	clock  util.Clock
}

var _ Store = (*Manager)(nil)

func NewManager(repo store.SessionStore, secret string, ttl time.Duration, clock util.Clock) *Manager {
	if clock == nil {
		clock = util.NewRealClock()
	}
	return &Manager{
		repo:   repo,
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}
}

// TTL is the lifetime of newly created sessions.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) Create(ctx context.Context, username string) (string, error) {
	now := m.clock.NowUtc()
	sess := models.Session{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.repo.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sess.ID,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	})
	tokenStr, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return tokenStr, nil
}

func (m *Manager) Get(ctx context.Context, token string) (string, bool, error) {
	claims, ok := m.parse(token)
	if !ok {
		return "", false, nil
	}

	sess, found, err := m.repo.GetSession(ctx, claims.ID)
	if err != nil {
		return "", false, fmt.Errorf("get session: %w", err)
	}
	if !found || sess.Username != claims.Subject || !sess.ExpiresAt.After(m.clock.NowUtc()) {
		return "", false, nil
	}
	return sess.Username, true, nil
}

// Destroy removes the session record. Unknown or invalid tokens are a no-op.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	claims, ok := m.parse(token)
	if !ok {
		return nil
	}
	if err := m.repo.DeleteSession(ctx, claims.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *Manager) parse(token string) (*jwt.RegisteredClaims, bool) {
	if token == "" {
		return nil, false
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.NowUtc),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		logg.Debug("session", "Rejected session token")
		return nil, false
	}
	return claims, true
}
