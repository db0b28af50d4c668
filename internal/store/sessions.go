package store

import (
	"context"
	"time"

	"example.com/socialfeed/internal/models"
	"github.com/gocql/gocql"
)

// --- Session operations ---

// CreateSession stores the session with a TTL so Cassandra expires it.
func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	ttl := int(time.Until(sess.ExpiresAt).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	if err := s.Session.Query(`
		INSERT INTO sessions (session_id, username, created_at, expires_at)
		VALUES (?, ?, ?, ?) USING TTL ?`,
		sess.ID, sess.Username, sess.CreatedAt, sess.ExpiresAt, ttl,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to create session", err)
		return err
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (models.Session, bool, error) {
	sess := models.Session{ID: id}
	err := s.Session.Query(
		`SELECT username, created_at, expires_at FROM sessions WHERE session_id = ?`,
		id,
	).WithContext(ctx).Scan(&sess.Username, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Session{}, false, nil
		}
		logg.Error("store", "Failed to query session", err)
		return models.Session{}, false, err
	}
	return sess, true, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := s.Session.Query(
		`DELETE FROM sessions WHERE session_id = ?`, id,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to delete session", err)
		return err
	}
	return nil
}
