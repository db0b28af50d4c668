package store

import (
	"context"
	"time"

	"example.com/socialfeed/internal/models"
	"github.com/gocql/gocql"
)

// --- Account operations ---

// CreateAccount inserts the account with a lightweight transaction so two
// concurrent registrations of the same username cannot both succeed.
func (s *Store) CreateAccount(ctx context.Context, acc models.Account) error {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO accounts (username, password_hash, bio, created_at)
		VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		acc.Username, acc.PasswordHash, acc.Bio, acc.CreatedAt,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create account", err)
		return err
	}

	if !applied {
		return ErrDuplicate
	}

	logg.Info("store", "Account created successfully (username anonymized)")
	return nil
}

// GetAccount returns the account and true, or false when it does not exist.
func (s *Store) GetAccount(ctx context.Context, username string) (models.Account, bool, error) {
	var acc models.Account
	err := s.Session.Query(
		`SELECT username, password_hash, bio, created_at FROM accounts WHERE username = ?`,
		username,
	).WithContext(ctx).Scan(&acc.Username, &acc.PasswordHash, &acc.Bio, &acc.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Account{}, false, nil
		}
		logg.Error("store", "Failed to query account by username", err)
		return models.Account{}, false, err
	}
	return acc, true, nil
}

// UpdateBio replaces the bio; it never creates an account.
func (s *Store) UpdateBio(ctx context.Context, username, bio string) error {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(
		`UPDATE accounts SET bio = ? WHERE username = ? IF EXISTS`,
		bio, username,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to update bio", err)
		return err
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

// SearchAccounts scans the accounts table. Cassandra has no
// case-insensitive LIKE, so matching happens client side.
func (s *Store) SearchAccounts(ctx context.Context, query string) ([]models.Account, error) {
	iter := s.Session.Query(`SELECT username, bio FROM accounts`).WithContext(ctx).Iter()

	var username, bio string
	var res []models.Account
	for iter.Scan(&username, &bio) {
		if query == "" || containsFold(username, query) {
			res = append(res, models.Account{Username: username, Bio: bio})
		}
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to search accounts", err)
		return nil, err
	}
	return res, nil
}

// --- Follow operations ---

func (s *Store) FollowExists(ctx context.Context, follower, target string) (bool, error) {
	var found string
	err := s.Session.Query(
		`SELECT target FROM follows WHERE follower = ? AND target = ?`,
		follower, target,
	).WithContext(ctx).Scan(&found)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		logg.Error("store", "Failed to query follow relationship", err)
		return false, err
	}
	return true, nil
}

func (s *Store) CreateFollow(ctx context.Context, follow models.Follow) error {
	if follow.CreatedAt.IsZero() {
		follow.CreatedAt = time.Now().UTC()
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO follows (follower, target, created_at) VALUES (?, ?, ?)`,
		follow.Follower, follow.Target, follow.CreatedAt)
	batch.Query(`INSERT INTO followers_by_target (target, follower, created_at) VALUES (?, ?, ?)`,
		follow.Target, follow.Follower, follow.CreatedAt)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return err
	}

	logg.Info("store", "Follow relationship created (usernames anonymized)")
	return nil
}

// DeleteFollow removes the edge; deleting a missing edge is not an error.
func (s *Store) DeleteFollow(ctx context.Context, follower, target string) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM follows WHERE follower = ? AND target = ?`, follower, target)
	batch.Query(`DELETE FROM followers_by_target WHERE target = ? AND follower = ?`, target, follower)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete follow relationship", err)
		return err
	}
	return nil
}

func (s *Store) GetFollowing(ctx context.Context, follower string) ([]string, error) {
	return s.scanNames(ctx, `SELECT target FROM follows WHERE follower = ?`, follower)
}

func (s *Store) GetFollowers(ctx context.Context, target string) ([]string, error) {
	return s.scanNames(ctx, `SELECT follower FROM followers_by_target WHERE target = ?`, target)
}

func (s *Store) CountFollowers(ctx context.Context, target string) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM followers_by_target WHERE target = ?`, target)
}

func (s *Store) CountFollowing(ctx context.Context, follower string) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows WHERE follower = ?`, follower)
}

func (s *Store) scanNames(ctx context.Context, stmt, key string) ([]string, error) {
	iter := s.Session.Query(stmt, key).WithContext(ctx).Iter()

	var name string
	res := []string{}
	for iter.Scan(&name) {
		res = append(res, name)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list follow relationships", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) count(ctx context.Context, stmt, key string) (int64, error) {
	var n int64
	if err := s.Session.Query(stmt, key).WithContext(ctx).Scan(&n); err != nil {
		logg.Error("store", "Failed to count follow relationships", err)
		return 0, err
	}
	return n, nil
}
