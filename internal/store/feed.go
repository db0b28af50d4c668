package store

import (
	"context"
	"sort"
	"time"

	"example.com/socialfeed/internal/models"
	"github.com/gocql/gocql"
	"golang.org/x/sync/errgroup"
)

// authorReadLimit bounds concurrent per-author partition reads.
const authorReadLimit = 8

// --- Post operations ---

func (s *Store) AddPost(ctx context.Context, post models.Post) error {
	id, err := gocql.ParseUUID(post.ID)
	if err != nil {
		return err
	}

	image := ""
	if post.ImageURL != nil {
		image = *post.ImageURL
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO posts_by_author (author, created_at, post_id, text, image_url)
		VALUES (?, ?, ?, ?, ?)`,
		post.Username, post.CreatedAt, id, post.Text, image)
	batch.Query(`
		INSERT INTO posts_timeline (bucket, created_at, post_id, author, text, image_url)
		VALUES (?, ?, ?, ?, ?, ?)`,
		timelineBucket, post.CreatedAt, id, post.Username, post.Text, image)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added to timeline (post content anonymized)")
	return nil
}

// ListPosts reads the timeline partition newest first and filters client side.
func (s *Store) ListPosts(ctx context.Context, query string) ([]models.Post, error) {
	iter := s.Session.Query(`
		SELECT post_id, author, text, image_url, created_at
		FROM posts_timeline WHERE bucket = ?`,
		timelineBucket,
	).WithContext(ctx).Iter()

	res := []models.Post{}
	var pid gocql.UUID
	var author, text, image string
	var created time.Time

	for iter.Scan(&pid, &author, &text, &image, &created) {
		if query != "" && !containsFold(text, query) {
			continue
		}
		res = append(res, newPost(pid, author, text, image, created))
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list posts", err)
		return nil, err
	}
	return res, nil
}

// ListPostsByAuthors reads each author partition concurrently and merges
// the results by creation time.
func (s *Store) ListPostsByAuthors(ctx context.Context, authors []string) ([]models.Post, error) {
	if len(authors) == 0 {
		return []models.Post{}, nil
	}

	perAuthor := make([][]models.Post, len(authors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(authorReadLimit)

	for i, author := range authors {
		i, author := i, author
		g.Go(func() error {
			posts, err := s.postsByAuthor(gctx, author)
			if err != nil {
				return err
			}
			perAuthor[i] = posts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logg.Error("store", "Failed to read personal feed", err)
		return nil, err
	}

	res := []models.Post{}
	for _, posts := range perAuthor {
		res = append(res, posts...)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})

	logg.Info("store", "Personal feed retrieved successfully (usernames anonymized)")
	return res, nil
}

func (s *Store) postsByAuthor(ctx context.Context, author string) ([]models.Post, error) {
	iter := s.Session.Query(`
		SELECT post_id, text, image_url, created_at
		FROM posts_by_author WHERE author = ?`,
		author,
	).WithContext(ctx).Iter()

	var res []models.Post
	var pid gocql.UUID
	var text, image string
	var created time.Time

	for iter.Scan(&pid, &text, &image, &created) {
		res = append(res, newPost(pid, author, text, image, created))
	}

	if err := iter.Close(); err != nil {
		return nil, err
	}
	return res, nil
}

func newPost(id gocql.UUID, author, text, image string, created time.Time) models.Post {
	p := models.Post{
		ID:        id.String(),
		Username:  author,
		Text:      text,
		CreatedAt: created.UTC(),
	}
	if image != "" {
		img := image
		p.ImageURL = &img
	}
	return p
}

// --- Activity operations ---

func (s *Store) AddActivity(ctx context.Context, a models.Activity) error {
	id, err := gocql.ParseUUID(a.ID)
	if err != nil {
		return err
	}

	if err := s.Session.Query(`
		INSERT INTO activity_by_user (username, created_at, activity_id, kind, actor, post_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Username, a.CreatedAt, id, string(a.Kind), a.Actor, a.PostID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to add activity", err)
		return err
	}

	logg.Debug("store", "Activity added to user's stream (usernames anonymized)")
	return nil
}

func (s *Store) GetActivity(ctx context.Context, username string, limit int) ([]models.Activity, error) {
	iter := s.Session.Query(`
		SELECT activity_id, kind, actor, post_id, created_at
		FROM activity_by_user WHERE username = ? LIMIT ?`,
		username, limit,
	).WithContext(ctx).Iter()

	res := []models.Activity{}
	var aid gocql.UUID
	var kind, actor, postID string
	var created time.Time

	for iter.Scan(&aid, &kind, &actor, &postID, &created) {
		res = append(res, models.Activity{
			ID:        aid.String(),
			Username:  username,
			Kind:      models.ActivityKind(kind),
			Actor:     actor,
			PostID:    postID,
			CreatedAt: created.UTC(),
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to retrieve activity", err)
		return nil, err
	}
	return res, nil
}
