package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	followsCollection  = "follows"
	contentsCollection = "contents"
	sessionsCollection = "sessions"
	activityCollection = "activity"
)

type accountDoc struct {
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"passwordHash"`
	Bio          string    `bson:"bio"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type followDoc struct {
	FollowerUsername string    `bson:"followerUsername"`
	TargetUsername   string    `bson:"targetUsername"`
	CreatedAt        time.Time `bson:"createdAt"`
}

type contentDoc struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Text      string    `bson:"text"`
	ImageURL  *string   `bson:"imageUrl"`
	CreatedAt time.Time `bson:"createdAt"`
}

type sessionDoc struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	CreatedAt time.Time `bson:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

type activityDoc struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Kind      string    `bson:"kind"`
	Actor     string    `bson:"actor"`
	PostID    string    `bson:"postId,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

// MongoStore implements StoreInterface on MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ StoreInterface = (*MongoStore)(nil)

// NewMongo connects to MongoDB and ensures the indexes the invariants rely on.
func NewMongo(ctx context.Context, cfg *config.Config) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetTimeout(cfg.MongoTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(cfg.MongoDatabase)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	logg.Info("store", "Connected to MongoDB (uri anonymized)")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		followsCollection: {
			{
				Keys:    bson.D{{Key: "followerUsername", Value: 1}, {Key: "targetUsername", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "targetUsername", Value: 1}}},
		},
		contentsCollection: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "username", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		sessionsCollection: {
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		activityCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}

	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// substringFilter builds a case-insensitive literal substring match.
// An empty query matches every document.
func substringFilter(field, query string) bson.M {
	if query == "" {
		return bson.M{}
	}
	return bson.M{field: bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}}
}

// --- Account operations ---

func (s *MongoStore) CreateAccount(ctx context.Context, acc models.Account) error {
	_, err := s.db.Collection(usersCollection).InsertOne(ctx, accountDoc{
		Username:     acc.Username,
		PasswordHash: acc.PasswordHash,
		Bio:          acc.Bio,
		CreatedAt:    acc.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		logg.Error("store", "Failed to create account", err)
		return err
	}
	return nil
}

func (s *MongoStore) GetAccount(ctx context.Context, username string) (models.Account, bool, error) {
	var doc accountDoc
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Account{}, false, nil
		}
		logg.Error("store", "Failed to query account by username", err)
		return models.Account{}, false, err
	}
	return models.Account{
		Username:     doc.Username,
		PasswordHash: doc.PasswordHash,
		Bio:          doc.Bio,
		CreatedAt:    doc.CreatedAt.UTC(),
	}, true, nil
}

func (s *MongoStore) UpdateBio(ctx context.Context, username, bio string) error {
	res, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"bio": bio}},
	)
	if err != nil {
		logg.Error("store", "Failed to update bio", err)
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SearchAccounts(ctx context.Context, query string) ([]models.Account, error) {
	cur, err := s.db.Collection(usersCollection).Find(ctx,
		substringFilter("username", query),
		options.Find().SetProjection(bson.M{"username": 1, "bio": 1, "_id": 0}),
	)
	if err != nil {
		logg.Error("store", "Failed to search accounts", err)
		return nil, err
	}

	var docs []accountDoc
	if err := cur.All(ctx, &docs); err != nil {
		logg.Error("store", "Failed to decode accounts", err)
		return nil, err
	}

	res := make([]models.Account, 0, len(docs))
	for _, d := range docs {
		res = append(res, models.Account{Username: d.Username, Bio: d.Bio})
	}
	return res, nil
}

// --- Follow operations ---

func (s *MongoStore) FollowExists(ctx context.Context, follower, target string) (bool, error) {
	n, err := s.db.Collection(followsCollection).CountDocuments(ctx,
		bson.M{"followerUsername": follower, "targetUsername": target},
		options.Count().SetLimit(1),
	)
	if err != nil {
		logg.Error("store", "Failed to query follow relationship", err)
		return false, err
	}
	return n > 0, nil
}

func (s *MongoStore) CreateFollow(ctx context.Context, follow models.Follow) error {
	if follow.CreatedAt.IsZero() {
		follow.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(followsCollection).InsertOne(ctx, followDoc{
		FollowerUsername: follow.Follower,
		TargetUsername:   follow.Target,
		CreatedAt:        follow.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		logg.Error("store", "Failed to create follow relationship", err)
		return err
	}
	return nil
}

func (s *MongoStore) DeleteFollow(ctx context.Context, follower, target string) error {
	if _, err := s.db.Collection(followsCollection).DeleteOne(ctx,
		bson.M{"followerUsername": follower, "targetUsername": target},
	); err != nil {
		logg.Error("store", "Failed to delete follow relationship", err)
		return err
	}
	return nil
}

func (s *MongoStore) GetFollowing(ctx context.Context, follower string) ([]string, error) {
	return s.followNames(ctx, bson.M{"followerUsername": follower}, "targetUsername")
}

func (s *MongoStore) GetFollowers(ctx context.Context, target string) ([]string, error) {
	return s.followNames(ctx, bson.M{"targetUsername": target}, "followerUsername")
}

func (s *MongoStore) followNames(ctx context.Context, filter bson.M, field string) ([]string, error) {
	cur, err := s.db.Collection(followsCollection).Find(ctx, filter,
		options.Find().SetProjection(bson.M{field: 1, "_id": 0}),
	)
	if err != nil {
		logg.Error("store", "Failed to list follow relationships", err)
		return nil, err
	}

	var docs []followDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	res := make([]string, 0, len(docs))
	for _, d := range docs {
		if field == "targetUsername" {
			res = append(res, d.TargetUsername)
		} else {
			res = append(res, d.FollowerUsername)
		}
	}
	return res, nil
}

func (s *MongoStore) CountFollowers(ctx context.Context, target string) (int64, error) {
	return s.db.Collection(followsCollection).CountDocuments(ctx, bson.M{"targetUsername": target})
}

func (s *MongoStore) CountFollowing(ctx context.Context, follower string) (int64, error) {
	return s.db.Collection(followsCollection).CountDocuments(ctx, bson.M{"followerUsername": follower})
}

// --- Post operations ---

func (s *MongoStore) AddPost(ctx context.Context, post models.Post) error {
	if _, err := s.db.Collection(contentsCollection).InsertOne(ctx, contentDoc{
		ID:        post.ID,
		Username:  post.Username,
		Text:      post.Text,
		ImageURL:  post.ImageURL,
		CreatedAt: post.CreatedAt,
	}); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}
	return nil
}

func (s *MongoStore) ListPosts(ctx context.Context, query string) ([]models.Post, error) {
	return s.findPosts(ctx, substringFilter("text", query))
}

func (s *MongoStore) ListPostsByAuthors(ctx context.Context, authors []string) ([]models.Post, error) {
	if len(authors) == 0 {
		return []models.Post{}, nil
	}
	return s.findPosts(ctx, bson.M{"username": bson.M{"$in": authors}})
}

func (s *MongoStore) findPosts(ctx context.Context, filter bson.M) ([]models.Post, error) {
	cur, err := s.db.Collection(contentsCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		logg.Error("store", "Failed to list posts", err)
		return nil, err
	}

	var docs []contentDoc
	if err := cur.All(ctx, &docs); err != nil {
		logg.Error("store", "Failed to decode posts", err)
		return nil, err
	}

	res := make([]models.Post, 0, len(docs))
	for _, d := range docs {
		res = append(res, models.Post{
			ID:        d.ID,
			Username:  d.Username,
			Text:      d.Text,
			ImageURL:  d.ImageURL,
			CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return res, nil
}

// --- Session operations ---

func (s *MongoStore) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.Collection(sessionsCollection).InsertOne(ctx, sessionDoc{
		ID:        sess.ID,
		Username:  sess.Username,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		logg.Error("store", "Failed to create session", err)
	}
	return err
}

func (s *MongoStore) GetSession(ctx context.Context, id string) (models.Session, bool, error) {
	var doc sessionDoc
	err := s.db.Collection(sessionsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Session{}, false, nil
		}
		logg.Error("store", "Failed to query session", err)
		return models.Session{}, false, err
	}
	return models.Session{
		ID:        doc.ID,
		Username:  doc.Username,
		CreatedAt: doc.CreatedAt.UTC(),
		ExpiresAt: doc.ExpiresAt.UTC(),
	}, true, nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.Collection(sessionsCollection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// --- Activity operations ---

func (s *MongoStore) AddActivity(ctx context.Context, a models.Activity) error {
	_, err := s.db.Collection(activityCollection).InsertOne(ctx, activityDoc{
		ID:        a.ID,
		Username:  a.Username,
		Kind:      string(a.Kind),
		Actor:     a.Actor,
		PostID:    a.PostID,
		CreatedAt: a.CreatedAt,
	})
	if err != nil {
		logg.Error("store", "Failed to add activity", err)
	}
	return err
}

func (s *MongoStore) GetActivity(ctx context.Context, username string, limit int) ([]models.Activity, error) {
	cur, err := s.db.Collection(activityCollection).Find(ctx,
		bson.M{"username": username},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		logg.Error("store", "Failed to retrieve activity", err)
		return nil, err
	}

	var docs []activityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	res := make([]models.Activity, 0, len(docs))
	for _, d := range docs {
		res = append(res, models.Activity{
			ID:        d.ID,
			Username:  d.Username,
			Kind:      models.ActivityKind(d.Kind),
			Actor:     d.Actor,
			PostID:    d.PostID,
			CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return res, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		logg.Error("store", "Error disconnecting from MongoDB", err)
		return
	}
	logg.Info("store", "MongoDB client disconnected")
}
