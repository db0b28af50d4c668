package models

import "time"

type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountSummary is an account with its live follow counts.
type AccountSummary struct {
	Username       string `json:"username"`
	Bio            string `json:"bio"`
	FollowerCount  int64  `json:"followerCount"`
	FollowingCount int64  `json:"followingCount"`
}

// ProfileStats is the session owner's own view of their profile.
type ProfileStats struct {
	Username       string `json:"username"`
	Bio            string `json:"bio"`
	FollowerCount  int64  `json:"followerCount"`
	FollowingCount int64  `json:"followingCount"`
}

type Follow struct {
	Follower  string    `json:"follower"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID        string    `json:"-"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	ImageURL  *string   `json:"imageUrl"`
}

type Session struct {
	ID        string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type EventType string

const (
	EventPostCreated  EventType = "post_created"
	EventUserFollowed EventType = "user_followed"
)

// Event is a domain event published to the broker.
type Event struct {
	Type    EventType `json:"type"`
	Actor   string    `json:"actor"`
	Target  string    `json:"target,omitempty"`
	PostID  string    `json:"post_id,omitempty"`
	Created time.Time `json:"created"`
}

type ActivityKind string

const (
	ActivityPost   ActivityKind = "post"
	ActivityFollow ActivityKind = "follow"
)

// Activity is one entry in a user's activity stream.
type Activity struct {
	ID        string       `json:"id"`
	Username  string       `json:"-"`
	Kind      ActivityKind `json:"kind"`
	Actor     string       `json:"actor"`
	PostID    string       `json:"postId,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}
