package benchutil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// User is one simulated account with its own cookie jar.
type User struct {
	Name   string
	client *http.Client
	base   string
}

// Activity mirrors an entry returned by GET /activity.
type Activity struct {
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor"`
	PostID    string    `json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUser prepares a client for base (server URL including base path).
// insecure skips TLS verification for self-signed local certificates.
func NewUser(base, name string, insecure bool) (*User, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &User{
		Name: name,
		base: base,
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: insecure},
				MaxIdleConnsPerHost: 16,
			},
		},
	}, nil
}

// Signup registers the account and logs in.
func (u *User) Signup(ctx context.Context) error {
	creds := map[string]string{"username": u.Name, "password": "bench-" + u.Name}
	if err := u.expectSuccess(ctx, http.MethodPost, "/users", creds); err != nil {
		return fmt.Errorf("register %s: %w", u.Name, err)
	}
	if err := u.expectSuccess(ctx, http.MethodPost, "/login", creds); err != nil {
		return fmt.Errorf("login %s: %w", u.Name, err)
	}
	return nil
}

func (u *User) Follow(ctx context.Context, target string) error {
	return u.expectSuccess(ctx, http.MethodPost, "/follow", map[string]string{"username": target})
}

func (u *User) Publish(ctx context.Context, text string) error {
	return u.expectSuccess(ctx, http.MethodPost, "/contents", map[string]string{"text": text})
}

// Do sends a request and returns the HTTP status; the body is discarded.
func (u *User) Do(ctx context.Context, method, path string, body any) (int, error) {
	resp, err := u.send(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (u *User) Activity(ctx context.Context, limit int) ([]Activity, error) {
	resp, err := u.send(ctx, http.MethodGet, fmt.Sprintf("/activity?limit=%d", limit), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Success bool       `json:"success"`
		Message string     `json:"message"`
		Results []Activity `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("activity: %s", out.Message)
	}
	return out.Results, nil
}

func (u *User) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return u.client.Do(req)
}

func (u *User) expectSuccess(ctx context.Context, method, path string, body any) error {
	resp, err := u.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	if !out.Success {
		return fmt.Errorf("status %d: %s", resp.StatusCode, out.Message)
	}
	return nil
}
