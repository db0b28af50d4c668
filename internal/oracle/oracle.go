package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultFact  = "Cats are mysterious animals."
	SleepingFact = "The mystic oracle is sleeping right now."
)

// Reading is one oracle answer.
type Reading struct {
	Fact     string
	ImageURL *string
}

// Client fetches a cat fact and a cat image from two upstream APIs.
type Client struct {
	http     *http.Client
	factURL  string
	imageURL string
}

func New(factURL, imageURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		factURL:  factURL,
		imageURL: imageURL,
	}
}

// Fetch queries both upstreams concurrently. Any upstream failure fails the
// whole reading.
func (c *Client) Fetch(ctx context.Context) (Reading, error) {
	var (
		fact struct {
			Fact string `json:"fact"`
		}
		images []struct {
			URL string `json:"url"`
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.getJSON(gctx, c.factURL, &fact) })
	g.Go(func() error { return c.getJSON(gctx, c.imageURL, &images) })
	if err := g.Wait(); err != nil {
		return Reading{}, err
	}

	reading := Reading{Fact: fact.Fact}
	if strings.TrimSpace(reading.Fact) == "" {
		reading.Fact = DefaultFact
	}
	if len(images) > 0 && images[0].URL != "" {
		url := images[0].URL
		reading.ImageURL = &url
	}
	return reading, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", url, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
