package benchutil

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPercentile(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	if got := Percentile(data, 50); got != 3 {
		t.Fatalf("p50 = %v, want 3", got)
	}
	if got := Percentile(data, 100); got != 5 {
		t.Fatalf("p100 = %v, want 5", got)
	}
	if got := Percentile(data, 25); math.Abs(got-2) > 1e-9 {
		t.Fatalf("p25 = %v, want 2", got)
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Fatalf("empty percentile = %v", got)
	}
}

func TestTrimmedMean(t *testing.T) {
	data := []float64{1000, 2, 3, 4, 5, 6, 7, 8, 9, 0}
	// 10% trims one value from each end
	if got := TrimmedMean(data, 10); got != 5.5 {
		t.Fatalf("trimmed mean = %v, want 5.5", got)
	}
	if got := TrimmedMean([]float64{42}, 50); got != 42 {
		t.Fatalf("single value mean = %v", got)
	}
	if got := TrimmedMean(nil, 1); got != 0 {
		t.Fatalf("empty mean = %v", got)
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lat.csv")
	if err := WriteCSV(path, []float64{1.5, 2}); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "latency_ms\n1.500\n2.000\n" {
		t.Fatalf("unexpected csv %q", b)
	}
}

func TestUser_SignupKeepsCookie(t *testing.T) {
	var sawCookie bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/login":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "tok", Path: "/"})
		case r.URL.Path == "/contents":
			c, err := r.Cookie("sid")
			sawCookie = err == nil && c.Value == "tok"
		case strings.HasPrefix(r.URL.Path, "/activity"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"results": []map[string]any{{"kind": "post", "actor": "a"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer ts.Close()

	u, err := NewUser(ts.URL, "bench-1", false)
	if err != nil {
		t.Fatalf("NewUser failed: %v", err)
	}
	ctx := context.Background()
	if err := u.Signup(ctx); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if err := u.Publish(ctx, "hello"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if !sawCookie {
		t.Fatalf("session cookie not sent after login")
	}

	acts, err := u.Activity(ctx, 5)
	if err != nil || len(acts) != 1 || acts[0].Actor != "a" {
		t.Fatalf("unexpected activity %v, %v", acts, err)
	}
}

func TestUser_FailureMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Username taken"})
	}))
	defer ts.Close()

	u, _ := NewUser(ts.URL, "dup", false)
	err := u.Signup(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Username taken") {
		t.Fatalf("expected Username taken error, got %v", err)
	}
}
