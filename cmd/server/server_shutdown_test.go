package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"
)

// TestServer_GracefulShutdown verifies that Run returns once its context is
// cancelled and that the listener is released.
func TestServer_GracefulShutdown(t *testing.T) {
	env := setupTestServer(t, "")

	// grab a free port, then hand it to Run
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, env.srv, addr, "", "")
	}()

	// Make a request before shutdown to ensure the server is running
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/test")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shutdown gracefully within the expected time")
	}

	if _, err := http.Get("http://" + addr + "/test"); err == nil {
		t.Fatalf("expected connection error after shutdown")
	}
}

func TestServer_ListenError(t *testing.T) {
	env := setupTestServer(t, "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	// the port is taken, Run must fail without waiting for ctx
	err = Run(context.Background(), env.srv, ln.Addr().String(), "", "")
	if err == nil {
		t.Fatalf("expected listen error")
	}
}
