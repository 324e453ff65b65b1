package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestServer(handler http.Handler) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(handler, 0, time.Second, time.Second, 2*time.Second, logger)
}

func waitForListener(t *testing.T, s *Server) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); !strings.HasPrefix(addr, ":") {
			return addr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server did not start listening")
	return ""
}

func TestServer_ServesAndShutsDownInReverseOrder(t *testing.T) {
	s := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	s.OnShutdown("database", record("database"))
	s.OnShutdown("events", record("events"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	addr := waitForListener(t, s)
	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}

	if len(order) != 2 || order[0] != "events" || order[1] != "database" {
		t.Errorf("shutdown order = %v, want [events database]", order)
	}
}

func TestServer_ShutdownErrorsAreReturned(t *testing.T) {
	s := newTestServer(http.NotFoundHandler())
	s.OnShutdown("broken", func(ctx context.Context) error {
		return errors.New("close failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "broken: close failed") {
		t.Errorf("Run error = %v, want wrapped component error", err)
	}
}

func TestServer_ListenError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(http.NotFoundHandler(), -1, time.Second, time.Second, time.Second, logger)

	if err := s.Run(context.Background()); err == nil {
		t.Error("expected listen error for invalid port")
	}
}
