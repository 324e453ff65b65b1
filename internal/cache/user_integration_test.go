//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starterkit/starterkit/internal/model"
	"github.com/starterkit/starterkit/internal/testutil"
)

func TestIntegrationCache_UserRoundTrip(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	if _, err := c.GetUser(ctx, 1); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	user := &model.User{ID: 1, Email: "a@example.com", CreatedAt: time.Now().UTC()}
	if err := c.SetUser(ctx, user); err != nil {
		t.Fatalf("SetUser failed: %v", err)
	}

	got, err := c.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Email != user.Email || !got.CreatedAt.Equal(user.CreatedAt) {
		t.Errorf("got %+v, want %+v", got, user)
	}

	ttl, err := c.Client().TTL(ctx, UserKey(1)).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > DefaultUserTTL {
		t.Errorf("unexpected TTL %v", ttl)
	}
}

func TestIntegrationCache_NegativeCache(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	neg, err := c.IsNegativelyCached(ctx, 2)
	if err != nil {
		t.Fatalf("IsNegativelyCached failed: %v", err)
	}
	if neg {
		t.Fatal("expected no negative entry")
	}

	if err := c.SetNegativeCache(ctx, 2); err != nil {
		t.Fatalf("SetNegativeCache failed: %v", err)
	}
	if neg, _ := c.IsNegativelyCached(ctx, 2); !neg {
		t.Fatal("expected negative entry")
	}

	// Caching the real record clears the negative entry.
	if err := c.SetUser(ctx, &model.User{ID: 2, Email: "b@example.com", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("SetUser failed: %v", err)
	}
	if neg, _ := c.IsNegativelyCached(ctx, 2); neg {
		t.Error("expected negative entry to be cleared")
	}
}

func newCacheTestEnv(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	c, err := New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	return ctx, c
}
