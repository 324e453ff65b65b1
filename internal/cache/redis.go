// Package cache provides the Redis read-through cache for user records
// and the token buckets behind request rate limiting.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// clientName is reported by CLIENT LIST.
const clientName = "starterkit"

// Cache wraps a go-redis client.
type Cache struct {
	client *redis.Client
}

// Option adjusts the client options parsed from the URL.
type Option func(*redis.Options)

// WithPoolSize sets the maximum number of socket connections.
func WithPoolSize(n int) Option {
	return func(o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

// New connects to redisURL and pings it.
func New(ctx context.Context, redisURL string, opts ...Option) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	if opt.ClientName == "" {
		opt.ClientName = clientName
	}
	for _, o := range opts {
		o(opt)
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying client. The event publisher writes to streams through it.
func (c *Cache) Client() *redis.Client {
	return c.client
}
