package cache

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestWithPoolSize(t *testing.T) {
	opts := &redis.Options{PoolSize: 10}

	WithPoolSize(0)(opts)
	if opts.PoolSize != 10 {
		t.Errorf("PoolSize = %d, want unchanged 10", opts.PoolSize)
	}

	WithPoolSize(32)(opts)
	if opts.PoolSize != 32 {
		t.Errorf("PoolSize = %d, want 32", opts.PoolSize)
	}
}
