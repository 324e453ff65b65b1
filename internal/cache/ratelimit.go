package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// rateLimitPrefix is the Redis key prefix for token buckets.
const rateLimitPrefix = "ratelimit:"

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes a token bucket atomically.
// Time is in milliseconds so sub-second rates refill smoothly.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- bucket capacity
	local now = tonumber(ARGV[3])       -- current time in ms
	local ttl = tonumber(ARGV[4])       -- key TTL in seconds

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = math.max(0, now - last_update) / 1000
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after_ms = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after_ms = math.ceil((1 - tokens) / rate * 1000)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after_ms, math.floor(tokens)}
`)

// RateLimitKey returns the bucket key for a client within a scope.
// Client identifiers (IP addresses) are hashed so raw addresses are never stored.
func RateLimitKey(scope, clientID string) string {
	sum := blake2b.Sum256([]byte(clientID))
	return rateLimitPrefix + scope + ":" + hex.EncodeToString(sum[:8])
}

// CheckRateLimit consumes one token from the client's bucket in scope.
// ratePerSecond tokens are refilled per second up to burst.
func (c *Cache) CheckRateLimit(ctx context.Context, scope, clientID string, ratePerSecond float64, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil, fmt.Errorf("invalid rate limit: rate=%v burst=%d", ratePerSecond, burst)
	}

	// Keep the bucket until it would be full again.
	ttl := int(math.Ceil(float64(burst)/ratePerSecond)) + 1

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{RateLimitKey(scope, clientID)},
		ratePerSecond, burst, time.Now().UnixMilli(), ttl,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(result) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected result %v", result)
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		RetryAfter: time.Duration(result[1]) * time.Millisecond,
		Remaining:  result[2],
	}, nil
}
