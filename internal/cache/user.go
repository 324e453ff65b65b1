package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/starterkit/starterkit/internal/model"
)

// Cache key prefixes and TTLs.
const (
	userKeyPrefix     = "user:"
	negCacheKeySuffix = ":neg"

	// DefaultUserTTL is the TTL for cached user data.
	DefaultUserTTL = time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrCorruptEntry = errors.New("corrupt cache entry")
)

// UserKey returns the cache key for a user ID.
func UserKey(id int64) string {
	return userKeyPrefix + strconv.FormatInt(id, 10)
}

// GetUser retrieves a user from cache by ID.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetUser(ctx context.Context, id int64) (*model.User, error) {
	result, err := c.client.HGetAll(ctx, UserKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	return userFromFields(id, result)
}

// SetUser stores a user in cache.
// Stored users are never updated, so entries only leave the cache by TTL.
func (c *Cache) SetUser(ctx context.Context, user *model.User) error {
	key := UserKey(user.ID)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, userToFields(user))
	pipe.Expire(ctx, key, DefaultUserTTL)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache user: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a user ID is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, id int64) (bool, error) {
	exists, err := c.client.Exists(ctx, UserKey(id)+negCacheKeySuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a user ID as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, id int64) error {
	err := c.client.SetEx(ctx, UserKey(id)+negCacheKeySuffix, "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}

// userToFields flattens a user into Redis hash fields.
func userToFields(user *model.User) map[string]any {
	return map[string]any{
		"email":      user.Email,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// userFromFields rebuilds a user from Redis hash fields.
func userFromFields(id int64, fields map[string]string) (*model.User, error) {
	email, ok := fields["email"]
	if !ok {
		return nil, fmt.Errorf("%w: missing email", ErrCorruptEntry)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", ErrCorruptEntry, err)
	}

	return &model.User{
		ID:        id,
		Email:     email,
		CreatedAt: createdAt,
	}, nil
}
