package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RequestCache remembers the URL an anonymous caller was denied on, so a
// successful login can send them back where they were headed. Entries are
// single-use and expire on their own if the login never completes.
type RequestCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRequestCache creates a [RequestCache] with the given key prefix and
// entry TTL.
func NewRequestCache(redis redis.UniversalClient, prefix string, ttl time.Duration) *RequestCache {
	return &RequestCache{redis: redis, prefix: prefix, ttl: ttl}
}

func (c *RequestCache) key(token string) string {
	return c.prefix + ":r:" + token
}

// Save stores targetURL under token, replacing any previous entry.
func (c *RequestCache) Save(ctx context.Context, token, targetURL string) error {
	if err := c.redis.Set(ctx, c.key(token), targetURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume returns the saved URL for token and removes it in the same round
// trip. A missing entry yields ("", false, nil).
func (c *RequestCache) Consume(ctx context.Context, token string) (string, bool, error) {
	target, err := c.redis.GetDel(ctx, c.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return target, true, nil
}
