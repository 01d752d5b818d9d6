package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is the fixed-window limiter for multi-instance
// deployments. The INCR plus first-write EXPIRE pair keeps concurrent
// increments for a shared key atomic on the Redis side.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	window time.Duration
	max    int
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

// NewRedisRateLimiter creates a Redis-backed limiter. Zero values fall back
// to the package defaults.
func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int) *RedisRateLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if max <= 0 {
		max = DefaultRateLimitMax
	}
	return &RedisRateLimiter{
		client: client,
		prefix: "ratelimit:",
		window: window,
		max:    max,
	}
}

// Allow increments the counter for key and reports whether the attempt is
// within the ceiling. The window key expires on its own; no sweep needed.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, l.prefix+key)
	pipe.ExpireNX(ctx, l.prefix+key, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryOperation, "rate limiter increment failed")
	}

	return incr.Val() <= int64(l.max), nil
}

// Reset clears the window for key.
func (l *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
