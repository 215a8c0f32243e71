package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared by all worker replicas.
// Callers put the window id into the key (e.g. a minute stamp).
type RateLimiter struct {
	c      *redis.Client
	prefix string
}

func NewRateLimiter(opts Options) *RateLimiter {
	return &RateLimiter{c: opts.newClient(), prefix: opts.prefix()}
}

// Allow делает INCR по ключу окна и продлевает его TTL.
// Возвращает (allowed, currentCount). limit <= 0 запрещает всё.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := rl.prefix + key
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}
