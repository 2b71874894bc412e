package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const window = time.Second

// Redis counts requests per key in fixed one-second windows. A window admits
// max(ceil(rps), burst) requests.
type Redis struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	now    func() time.Time
}

// RedisOption configures a Redis limiter.
type RedisOption func(*Redis)

// WithKeyPrefix sets the Redis key prefix (default "sentinel:ratelimit").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = strings.Trim(prefix, ":") }
}

// NewRedis creates a limiter backed by rdb.
func NewRedis(rdb *redis.Client, rps float64, burst int, opts ...RedisOption) *Redis {
	limit := int64(math.Ceil(rps))
	if int64(burst) > limit {
		limit = int64(burst)
	}
	r := &Redis{
		rdb:    rdb,
		prefix: "sentinel:ratelimit",
		limit:  limit,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow increments key's counter for the current window.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	k := r.windowKey(key, now)

	pipe := r.rdb.Pipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}

	if incr.Val() <= r.limit {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: untilNextWindow(now)}, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) windowKey(key string, now time.Time) string {
	return r.prefix + ":" + key + ":" + strconv.FormatInt(now.Unix(), 10)
}

func untilNextWindow(now time.Time) time.Duration {
	next := now.Truncate(window).Add(window)
	return next.Sub(now)
}
