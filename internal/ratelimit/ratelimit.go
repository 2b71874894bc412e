// Package ratelimit throttles requests per caller key (tenant or client IP).
//
// Two backends are available: an in-process token bucket per key, and a
// Redis fixed window shared by every replica pointing at the same Redis.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long the caller should wait before retrying. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close() error
}

// Config selects and sizes a backend.
type Config struct {
	RPS      float64
	Burst    int
	RedisURL string
}

// New builds the limiter described by cfg. RPS <= 0 disables limiting; a
// non-empty RedisURL selects the Redis backend, otherwise the memory one.
func New(cfg Config) (Limiter, error) {
	if cfg.RPS <= 0 {
		return Nop{}, nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.RPS))
	}
	if cfg.RedisURL == "" {
		return NewMemory(cfg.RPS, burst), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), cfg.RPS, burst), nil
}

// Nop allows everything.
type Nop struct{}

func (Nop) Allow(context.Context, string) (Decision, error) { return Decision{Allowed: true}, nil }
func (Nop) Close() error                                     { return nil }
