package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Memory keeps one token bucket per key and evicts idle keys periodically.
type Memory struct {
	mu           sync.Mutex
	entries      map[string]*memoryEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
	stop         context.CancelFunc
}

type memoryEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithIdleTTL sets how long an unused key is kept.
func WithIdleTTL(d time.Duration) MemoryOption {
	return func(m *Memory) { m.idleTTL = d }
}

// WithCleanupEvery sets the janitor interval. Zero disables the janitor.
func WithCleanupEvery(d time.Duration) MemoryOption {
	return func(m *Memory) { m.cleanupEvery = d }
}

// NewMemory creates a token-bucket limiter refilling at rps with the given
// burst, and starts its janitor.
func NewMemory(rps float64, burst int, opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:      make(map[string]*memoryEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.stop = cancel
	m.startJanitor(ctx)
	return m
}

// Allow takes one token from key's bucket.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()
	lim := m.limiter(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Second}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}

// Close stops the janitor.
func (m *Memory) Close() error {
	m.stop()
	return nil
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) limiter(key string, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ent, ok := m.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(m.rps, m.burst)
	m.entries[key] = &memoryEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops keys not seen within the idle TTL.
func (m *Memory) Cleanup() {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, ent := range m.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(m.entries, k)
		}
	}
}

func (m *Memory) startJanitor(ctx context.Context) {
	if m.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(m.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Cleanup()
			}
		}
	}()
}
