package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemory(t *testing.T, rps float64, burst int) (*Memory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory(rps, burst, WithCleanupEvery(0))
	m.now = clock.Now
	t.Cleanup(func() { m.Close() })
	return m, clock
}

func TestMemory_BurstThenDeny(t *testing.T) {
	m, _ := newTestMemory(t, 1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := m.Allow(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d within burst", i)
	}

	d, err := m.Allow(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Second)
}

func TestMemory_Refill(t *testing.T) {
	m, clock := newTestMemory(t, 2, 1)
	ctx := context.Background()

	d, _ := m.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	d, _ = m.Allow(ctx, "k")
	assert.False(t, d.Allowed)

	clock.Advance(500 * time.Millisecond)
	d, _ = m.Allow(ctx, "k")
	assert.True(t, d.Allowed, "one token refilled after 1/rps")
}

func TestMemory_DeniedRequestDoesNotConsume(t *testing.T) {
	m, clock := newTestMemory(t, 1, 1)
	ctx := context.Background()

	d, _ := m.Allow(ctx, "k")
	require.True(t, d.Allowed)
	for i := 0; i < 5; i++ {
		d, _ = m.Allow(ctx, "k")
		require.False(t, d.Allowed)
	}

	clock.Advance(time.Second)
	d, _ = m.Allow(ctx, "k")
	assert.True(t, d.Allowed)
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	m, _ := newTestMemory(t, 1, 1)
	ctx := context.Background()

	d, _ := m.Allow(ctx, "tenant-a")
	assert.True(t, d.Allowed)
	d, _ = m.Allow(ctx, "tenant-a")
	assert.False(t, d.Allowed)
	d, _ = m.Allow(ctx, "tenant-b")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, m.Len())
}

func TestMemory_CleanupEvictsIdleKeys(t *testing.T) {
	m, clock := newTestMemory(t, 1, 1)
	m.idleTTL = time.Minute
	ctx := context.Background()

	_, _ = m.Allow(ctx, "old")
	clock.Advance(2 * time.Minute)
	_, _ = m.Allow(ctx, "fresh")

	m.Cleanup()
	assert.Equal(t, 1, m.Len())
	m.mu.Lock()
	_, ok := m.entries["fresh"]
	m.mu.Unlock()
	assert.True(t, ok)
}

func TestNew(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, l)
	d, err := l.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	l, err = New(Config{RPS: 2.5})
	require.NoError(t, err)
	mem, ok := l.(*Memory)
	require.True(t, ok)
	assert.Equal(t, 3, mem.burst, "burst defaults to ceil(rps)")
	require.NoError(t, l.Close())

	l, err = New(Config{RPS: 5, Burst: 10, RedisURL: "redis://localhost:6379/0"})
	require.NoError(t, err)
	rl, ok := l.(*Redis)
	require.True(t, ok)
	assert.Equal(t, int64(10), rl.limit)
	require.NoError(t, l.Close())

	_, err = New(Config{RPS: 5, RedisURL: "not-a-url://"})
	assert.Error(t, err)
}

func TestRedis_WindowKey(t *testing.T) {
	r := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 10, 0, WithKeyPrefix("svc:rl:"))
	defer r.Close()

	now := time.Unix(1700000000, 250*int64(time.Millisecond))
	assert.Equal(t, "svc:rl:acme:1700000000", r.windowKey("acme", now))
	assert.Equal(t, int64(10), r.limit)
	assert.Equal(t, 750*time.Millisecond, untilNextWindow(now))
}

func TestRedis_UnavailableReturnsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedis(rdb, 1, 1)
	defer r.Close()

	_, err := r.Allow(context.Background(), "acme")
	assert.Error(t, err)
}
