package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(NewMemoryStore(clock.Now)), clock
}

func TestLimiterCapAndWindow(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t)

	for i := 0; i < DefaultLimit; i++ {
		ok, err := l.Allow(ctx, 1, 7)
		require.NoError(t, err)
		assert.True(t, ok, "allow before record %d", i+1)
		require.NoError(t, l.Record(ctx, 1, 7))
	}

	ok, err := l.Allow(ctx, 1, 7)
	require.NoError(t, err)
	assert.False(t, ok, "sixth allow within the window")

	// Other pairs are unaffected.
	ok, err = l.Allow(ctx, 1, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Allow(ctx, 2, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(DefaultWindow - time.Second)
	ok, err = l.Allow(ctx, 1, 7)
	require.NoError(t, err)
	assert.False(t, ok, "window not elapsed yet")

	clock.Advance(time.Second)
	ok, err = l.Allow(ctx, 1, 7)
	require.NoError(t, err)
	assert.True(t, ok, "window elapsed")
}

func TestLimiterWindowNotExtended(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t)

	require.NoError(t, l.Record(ctx, 1, 1))
	clock.Advance(4 * time.Minute)
	for i := 0; i < DefaultLimit-1; i++ {
		require.NoError(t, l.Record(ctx, 1, 1))
	}
	ok, err := l.Allow(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// The window started at the first record, so one more minute resets it.
	clock.Advance(time.Minute)
	ok, err = l.Allow(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiterAcquireRelease(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t)

	for i := 0; i < DefaultLimit; i++ {
		ok, err := l.Acquire(ctx, 3, 4)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.Acquire(ctx, 3, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, 3, 4))
	ok, err = l.Acquire(ctx, 3, 4)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiterReleaseToZeroKeepsWindow(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t)

	ok, err := l.Acquire(ctx, 5, 6)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Release(ctx, 5, 6))

	clock.Advance(4 * time.Minute)
	for i := 0; i < DefaultLimit; i++ {
		require.NoError(t, l.Record(ctx, 5, 6))
	}
	ok, err = l.Allow(ctx, 5, 6)
	require.NoError(t, err)
	assert.False(t, ok)

	// The window opened at the first acquire and survives the release.
	clock.Advance(time.Minute)
	ok, err = l.Allow(ctx, 5, 6)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiterReleaseNeverNegative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	l := New(store)

	require.NoError(t, l.Release(ctx, 1, 1))
	n, err := store.Count(ctx, Key(1, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLimiterAcquireConcurrent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Acquire(ctx, 9, 9)
			if err == nil && ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(DefaultLimit), granted.Load())
}

func TestLimiterOptions(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	l := New(NewMemoryStore(clock.Now), WithLimit(1), WithWindow(time.Second))

	require.NoError(t, l.Record(ctx, 1, 1))
	ok, err := l.Allow(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(time.Second)
	ok, err = l.Allow(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
