package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowGrantsUpToLimit(t *testing.T) {
	sw := NewSlidingWindow(3, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, sw.Acquire(ctx))
	}
	assert.Equal(t, 3, sw.Pending())
}

func TestSlidingWindowBlocksWhenFull(t *testing.T) {
	sw := NewSlidingWindow(1, time.Minute)
	require.NoError(t, sw.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sw.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlidingWindowExpiresOldEntries(t *testing.T) {
	now := time.Now()
	sw := NewSlidingWindow(2, time.Minute)
	sw.now = func() time.Time { return now }

	require.NoError(t, sw.Acquire(context.Background()))
	require.NoError(t, sw.Acquire(context.Background()))
	assert.Equal(t, 2, sw.Pending())

	// Advance past the window; both grants age out.
	now = now.Add(61 * time.Second)
	assert.Equal(t, 0, sw.Pending())
	require.NoError(t, sw.Acquire(context.Background()))
}

func TestSlidingWindowMinimumWait(t *testing.T) {
	now := time.Now()
	sw := NewSlidingWindow(1, time.Minute)
	sw.now = func() time.Time { return now }

	require.NoError(t, sw.Acquire(context.Background()))

	// 10 seconds in, the oldest entry has 50 seconds left in the window.
	now = now.Add(10 * time.Second)
	wait, granted := sw.tryAcquire()
	assert.False(t, granted)
	assert.Equal(t, 50*time.Second, wait)

	// At the window edge the wait is clamped to the minimum poll interval.
	now = now.Add(50*time.Second - time.Millisecond)
	wait, granted = sw.tryAcquire()
	assert.False(t, granted)
	assert.Equal(t, minWait, wait)
}

func TestSlidingWindowZeroLimitTreatedAsOne(t *testing.T) {
	sw := NewSlidingWindow(0, time.Minute)
	require.NoError(t, sw.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.Error(t, sw.Acquire(ctx))
}

func TestSlidingWindowConcurrentAcquire(t *testing.T) {
	sw := NewSlidingWindow(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sw.Acquire(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, sw.Pending())
}
