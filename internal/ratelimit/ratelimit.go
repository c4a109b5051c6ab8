// Package ratelimit provides an in-process sliding-window limiter for
// model-gateway calls. It is the one mutable structure shared across
// concurrent chat requests.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// minWait bounds how briefly a blocked caller sleeps before re-evaluating
// the window. Keeps the retry loop from spinning when the window edge is
// microseconds away.
const minWait = 10 * time.Millisecond

// SlidingWindow grants up to limit acquisitions per window. Callers over the
// limit block until the oldest timestamp ages out. Safe for concurrent use.
type SlidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
	limit      int
	window     time.Duration
	now        func() time.Time // injectable for tests
}

// NewSlidingWindow creates a limiter granting limit acquisitions per window.
// A limit below 1 is treated as 1.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Acquire blocks until a slot is available or ctx is canceled.
// Grants are evaluated against a monotonic sliding window: timestamps older
// than the window are pruned, and when the window is full the caller sleeps
// for the minimum time until the oldest entry expires, then re-evaluates.
func (s *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		wait, granted := s.tryAcquire()
		if granted {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire attempts a grant under the lock. On failure it returns the
// minimum wait before the next re-evaluation.
func (s *SlidingWindow) tryAcquire() (wait time.Duration, granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// Prune timestamps that fell out of the window.
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.timestamps) && !s.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.timestamps = append(s.timestamps[:0], s.timestamps[i:]...)
	}

	if len(s.timestamps) < s.limit {
		s.timestamps = append(s.timestamps, now)
		return 0, true
	}

	wait = s.window - now.Sub(s.timestamps[0])
	if wait < minWait {
		wait = minWait
	}
	return wait, false
}

// Pending returns the number of acquisitions currently inside the window.
func (s *SlidingWindow) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	n := 0
	for _, ts := range s.timestamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
