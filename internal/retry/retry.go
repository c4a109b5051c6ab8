// Package retry provides exponential-backoff retry for external network
// calls. Only transient failures (rate limits, server errors, timeouts,
// connection resets) are retried; everything else propagates immediately.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config configures the retry behavior for an external call.
type Config struct {
	MaxAttempts     int           // Total attempts, including the first
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// HTTPConfig returns the profile used for lookup-client HTTP calls:
// 3 attempts, 1s initial backoff, capped at 8s.
func HTTPConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     8 * time.Second,
	}
}

// ModelConfig returns the profile used for model-gateway calls:
// 3 attempts, 1s initial backoff, capped at 15s.
func ModelConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     15 * time.Second,
	}
}

// Transient determines if an error should trigger a retry.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Rate limit errors - always retry
	if containsAny(errStr, "rate limit", "quota exceeded", "429") {
		return true
	}

	// Transient server errors - retry
	if containsAny(errStr, "500", "502", "503", "504", "unavailable") {
		return true
	}

	// Network errors - retry
	if containsAny(errStr, "connection reset", "connection refused", "timeout", "temporary", "deadline exceeded") {
		return true
	}

	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// Do executes fn with exponential backoff per cfg.
// Non-transient errors fail immediately; transient ones are retried until
// the attempt budget is exhausted or ctx is canceled.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !Transient(err) {
			return zero, err
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return zero, fmt.Errorf("after %d attempts (elapsed: %v): %w",
		attempts, time.Since(start).Round(time.Millisecond), lastErr)
}
