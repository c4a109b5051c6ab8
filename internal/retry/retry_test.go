package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota", errors.New("Quota Exceeded for project"), true},
		{"http 429", errors.New("unexpected status 429"), true},
		{"http 503", errors.New("usda food search: unexpected status 503"), true},
		{"unavailable", errors.New("service unavailable"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("dial tcp: i/o timeout"), true},
		{"deadline", errors.New("context deadline exceeded"), true},
		{"bad request", errors.New("unexpected status 400"), false},
		{"not found", errors.New("unexpected status 404"), false},
		{"validation", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transient(tt.err))
		})
	}
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), HTTPConfig(), func() (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestDoFailsFastOnPermanentError(t *testing.T) {
	permanent := errors.New("unexpected status 400")
	calls := 0

	_, err := Do(context.Background(), HTTPConfig(), func() (int, error) {
		calls++
		return 0, permanent
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	calls := 0

	got, err := Do(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("unexpected status 503")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttemptBudget(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	transient := errors.New("service unavailable")
	calls := 0

	_, err := Do(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, transient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{MaxAttempts: 3, InitialInterval: time.Minute, MaxInterval: time.Minute}
	calls := 0

	_, err := Do(ctx, cfg, func() (int, error) {
		calls++
		return 0, errors.New("unexpected status 503")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestProfiles(t *testing.T) {
	h := HTTPConfig()
	assert.Equal(t, 3, h.MaxAttempts)
	assert.Equal(t, 8*time.Second, h.MaxInterval)

	m := ModelConfig()
	assert.Equal(t, 3, m.MaxAttempts)
	assert.Equal(t, 15*time.Second, m.MaxInterval)
}
