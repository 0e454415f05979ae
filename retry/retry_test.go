package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	tests := []struct {
		name         string
		maxAttempts  int
		failures     int
		wantErr      bool
		wantAttempts int
	}{
		{name: "first try", maxAttempts: 3, failures: 0, wantAttempts: 1},
		{name: "eventual success", maxAttempts: 5, failures: 2, wantAttempts: 3},
		{name: "all attempts fail", maxAttempts: 3, failures: 10, wantErr: true, wantAttempts: 3},
		{name: "zero attempts", maxAttempts: 0, failures: 0, wantErr: true, wantAttempts: 0},
		{name: "negative attempts", maxAttempts: -1, failures: 0, wantErr: true, wantAttempts: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			persistent := errors.New("embedding service unavailable")
			attempts, err := Do(context.Background(), tt.maxAttempts, time.Millisecond, func() error {
				calls++
				if calls <= tt.failures {
					return persistent
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, calls)
			assert.Equal(t, tt.wantAttempts, attempts)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.maxAttempts <= 0 {
				assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
			} else {
				assert.Equal(t, persistent, err, "should return the last error")
			}
		})
	}
}

func TestDo_OnlyRetryableErrors(t *testing.T) {
	transient := errors.New("timed out")
	permanent := errors.New("429 rate limited")
	retryable := If(func(err error) bool { return errors.Is(err, transient) })

	t.Run("retryable error is retried", func(t *testing.T) {
		calls := 0
		attempts, err := Do(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return transient
		}, retryable)
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error stops at once", func(t *testing.T) {
		calls := 0
		attempts, err := Do(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls == 1 {
				return transient
			}
			return permanent
		}, retryable)
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 2, calls)
	})

	t.Run("nil predicate retries everything", func(t *testing.T) {
		attempts, err := Do(context.Background(), 2, time.Millisecond, func() error { return permanent }, If(nil))
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 2, attempts)
	})
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	attempts, err := Do(ctx, 10, 5*time.Millisecond, func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, attempts)

	attempts, err = Do(ctx, 3, time.Millisecond, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}

func TestDo_DelayDoubles(t *testing.T) {
	var stamps []time.Time
	_, err := Do(context.Background(), 5, 10*time.Millisecond, func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 4 {
			return errors.New("error")
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, stamps, 4)

	// Waits of at least 10ms, 20ms and 40ms
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 10*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[3].Sub(stamps[2]), 40*time.Millisecond)
}

func TestBackoff(t *testing.T) {
	base := 250 * time.Millisecond
	assert.Equal(t, base, Backoff(base, 0))
	assert.Equal(t, base, Backoff(base, 1))
	assert.Equal(t, 500*time.Millisecond, Backoff(base, 2))
	assert.Equal(t, time.Second, Backoff(base, 3))
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
