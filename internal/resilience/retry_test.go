package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("rate limited"), 429)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid request")
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		return NewTransientError(errors.New("unavailable"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetryConfig(5), func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("timeout"), 504)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	cfg := fastRetryConfig(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "again" }

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("again")
		}
		return errors.New("done")
	})
	require.EqualError(t, err, "done")
	assert.Equal(t, 2, calls)
}

func TestDoVal_ReturnsValueFromSuccessfulAttempt(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("flaky"), 502)
		}
		return "result", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "result", val)
	assert.Equal(t, 2, calls)
}

func TestDoVal_ZeroValueOnFailure(t *testing.T) {
	val, err := DoVal(context.Background(), fastRetryConfig(2), func(ctx context.Context) (int, error) {
		return 42, NewTransientError(errors.New("nope"), 500)
	})
	require.Error(t, err)
	assert.Zero(t, val)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetryConfig(3)
	cfg.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		return NewTransientError(errors.New("unavailable"), 503)
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestComputeBackoff_Caps(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2.0,
	}
	// attempt 10 would be 1024s uncapped.
	assert.Equal(t, 4*time.Second, computeBackoff(10, cfg))
}
