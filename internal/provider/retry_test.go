package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &transientError{err: errors.New("connection reset")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return &RateLimitError{Message: "quota exceeded"}
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.True(t, errors.Is(err, ErrRateLimited))
}

func TestRetryPermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return ErrProviderAuth
	})
	require.Error(t, err)
	require.Equal(t, 1, calls, "auth failures must never be retried")
	require.True(t, errors.Is(err, ErrProviderAuth))
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	err := fastPolicy(2).Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &RateLimitError{RetryAfter: 30 * time.Millisecond}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func() error {
			calls++
			return &transientError{err: errors.New("boom")}
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
		require.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestRateLimitErrorMatching(t *testing.T) {
	var err error = &RateLimitError{RetryAfter: time.Second, Message: "slow down"}
	require.True(t, errors.Is(err, ErrRateLimited))

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	require.Equal(t, time.Second, rle.RetryAfter)
	require.Equal(t, "slow down", err.Error())
}
