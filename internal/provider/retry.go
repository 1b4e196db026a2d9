package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrRateLimited is matched by callers after a page fetch exhausts its
// rate-limit retries. Rows emitted for earlier pages remain valid.
var ErrRateLimited = errors.New("provider rate limited")

// ErrProviderAuth is returned when the provider rejects the credential on
// a data call. Never retried; the caller must prompt re-authorization.
var ErrProviderAuth = errors.New("provider rejected credentials")

// RateLimitError reports a provider rate-limit response for one page fetch.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return "rate limit"
	}
	if e.Message != "" {
		return e.Message
	}
	return "rate limit exceeded"
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// transientError marks a retryable failure that is not a rate limit:
// network errors and provider 5xx responses.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// RetryPolicy declares how a single page fetch is retried. Every provider
// client consumes the same policy instead of growing its own loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

// DefaultRetryPolicy returns the policy used in production.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Jitter:      250 * time.Millisecond,
	}
}

// Do runs fn up to MaxAttempts times. Rate-limit and transient failures
// back off exponentially with jitter (honoring a provider Retry-After
// when present); authorization and other permanent failures return
// immediately. The last transient error is returned once attempts are
// exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		if attempt >= p.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, lastErr)
		}

		wait := delay
		var rle *RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > 0 {
			wait = rle.RetryAfter
		}
		if p.Jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(p.Jitter)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

func isRetryable(err error) bool {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var te *transientError
	return errors.As(err, &te)
}
