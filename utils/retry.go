package utils

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/samber/lo"
)

// RetryPolicy configures RetryWithBackoff. MaxRetries < 0 retries until the
// context ends. BaseDelay == MaxDelay gives a fixed backoff.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Retryable filters errors; nil retries everything.
	Retryable func(error) bool
	// OnRetry is called before each sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// RetryWithBackoff runs op and retries failures with exponential backoff and jitter.
func RetryWithBackoff[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	baseDelay := max(policy.BaseDelay, time.Millisecond)
	maxDelay := max(policy.MaxDelay, baseDelay)

	var lastErr error
	for attempt := 0; policy.MaxRetries < 0 || attempt <= policy.MaxRetries; attempt++ {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if policy.Retryable != nil && !policy.Retryable(err) {
			return lo.Empty[T](), err
		}
		if attempt == policy.MaxRetries {
			break
		}

		delay := backoff(baseDelay, maxDelay, attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lo.Empty[T](), errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return lo.Empty[T](), fmt.Errorf("after %d retries, last error: %w", policy.MaxRetries, lastErr)
}

// backoff is min(maxDelay, base * 2^attempt), jittered into [delay/2, delay].
// A fixed policy (base == max) is not jittered.
func backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if base == maxDelay {
		return base
	}
	delay := maxDelay
	if attempt < 32 {
		delay = min(maxDelay, base<<attempt)
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(delay-half)+1))
}
