package core

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds internal retries of operations that failed with a
// retryable error (see IsRetryable). Other errors return immediately.
type RetryPolicy struct {
	Attempts int           // total attempts, including the first
	Backoff  time.Duration // base delay, doubled after each failed attempt
}

// DefaultRetry is three attempts with exponential backoff from 25ms.
var DefaultRetry = RetryPolicy{Attempts: 3, Backoff: 25 * time.Millisecond}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) || attempt == attempts {
			return err
		}
		delay := p.Backoff << (attempt - 1)
		if delay > 0 {
			// up to 50% jitter so contending callers spread out
			delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
