package banesco

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy decides how many times a call is attempted, how long to wait
// between attempts, and which failures are worth another try. It is a plain
// value so the policy can be unit-tested apart from any HTTP call.
type RetryPolicy struct {
	MaxAttempts int                             // Total attempts, including the first
	Backoff     func(attempt int) time.Duration // Wait before attempt n+1
	Retryable   func(err error) bool            // Whether err is transient
}

// DefaultRetryPolicy retries generic API errors up to three times with
// exponential backoff; everything else fails the call on first sight.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(2*time.Second, 10*time.Second),
		Retryable: func(err error) bool {
			var apiErr *APIError
			return errors.As(err, &apiErr)
		},
	}
}

// ExponentialBackoff doubles the base delay per attempt, capped at max
func ExponentialBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << (attempt - 1)
		if d > max {
			return max
		}
		return d
	}
}

// Do runs fn under the policy, sleeping between retryable failures. The
// context cancels waits, not an in-flight fn call.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff(attempt)):
		}
	}
	return err
}
