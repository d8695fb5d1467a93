// Package retry runs operations with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"time"
)

// DefaultBackoff is the delay before the second attempt when a policy sets none.
const DefaultBackoff = time.Second

// Policy bounds a retried operation.
type Policy struct {
	// Attempts is the total number of tries. Values below 1 mean a single try.
	Attempts int
	// Backoff is the delay before the second attempt; it doubles after each failure.
	Backoff time.Duration
	// Retryable decides whether a failure is worth another attempt.
	Retryable func(error) bool
	// OnRetry, when set, is called before each retry with the attempt that failed.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, fails permanently or runs out of attempts. The last
// error is returned. Waiting between attempts stops when ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			timer := time.NewTimer(backoff * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt+1 < attempts && p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}
	}
	return lastErr
}
