package resilience

import (
	"context"
	"time"
)

// RetryPolicy retries an operation with doubling backoff. MaxRetries counts
// attempts after the first one.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff, MaxBackoff: 5 * time.Second}
}

// Do runs fn until it succeeds, the retries are spent or ctx is done. The
// last error from fn is returned; a cancelled ctx returns ctx.Err().
func (r RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	wait := r.Backoff
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt >= r.MaxRetries {
			return err
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
		if r.MaxBackoff > 0 && wait > r.MaxBackoff {
			wait = r.MaxBackoff
		}
	}
}
