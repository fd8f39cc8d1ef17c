package httpclient

import (
	"context"
	"time"
)

// DefaultBackoff is the base delay between transport retries. Attempt n waits n+1 times it.
const DefaultBackoff = 200 * time.Millisecond

// retryable reports whether a transport error may be retried. Only the caller's context
// decides: a per-attempt client timeout also matches context.DeadlineExceeded, yet it is an
// ordinary transport failure.
func retryable(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() == nil
}

// backoffDelay returns the linear backoff before the retry following attempt (0-based).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt+1)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
