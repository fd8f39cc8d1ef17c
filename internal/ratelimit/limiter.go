// Package ratelimit paces outbound requests so that successive sends are spaced at least
// 60s/N apart for a configured N requests per minute.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Option configures a Limiter.
type Option func(*Limiter)

// WithJitter lengthens every non-zero wait by a random share of up to fraction, so sends
// never come closer than the interval. Values outside (0, 1) are ignored.
func WithJitter(fraction float64) Option {
	return func(l *Limiter) {
		if fraction > 0 && fraction < 1 {
			l.jitter = fraction
		}
	}
}

// Limiter spaces callers by a fixed interval. The first call proceeds immediately.
// It is safe for concurrent use.
type Limiter struct {
	inner    *rate.Limiter
	interval time.Duration
	jitter   float64
}

// New creates a Limiter admitting perMinute requests per minute. Values below 1 are treated as 1.
func New(perMinute int, opts ...Option) *Limiter {
	perMinute = max(perMinute, 1)
	interval := time.Minute / time.Duration(perMinute)
	l := &Limiter{
		// Burst 1 makes the reservation schedule a single "next permitted time" mark
		// that advances by interval from max(mark, now).
		inner:    rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until the caller may send. It returns ctx.Err() if the context is cancelled
// first, releasing the reserved slot.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res := l.inner.Reserve()
	if !res.OK() {
		return ctx.Err()
	}

	delay := res.Delay()
	if delay <= 0 {
		return nil
	}
	if l.jitter > 0 {
		delay += time.Duration(float64(delay) * l.jitter * rand.Float64()) //nolint:gosec // non-cryptographic random is fine for jitter
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
