package catalog

import (
	"context"
	"time"

	"reverse_auction/internal/metrics"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Backoff 指数退避：2s, 4s, 8s, 之后封顶 15s，最多 Attempts 次调用。
type Backoff struct {
	Base     time.Duration
	Max      time.Duration
	Attempts int
	Sleep    SleepFunc
}

// DefaultBackoff is used when Options.Backoff is left zero.
var DefaultBackoff = Backoff{Base: 2 * time.Second, Max: 15 * time.Second, Attempts: 5}

// Delay returns the wait before retry number n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
func (b Backoff) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsRetryable(err) || i == attempts-1 {
			return err
		}
		metrics.CatalogRetries.WithLabelValues(op).Inc()
		if serr := sleep(ctx, b.Delay(i)); serr != nil {
			return serr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
