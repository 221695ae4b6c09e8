package catalog

import (
	"context"
	"time"
)

// retryPolicy is a bounded exponential backoff for batch reads that come
// back partially processed.
type retryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		MaxAttempts:   5,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// delay is the wait before retry n (1-based).
func (p retryPolicy) delay(n int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * p.BackoffFactor)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
