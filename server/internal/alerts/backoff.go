package alerts

import (
	"context"
	"math/rand"
	"time"
)

// Webhook retry delays.
const (
	retryInitial = 500 * time.Millisecond
	retryCeiling = 10 * time.Second
)

// retryDelay yields the waits between delivery attempts: doubling from
// base up to ceiling, each with ±25% jitter.
type retryDelay struct {
	base    time.Duration
	ceiling time.Duration
}

func newRetryDelay() *retryDelay {
	return &retryDelay{base: retryInitial, ceiling: retryCeiling}
}

// next returns the delay before the upcoming attempt.
func (d *retryDelay) next() time.Duration {
	cur := d.base
	d.base = min(d.base*2, d.ceiling)
	jitter := time.Duration((rand.Float64()*0.5 - 0.25) * float64(cur)) //nolint:gosec // not crypto
	return max(0, cur+jitter)
}

// wait sleeps for the next delay, returning early with ctx's error.
func (d *retryDelay) wait(ctx context.Context) error {
	t := time.NewTimer(d.next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
