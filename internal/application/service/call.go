package service

import (
	"context"
	"time"
)

// DefaultCallTimeout bounds every single upstream call.
const DefaultCallTimeout = 10 * time.Second

// boundedCall runs fn with a deadline of d. When fn outlives the deadline the
// call returns ok=false while fn keeps running; its eventual result goes to
// late (if non-nil) instead of being lost.
func boundedCall[T any](ctx context.Context, d time.Duration, fn func(context.Context) T, late func(T)) (T, bool) {
	if d <= 0 {
		d = DefaultCallTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	done := make(chan T, 1)
	go func() { done <- fn(cctx) }()

	select {
	case v := <-done:
		cancel()
		return v, true
	case <-cctx.Done():
		cancel()
		if late != nil {
			go func() { late(<-done) }()
		}
		var zero T
		return zero, false
	}
}
