// internal/workflow/pacing.go
package workflow

import (
	"context"
	"math/rand"
	"time"
)

// hesitate pauses for d, waking early only on context cancellation.
func hesitate(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// randomBetween draws a duration from [min, max). The spread approximates the
// variance of a human working through a form.
func randomBetween(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}
