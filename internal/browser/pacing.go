// internal/browser/pacing.go
package browser

import (
	"context"
	"time"
)

// Click-hold range simulating the dwell between deciding and acting.
const (
	holdMinMs = 120
	holdMaxMs = 450
)

// holdDelay draws a randomized pre-action dwell time.
func (s *Session) holdDelay() time.Duration {
	return time.Duration(holdMinMs+s.rng.Intn(holdMaxMs-holdMinMs)) * time.Millisecond
}

// hesitate pauses for d while respecting both the caller's context and the
// session lifecycle. Cooperative wait, never a busy loop.
func (s *Session) hesitate(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-timer.C:
		return nil
	}
}
