// internal/workflow/pause.go
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/api/schemas"
)

// interventionGuard checks for a challenge indicator and, when present, waits
// for a human to clear it. The wait looks unbounded from the outside but is a
// poll loop with a hard ceiling; exceeding the ceiling is a timeout failure,
// not an infinite block.
func (c *Controller) interventionGuard(ctx context.Context, sess schemas.Session, log *zap.Logger) error {
	present, err := c.sel.Resolve(ctx, sess, c.sets.Challenge)
	if err != nil {
		return fmt.Errorf("resolving challenge indicator: %w", err)
	}
	if present == nil {
		return nil
	}

	log.Warn("Challenge detected, pausing for manual resolution",
		zap.Duration("ceiling", c.cfg.PauseCeiling))

	deadline := time.Now().Add(c.cfg.PauseCeiling)
	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("manual intervention timed out after %s", c.cfg.PauseCeiling)
		}
		if err := hesitate(ctx, c.cfg.PausePollInterval); err != nil {
			return err
		}

		present, err = c.sel.Resolve(ctx, sess, c.sets.Challenge)
		if err != nil {
			return fmt.Errorf("re-resolving challenge indicator: %w", err)
		}
		if present == nil {
			log.Info("Challenge cleared, resuming workflow")
			return nil
		}
	}
}
