// internal/browser/session_test.go
package browser

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests here cover the pure helpers; driving a real browser belongs to
// integration runs, not the unit suite.

func TestVisibilityProbe(t *testing.T) {
	t.Run("embeds the selector as a quoted string", func(t *testing.T) {
		script := visibilityProbe(`button[aria-label='Submit application']`)
		assert.Contains(t, script, `document.querySelector("button[aria-label='Submit application']")`)
	})

	t.Run("escapes quotes and backslashes", func(t *testing.T) {
		script := visibilityProbe(`a[title="x\y"]`)
		assert.Contains(t, script, `document.querySelector("a[title=\"x\\y\"]")`)
	})
}

func TestHoldDelay(t *testing.T) {
	s := &Session{rng: rand.New(rand.NewSource(1))}
	for i := 0; i < 200; i++ {
		d := s.holdDelay()
		require.GreaterOrEqual(t, d, holdMinMs*time.Millisecond)
		require.Less(t, d, holdMaxMs*time.Millisecond)
	}
}

func TestHesitate(t *testing.T) {
	s := &Session{ctx: context.Background()}

	t.Run("zero and negative durations return immediately", func(t *testing.T) {
		assert.NoError(t, s.hesitate(context.Background(), 0))
		assert.NoError(t, s.hesitate(context.Background(), -time.Second))
	})

	t.Run("caller cancellation interrupts the pause", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, s.hesitate(ctx, time.Minute), context.Canceled)
	})

	t.Run("session teardown interrupts the pause", func(t *testing.T) {
		sessCtx, sessCancel := context.WithCancel(context.Background())
		closed := &Session{ctx: sessCtx}
		sessCancel()
		assert.ErrorIs(t, closed.hesitate(context.Background(), time.Minute), context.Canceled)
	})
}
