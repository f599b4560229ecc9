// internal/resilience/breaker_test.go
package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/config"
)

var errBoom = errors.New("boom")

func testBreaker(t *testing.T, cfg config.BreakerConfig) *CircuitBreaker {
	t.Helper()
	cb, err := NewCircuitBreaker("test", cfg, zap.NewNop())
	require.NoError(t, err)
	return cb
}

func fastBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		MonitoringPeriod: time.Minute,
		RecoveryTimeout:  20 * time.Millisecond,
	}
}

func fail(ctx context.Context) error    { return errBoom }
func succeed(ctx context.Context) error { return nil }

func TestNewCircuitBreaker(t *testing.T) {
	t.Run("rejects invalid configuration", func(t *testing.T) {
		_, err := NewCircuitBreaker("bad", config.BreakerConfig{}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("starts closed", func(t *testing.T) {
		cb := testBreaker(t, fastBreakerConfig())
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestCircuitBreakerOpens(t *testing.T) {
	cb := testBreaker(t, fastBreakerConfig())
	ctx := context.Background()

	// Two failures stay under the threshold.
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
		assert.Equal(t, StateClosed, cb.State())
	}

	// The third failure trips the circuit.
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerRejectsWhileOpen(t *testing.T) {
	cb := testBreaker(t, fastBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Execute(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls, "rejected calls must not invoke the operation")
	assert.Equal(t, int64(1), cb.RejectedRequests())
}

func TestCircuitBreakerSuccessResetsClosedCount(t *testing.T) {
	cb := testBreaker(t, fastBreakerConfig())
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))

	// The earlier failures no longer count toward the threshold.
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cfg := fastBreakerConfig()
	cb := testBreaker(t, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = cb.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(cfg.RecoveryTimeout + 5*time.Millisecond)

	t.Run("first trial call is admitted half-open", func(t *testing.T) {
		require.NoError(t, cb.Execute(ctx, succeed))
		assert.Equal(t, StateHalfOpen, cb.State())
	})

	t.Run("closes after the success threshold", func(t *testing.T) {
		require.NoError(t, cb.Execute(ctx, succeed))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("counters are reset after closing", func(t *testing.T) {
		// A single failure must not trip the freshly closed circuit.
		_ = cb.Execute(ctx, fail)
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := fastBreakerConfig()
	cb := testBreaker(t, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = cb.Execute(ctx, fail)
	}
	time.Sleep(cfg.RecoveryTimeout + 5*time.Millisecond)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerForceOpen(t *testing.T) {
	cfg := fastBreakerConfig()
	cb := testBreaker(t, cfg)
	ctx := context.Background()

	cb.ForceOpen()
	assert.Equal(t, StateOpen, cb.State())

	// Elapsed recovery time must not release a manual hold.
	time.Sleep(cfg.RecoveryTimeout + 5*time.Millisecond)
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(ctx, succeed))
}
