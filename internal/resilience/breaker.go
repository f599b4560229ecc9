// internal/resilience/breaker.go
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/config"
)

// ErrCircuitOpen is returned when the breaker rejects a call without invoking
// the wrapped operation.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is one of closed, open, half-open.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// CircuitBreaker guards a class of operations against the same external
// target. It opens after FailureThreshold failures within MonitoringPeriod,
// half-opens after RecoveryTimeout, and closes again after SuccessThreshold
// consecutive successes. Rejecting fast in the open state deliberately trades
// local throughput for not hammering an already struggling target.
//
// All state is mutated under a single mutex; one breaker instance must be
// owned by exactly one workflow lane.
type CircuitBreaker struct {
	mu   sync.Mutex
	name string
	cfg  config.BreakerConfig
	log  *zap.Logger

	state        BreakerState
	failures     int
	successes    int
	windowStart  time.Time
	lastFailure  time.Time
	rejected     int64
	forcedOpen   bool
}

// NewCircuitBreaker validates the configuration and returns a closed breaker.
func NewCircuitBreaker(name string, cfg config.BreakerConfig, logger *zap.Logger) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("circuit breaker %q: %w", name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		log:   logger.Named("breaker").With(zap.String("breaker", name)),
		state: StateClosed,
	}, nil
}

// Execute runs op under the breaker. In the open state it increments the
// rejected-request counter and fails fast without invoking op.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterCall(err)
	return err
}

// beforeCall applies the admission decision and time-based state transitions.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && !cb.forcedOpen && time.Since(cb.lastFailure) >= cb.cfg.RecoveryTimeout {
		cb.transition(StateHalfOpen)
		cb.successes = 0
	}

	if cb.state == StateOpen {
		cb.rejected++
		return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	}
	return nil
}

// afterCall records the outcome of an admitted operation.
func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
			cb.reset()
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	now := time.Now()
	cb.lastFailure = now

	switch cb.state {
	case StateHalfOpen:
		// A single failure during the trial period re-opens immediately.
		cb.transition(StateOpen)
		cb.successes = 0
	case StateClosed:
		if cb.windowStart.IsZero() || now.Sub(cb.windowStart) > cb.cfg.MonitoringPeriod {
			cb.windowStart = now
			cb.failures = 0
		}
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
	}
}

// reset clears counters fully; only called on transition to closed.
func (cb *CircuitBreaker) reset() {
	cb.failures = 0
	cb.successes = 0
	cb.windowStart = time.Time{}
	cb.forcedOpen = false
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	if cb.state == to {
		return
	}
	cb.log.Info("Circuit state transition",
		zap.String("from", string(cb.state)),
		zap.String("to", string(to)))
	cb.state = to
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RejectedRequests returns how many calls were refused while open.
func (cb *CircuitBreaker) RejectedRequests() int64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.rejected
}

// ForceOpen is the explicit manual override: the breaker stays open until
// Reset, regardless of elapsed time.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.forcedOpen = true
	cb.lastFailure = time.Now()
	cb.transition(StateOpen)
}

// Reset forces the breaker back to closed with all counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.reset()
}
