// internal/resilience/retry.go
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/config"
)

// Operation is a unit of work the retry executor can run.
type Operation func(ctx context.Context) error

// RetryCondition decides whether a failed attempt should be retried.
// attempt is 1-based and refers to the attempt that just failed.
type RetryCondition func(err error, attempt int) bool

// RetryPolicy configures one retry execution. It is read-only for the
// duration of that execution.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Condition may be nil, in which case the category-based default policy
	// applies (Classify + Retryable).
	Condition RetryCondition
}

// PolicyFromConfig lifts the validated configuration into a policy.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Multiplier:  cfg.Multiplier,
	}
}

// RetryResult reports how an execution went. Attempts and Elapsed are
// populated regardless of outcome; severity escalation depends on them.
type RetryResult struct {
	Success  bool
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// jitterFraction is the symmetric variance applied to each backoff delay so
// parallel instances never retry in lockstep against the shared target.
const jitterFraction = 0.25

// WithRetry runs op with bounded sequential attempts and exponential backoff.
// On failure it consults the policy's condition; if the condition declines,
// it stops immediately and preserves the last error.
func WithRetry(ctx context.Context, op Operation, policy RetryPolicy, log *zap.Logger) RetryResult {
	if log == nil {
		log = zap.NewNop()
	}
	condition := policy.Condition
	if condition == nil {
		condition = func(err error, attempt int) bool {
			return Retryable(Classify(err), attempt)
		}
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult{Attempts: attempt - 1, Elapsed: time.Since(start), Err: err}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return RetryResult{Success: true, Attempts: attempt, Elapsed: time.Since(start)}
		}

		if attempt == policy.MaxAttempts || !condition(lastErr, attempt) {
			return RetryResult{Attempts: attempt, Elapsed: time.Since(start), Err: lastErr}
		}

		delay := backoffDelay(policy, attempt)
		log.Debug("Attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		if err := sleep(ctx, delay); err != nil {
			return RetryResult{Attempts: attempt, Elapsed: time.Since(start), Err: err}
		}
	}

	// Unreachable: the loop always returns from within.
	return RetryResult{Attempts: policy.MaxAttempts, Elapsed: time.Since(start), Err: lastErr}
}

// backoffDelay computes min(maxDelay, base*multiplier^(attempt-1)) with ±25%
// symmetric jitter. attempt is the 1-based attempt that just failed.
func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	base := float64(policy.BaseDelay) * math.Pow(policy.Multiplier, float64(attempt-1))
	if capped := float64(policy.MaxDelay); base > capped {
		base = capped
	}
	jitter := base * jitterFraction * (2*rand.Float64() - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep is a context-aware pause.
func sleep(ctx context.Context, d time.Duration) error {
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
