// File: internal/workflow/controller.go
// Description: Top-level orchestrator for one application workflow. It is
// injected with its collaborators via interfaces, making it decoupled and
// testable.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/api/schemas"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/resilience"
	"github.com/xkilldash9x/applypilot/internal/selector"
)

// ErrStepLimitExceeded signals that the step loop ran out of budget without
// ever seeing a submit control — an unanticipated workflow shape, reported
// distinctly from a step-level failure.
var ErrStepLimitExceeded = errors.New("step limit reached without a submit signal")

// Controller drives one target through the bounded multi-step workflow and
// owns the single terminal repository write for every outcome.
type Controller struct {
	cfg     config.WorkflowConfig
	pacing  config.PacingConfig
	steps   *StepProcessor
	sel     *selector.Resolver
	sets    SelectorSets
	repo    schemas.TargetRepository
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryPolicy
	log     *zap.Logger
	rng     *rand.Rand
}

// NewController validates and wires the workflow controller.
func NewController(
	cfg *config.Config,
	steps *StepProcessor,
	sel *selector.Resolver,
	sets SelectorSets,
	repo schemas.TargetRepository,
	breaker *resilience.CircuitBreaker,
	logger *zap.Logger,
) (*Controller, error) {
	if cfg == nil || steps == nil || sel == nil || repo == nil || breaker == nil {
		return nil, fmt.Errorf("cannot initialize workflow controller with nil dependencies")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := sets.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:     cfg.Workflow,
		pacing:  cfg.Pacing,
		steps:   steps,
		sel:     sel,
		sets:    sets,
		repo:    repo,
		breaker: breaker,
		retry:   resilience.PolicyFromConfig(cfg.Retry),
		log:     logger.Named("controller"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Execute drives target through the workflow on the given session and maps the
// terminal signal to an application-level outcome. Exactly one repository
// status write happens per terminal path; the step processor and selector
// resolver never write target state.
func (c *Controller) Execute(ctx context.Context, sess schemas.Session, target *schemas.Target) (schemas.Outcome, error) {
	log := c.log.With(zap.String("target_id", target.ID), zap.String("session_id", sess.ID()))

	// Short-circuit: never re-drive a completed target.
	done, err := c.repo.HasCompleted(ctx, target.ID)
	if err != nil {
		return schemas.OutcomeError, fmt.Errorf("checking target completion: %w", err)
	}
	if done {
		log.Info("Target already completed, skipping workflow")
		return schemas.OutcomeAlreadyDone, nil
	}

	// Prerequisite validation. Failing here is an expected branch, not an error.
	if reason, ok := c.checkPrerequisites(target); !ok {
		log.Info("Prerequisites not met", zap.String("reason", reason))
		if err := c.repo.MarkSkipped(ctx, target.ID, reason); err != nil {
			return schemas.OutcomeError, fmt.Errorf("recording skip: %w", err)
		}
		return schemas.OutcomeSkipped, nil
	}

	// Entry control.
	entry, err := c.sel.Resolve(ctx, sess, c.sets.Entry)
	if err != nil {
		return c.fail(ctx, sess, target, err, 1, c.sets.Entry.Name)
	}
	if entry == nil {
		log.Info("Entry control not found, skipping target")
		if err := c.repo.MarkSkipped(ctx, target.ID, "entry point unavailable"); err != nil {
			return schemas.OutcomeError, fmt.Errorf("recording skip: %w", err)
		}
		return schemas.OutcomeSkipped, nil
	}

	if res := c.guarded(ctx, func(opCtx context.Context) error {
		return sess.Activate(opCtx, entry)
	}); !res.Success {
		return c.fail(ctx, sess, target, res.Err, res.Attempts, entry.Selector)
	}

	// The workflow container must appear within a fixed window. Timing out
	// here is a hard failure, never retried internally.
	if err := sess.WaitFor(ctx, c.sets.Container.Candidates[0], c.cfg.ContainerTimeout); err != nil {
		return c.fail(ctx, sess, target, fmt.Errorf("workflow container did not appear: %w", err), 1, c.sets.Container.Name)
	}

	// Bounded step loop.
	for step := 1; step <= c.cfg.MaxSteps; step++ {
		if err := c.interventionGuard(ctx, sess, log); err != nil {
			return c.fail(ctx, sess, target, err, 1, c.sets.Challenge.Name)
		}

		if err := hesitate(ctx, randomBetween(c.rng, c.pacing.PreStepDelayMin, c.pacing.PreStepDelayMax)); err != nil {
			return c.fail(ctx, sess, target, err, 1, "")
		}

		outcome := c.steps.ProcessStep(ctx, sess, step)
		switch outcome.Result {
		case schemas.StepSubmit:
			return c.finalize(ctx, sess, target, log)

		case schemas.StepContinue:
			if err := hesitate(ctx, randomBetween(c.rng, c.pacing.PostAdvanceDelayMin, c.pacing.PostAdvanceDelayMax)); err != nil {
				return c.fail(ctx, sess, target, err, 1, "")
			}

		case schemas.StepError:
			log.Error("Step reported unrecoverable error",
				zap.Int("step", step),
				zap.Int("unfilled_required", outcome.UnfilledRequired),
				zap.Error(outcome.Err))
			return c.fail(ctx, sess, target, outcome.Err, 1, "")
		}
	}

	// Exhausting the budget means the board changed shape on us. Logged and
	// classified distinctly from a step-reported error.
	log.Error("Workflow shape unanticipated: step budget exhausted",
		zap.Int("max_steps", c.cfg.MaxSteps))
	return c.fail(ctx, sess, target,
		fmt.Errorf("%w (max_steps=%d)", ErrStepLimitExceeded, c.cfg.MaxSteps), 1, "")
}

// finalize activates the final submit control and confirms submission through
// the success indicator.
func (c *Controller) finalize(ctx context.Context, sess schemas.Session, target *schemas.Target, log *zap.Logger) (schemas.Outcome, error) {
	final, err := c.sel.Resolve(ctx, sess, c.sets.FinalSubmit)
	if err != nil {
		return c.fail(ctx, sess, target, err, 1, c.sets.FinalSubmit.Name)
	}
	if final == nil {
		return c.fail(ctx, sess, target, fmt.Errorf("final submit control unavailable"), 1, c.sets.FinalSubmit.Name)
	}

	if res := c.guarded(ctx, func(opCtx context.Context) error {
		return sess.Activate(opCtx, final)
	}); !res.Success {
		return c.fail(ctx, sess, target, res.Err, res.Attempts, final.Selector)
	}

	if err := sess.WaitFor(ctx, c.sets.Success.Candidates[0], c.cfg.IndicatorTimeout); err != nil {
		return c.fail(ctx, sess, target, fmt.Errorf("success indicator not observed: %w", err), 1, c.sets.Success.Name)
	}

	if err := c.repo.MarkApplied(ctx, target.ID); err != nil {
		return schemas.OutcomeError, fmt.Errorf("recording applied status: %w", err)
	}
	log.Info("Application submitted", zap.String("title", target.Title))
	return schemas.OutcomeApplied, nil
}

// guarded runs a session operation under the circuit breaker with retry.
// Circuit rejections are never retried; everything else follows the
// category-based policy.
func (c *Controller) guarded(ctx context.Context, op resilience.Operation) resilience.RetryResult {
	policy := c.retry
	policy.Condition = func(err error, attempt int) bool {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return false
		}
		return resilience.Retryable(resilience.Classify(err), attempt)
	}
	return resilience.WithRetry(ctx, func(opCtx context.Context) error {
		return c.breaker.Execute(opCtx, op)
	}, policy, c.log)
}

// fail converts an internal error into the single escalated workflow error,
// persists the terminal error status, and maps to the error outcome. Skip
// reasons and messages stay human-readable; category tags travel separately.
func (c *Controller) fail(ctx context.Context, sess schemas.Session, target *schemas.Target, err error, attempts int, sel string) (schemas.Outcome, error) {
	werr := resilience.NewWorkflowError(err, attempts, schemas.ErrorContext{
		TargetID:  target.ID,
		SessionID: sess.ID(),
		URL:       sess.CurrentLocation(),
		Selector:  sel,
	})

	if markErr := c.repo.MarkErrorContext(ctx, target.ID, werr.Context); markErr != nil {
		c.log.Error("Failed to persist error status",
			zap.String("target_id", target.ID),
			zap.Error(markErr))
	}
	return schemas.OutcomeError, werr
}

// checkPrerequisites runs the target-specific eligibility pass.
func (c *Controller) checkPrerequisites(target *schemas.Target) (reason string, ok bool) {
	if target.ID == "" {
		return "target has no identifier", false
	}
	if target.URL == "" {
		return "target has no canonical URL", false
	}
	u, err := url.Parse(target.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "target URL is not a web address", false
	}
	if strings.TrimSpace(target.Title) == "" {
		return "target has no title", false
	}
	return "", true
}
