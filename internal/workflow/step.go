// internal/workflow/step.go
package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/api/schemas"
	"github.com/xkilldash9x/applypilot/internal/answers"
	"github.com/xkilldash9x/applypilot/internal/selector"
)

// StepProcessor executes one unit of the multi-step workflow. It holds no
// cross-step mutable state: each invocation is idempotent with respect to the
// step index, and it never retries internally.
type StepProcessor struct {
	selectors *selector.Resolver
	answers   *answers.Resolver
	sets      SelectorSets
	log       *zap.Logger
}

// NewStepProcessor wires the step processor with its resolvers.
func NewStepProcessor(sel *selector.Resolver, ans *answers.Resolver, sets SelectorSets, logger *zap.Logger) (*StepProcessor, error) {
	if sel == nil || ans == nil {
		return nil, fmt.Errorf("cannot initialize step processor with nil resolvers")
	}
	if err := sets.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepProcessor{
		selectors: sel,
		answers:   ans,
		sets:      sets,
		log:       logger.Named("step"),
	}, nil
}

// ProcessStep drives a single step, identified by its 1-based index.
func (p *StepProcessor) ProcessStep(ctx context.Context, sess schemas.Session, stepIndex int) schemas.StepOutcome {
	log := p.log.With(zap.Int("step", stepIndex))

	// 1. The terminal step carries the submit/review control and no fillable
	// fields worth touching. Detect it before any filling.
	terminal, err := p.selectors.Resolve(ctx, sess, p.sets.Terminal)
	if err != nil {
		return schemas.StepOutcome{Result: schemas.StepError, Err: fmt.Errorf("resolving terminal control: %w", err)}
	}
	if terminal != nil {
		log.Info("Terminal control resolvable, step is terminal")
		return schemas.StepOutcome{Result: schemas.StepSubmit}
	}

	// 2. Fill what we can on this step.
	filled, unfilledRequired, err := p.fillFields(ctx, sess, log)
	if err != nil {
		return schemas.StepOutcome{Result: schemas.StepError, FieldsFilled: filled, Err: err}
	}

	// 3. A blocking validation indicator after filling means the step cannot
	// advance. Detection runs before the advance attempt; an unfilled
	// non-required field passes silently.
	blocked, err := p.selectors.Resolve(ctx, sess, p.sets.Validation)
	if err != nil {
		return schemas.StepOutcome{Result: schemas.StepError, FieldsFilled: filled, Err: fmt.Errorf("resolving validation indicator: %w", err)}
	}
	if blocked != nil {
		log.Warn("Validation error present after filling",
			zap.Int("fields_filled", filled),
			zap.Int("unfilled_required", unfilledRequired))
		return schemas.StepOutcome{
			Result:           schemas.StepError,
			FieldsFilled:     filled,
			UnfilledRequired: unfilledRequired,
			Err:              fmt.Errorf("validation error on step %d with %d required field(s) unfilled", stepIndex, unfilledRequired),
		}
	}

	// 4. Advance.
	advance, err := p.selectors.Resolve(ctx, sess, p.sets.Advance)
	if err != nil {
		return schemas.StepOutcome{Result: schemas.StepError, FieldsFilled: filled, Err: fmt.Errorf("resolving advance control: %w", err)}
	}
	if advance == nil {
		return schemas.StepOutcome{
			Result:       schemas.StepError,
			FieldsFilled: filled,
			Err:          fmt.Errorf("advance control unavailable on step %d", stepIndex),
		}
	}
	if err := sess.Activate(ctx, advance); err != nil {
		return schemas.StepOutcome{Result: schemas.StepError, FieldsFilled: filled, Err: fmt.Errorf("activating advance control: %w", err)}
	}

	log.Info("Step completed", zap.Int("fields_filled", filled))
	return schemas.StepOutcome{Result: schemas.StepContinue, FieldsFilled: filled}
}

// fillFields probes the current step for fillable controls and completes each
// one the answer resolver knows. Unanswerable fields are intentionally left
// for the board's own validation to flag.
func (p *StepProcessor) fillFields(ctx context.Context, sess schemas.Session, log *zap.Logger) (filled, unfilledRequired int, err error) {
	var fields []schemas.FormField
	if err := sess.Evaluate(ctx, fieldProbeScript, &fields); err != nil {
		return 0, 0, fmt.Errorf("probing form fields: %w", err)
	}

	for _, field := range fields {
		if field.Value != "" {
			continue // already answered, possibly on a previous visit
		}

		value, ok := p.answers.ValueFor(field.Label)
		if !ok {
			if field.Required {
				unfilledRequired++
			}
			log.Debug("No answer for field, leaving unfilled",
				zap.String("label", field.Label),
				zap.Bool("required", field.Required))
			continue
		}

		el, ferr := sess.Find(ctx, field.Selector)
		if ferr != nil || el == nil {
			// The probe and the fill race against page re-renders; a field
			// that vanished is treated the same as one we could not answer.
			if field.Required {
				unfilledRequired++
			}
			log.Debug("Field no longer resolvable", zap.String("selector", field.Selector))
			continue
		}

		if serr := sess.SetText(ctx, el, value); serr != nil {
			if ctx.Err() != nil {
				return filled, unfilledRequired, ctx.Err()
			}
			if field.Required {
				unfilledRequired++
			}
			log.Debug("Failed to fill field", zap.String("label", field.Label), zap.Error(serr))
			continue
		}
		filled++
	}

	return filled, unfilledRequired, nil
}
