// -- cmd/run.go --
package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/applypilot/api/schemas"
	"github.com/xkilldash9x/applypilot/internal/answers"
	"github.com/xkilldash9x/applypilot/internal/browser"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/observability"
	"github.com/xkilldash9x/applypilot/internal/resilience"
	"github.com/xkilldash9x/applypilot/internal/selector"
	"github.com/xkilldash9x/applypilot/internal/store"
	"github.com/xkilldash9x/applypilot/internal/workflow"
)

var runLimit int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive pending targets through the application workflow",
	RunE:  runWorkflows,
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 10, "maximum number of targets to process in this run")
	rootCmd.AddCommand(runCmd)
}

func runWorkflows(cmd *cobra.Command, args []string) error {
	log := observability.GetLogger()

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required for the run command")
	}

	// Cancellation is cooperative: an interrupt lets the in-flight target
	// finish its current operation, then the loop declines to start the next.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	st, err := store.New(ctx, pool, log)
	if err != nil {
		return err
	}

	sess, err := browser.NewSession(ctx, cfg.Browser, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctrl, err := buildController(cfg, st, log)
	if err != nil {
		return err
	}

	targets, err := st.ListPending(ctx, runLimit)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		log.Info("No pending targets")
		return nil
	}
	log.Info("Processing pending targets", zap.Int("count", len(targets)))

	// One target at a time, at a bounded human-plausible rate.
	limiter := rate.NewLimiter(rate.Limit(cfg.Pacing.TargetsPerMinute/60.0), 1)

	var applied, skipped, failed int
	for i := range targets {
		target := targets[i]
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		if err := sess.Navigate(ctx, target.URL); err != nil {
			log.Error("Navigation failed, skipping target",
				zap.String("target_id", target.ID), zap.Error(err))
			failed++
			continue
		}

		outcome, err := ctrl.Execute(ctx, sess, &target)
		switch outcome {
		case schemas.OutcomeApplied:
			applied++
		case schemas.OutcomeSkipped, schemas.OutcomeAlreadyDone:
			skipped++
		default:
			failed++
			var werr *resilience.WorkflowError
			if errors.As(err, &werr) {
				log.Error("Workflow failed",
					zap.String("target_id", target.ID),
					zap.String("category", string(werr.Context.Category)),
					zap.String("severity", string(werr.Context.Severity)),
					zap.Error(err))
				// A fatal failure means the session itself is suspect; later
				// targets would only add noise.
				if werr.Context.Severity == schemas.SeverityFatal {
					log.Error("Fatal failure, aborting run")
					return err
				}
			} else if err != nil {
				log.Error("Workflow failed", zap.String("target_id", target.ID), zap.Error(err))
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	log.Info("Run finished",
		zap.Int("applied", applied),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed))
	return nil
}

// buildController assembles the workflow controller and its component graph.
func buildController(cfg *config.Config, repo schemas.TargetRepository, log *zap.Logger) (*workflow.Controller, error) {
	sel := selector.NewResolver(log)
	ans := answers.NewResolver(cfg.Answers, log)
	sets := workflow.DefaultSelectorSets()

	steps, err := workflow.NewStepProcessor(sel, ans, sets, log)
	if err != nil {
		return nil, err
	}

	breaker, err := resilience.NewCircuitBreaker("board", cfg.Breaker, log)
	if err != nil {
		return nil, err
	}

	return workflow.NewController(cfg, steps, sel, sets, repo, breaker, log)
}
