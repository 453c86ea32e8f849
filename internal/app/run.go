package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/sessionkit/internal/ctxlog"
	"github.com/vk/sessionkit/internal/engine"
)

// Run executes the requested mode: validate-only, or apply with optional
// rollback on failure. Rule-level failures surface as a non-nil error so
// the CLI exits non-zero, but only after the complete result has been
// reported.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if err := a.engine.ValidateRulesConfig(ctx, a.model); err != nil {
		return fmt.Errorf("rules validation failed: %w", err)
	}
	a.logger.Info("Rules configuration is valid.", "rules", len(a.model.Rules))

	if a.config.ValidateOnly {
		fmt.Fprintln(a.outW, "Rules configuration is valid.")
		return nil
	}

	result, err := a.engine.ApplyRules(ctx, a.model, engine.Options{
		Parallel:          a.config.Parallel,
		MaxParallelism:    a.config.MaxParallelism,
		ContinueOnFailure: a.config.ContinueOnFailure,
	})
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	a.report(result)

	if !result.Success() {
		if a.config.RollbackOnFailure {
			report := a.engine.RollbackRules(ctx)
			fmt.Fprintf(a.outW, "Rolled back %d artifact(s), %d already missing, %d command(s) not reversible.\n",
				report.Reversed, report.Missing, report.SkippedCommands)
			if !report.Ok() {
				for _, f := range report.Failures {
					fmt.Fprintf(a.outW, "  rollback failure: %s\n", f)
				}
			}
		}
		return fmt.Errorf("%d rule(s) failed", len(result.FailedRules))
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// report prints a human-readable apply summary to the output writer.
func (a *App) report(result *engine.ApplyResult) {
	for _, name := range result.AppliedRules {
		fmt.Fprintf(a.outW, "applied  %s\n", name)
	}
	for _, name := range result.FailedRules {
		fmt.Fprintf(a.outW, "failed   %s\n", name)
	}
	for _, name := range result.SkippedRules {
		fmt.Fprintf(a.outW, "skipped  %s\n", name)
	}
	fmt.Fprintf(a.outW, "%d applied, %d failed, %d skipped in %s\n",
		len(result.AppliedRules), len(result.FailedRules), len(result.SkippedRules), result.TotalDuration.Round(time.Millisecond))
}
