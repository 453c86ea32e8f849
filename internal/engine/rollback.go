package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vk/sessionkit/internal/ctxlog"
	"github.com/vk/sessionkit/internal/rule"
)

// RollbackRules replays the artifacts journaled by the last ApplyRules call
// in reverse application order. Copy, symlink, and render artifacts have
// their destinations removed; command artifacts have no generic inverse
// and are counted as skipped. Rollback is best-effort: an already-absent
// artifact is recorded, not raised.
func (e *Engine) RollbackRules(ctx context.Context) *RollbackReport {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	e.mu.Lock()
	journal := e.journal
	applied := e.applied
	e.journal = nil
	e.mu.Unlock()

	report := &RollbackReport{}
	logger.Info("Rolling back applied rules.", "artifacts", len(journal))

	for i := len(journal) - 1; i >= 0; i-- {
		entry := journal[i]
		report.Attempted++

		if entry.artifact.Operation == rule.OpCommand {
			report.SkippedCommands++
			continue
		}

		if _, err := os.Lstat(entry.artifact.DestinationPath); errors.Is(err, os.ErrNotExist) {
			report.Missing++
			continue
		}

		if err := e.reverse(ctx, applied[entry.ruleName], entry.artifact); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("rule '%s': %v", entry.ruleName, err))
			logger.Error("Rollback of artifact failed.", "rule", entry.ruleName, "destination", entry.artifact.DestinationPath, "error", err)
			continue
		}
		report.Reversed++
		logger.Debug("Reversed artifact.", "rule", entry.ruleName, "destination", entry.artifact.DestinationPath)
	}

	report.Duration = time.Since(start)
	logger.Info("Rollback finished.", "reversed", report.Reversed, "missing", report.Missing, "skipped_commands", report.SkippedCommands, "failures", len(report.Failures))
	return report
}

// reverse undoes one artifact, delegating to the rule's own Reverser when
// it has one and falling back to removing the destination path.
func (e *Engine) reverse(ctx context.Context, r rule.Rule, a rule.Artifact) error {
	if rev, ok := r.(rule.Reverser); ok {
		return rev.Rollback(ctx, []rule.Artifact{a})
	}
	if err := os.Remove(a.DestinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
