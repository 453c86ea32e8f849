package rule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vk/sessionkit/internal/config"
	"github.com/vk/sessionkit/internal/ctxlog"
	"github.com/vk/sessionkit/internal/secgate"
)

// SetupCommandsRule runs a sequence of whitelisted commands inside the
// session directory. The whitelist is checked at validation time so a bad
// config fails before anything executes, and re-checked by the gate at
// apply time.
type SetupCommandsRule struct {
	spec *config.RuleSpec
	env  *Env
}

// Name returns the rule's configured name.
func (r *SetupCommandsRule) Name() string { return r.spec.Name }

// Validate fail-fasts every argv against the whitelist before any
// execution begins. All violations are collected before returning.
func (r *SetupCommandsRule) Validate(ctx context.Context) error {
	var problems []string
	for _, c := range r.spec.Commands {
		if err := r.env.Whitelist.Check(c.Command); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("rule '%s': %s", r.spec.Name, strings.Join(problems, "; "))
	}
	return nil
}

// Apply runs each command in order. Conditions are evaluated against the
// session directory just before each run; a satisfied pre-condition skips
// the command. A failing command fails the rule unless it is marked
// ignorable.
func (r *SetupCommandsRule) Apply(ctx context.Context) *Result {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	result := &Result{RuleName: r.spec.Name}

	for _, c := range r.spec.Commands {
		if satisfied, why := r.conditionSatisfied(c); satisfied {
			logger.Info("Skipping command, pre-condition already satisfied.", "rule", r.spec.Name, "argv", c.Command, "reason", why)
			continue
		}

		cmdStart := time.Now()
		execResult, err := r.env.Commands.Execute(ctx, secgate.ExecRequest{
			Argv:        c.Command,
			Dir:         r.env.SessionPath,
			Environment: c.Environment,
			Timeout:     c.Timeout,
		})
		if err != nil {
			// Security errors and spawn failures are fatal to the rule.
			result.Err = &ExecutionError{Rule: r.spec.Name, Err: err}
			result.Duration = time.Since(start)
			return result
		}

		result.Artifacts = append(result.Artifacts, Artifact{
			ID:              uuid.NewString(),
			SourcePath:      strings.Join(c.Command, " "),
			DestinationPath: r.env.SessionPath,
			Operation:       OpCommand,
			Duration:        time.Since(cmdStart),
		})

		if !execResult.Success() {
			if c.IgnoreFailure {
				logger.Warn("Command failed but is marked ignorable.", "rule", r.spec.Name, "argv", c.Command, "exit_code", execResult.ExitCode, "stderr", execResult.Stderr)
				continue
			}
			why := fmt.Sprintf("exit code %d", execResult.ExitCode)
			if execResult.TimedOut {
				why = fmt.Sprintf("timed out after %s", c.Timeout)
			}
			result.Err = &ExecutionError{
				Rule: r.spec.Name,
				Err:  fmt.Errorf("command %v failed (%s): %s", c.Command, why, strings.TrimSpace(execResult.Stderr)),
			}
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Duration = time.Since(start)
	return result
}

// conditionSatisfied reports whether the command's pre-condition already
// holds, meaning the command should be skipped.
func (r *SetupCommandsRule) conditionSatisfied(c *config.CommandSpec) (bool, string) {
	switch c.Condition {
	case config.CondFileNotExists:
		target := filepath.Join(r.env.SessionPath, c.ConditionPath)
		if _, err := os.Stat(target); err == nil {
			return true, fmt.Sprintf("file %s already exists", c.ConditionPath)
		}
	case config.CondDBNotExists:
		for _, pattern := range []string{"db/*.sqlite3", "storage/*.sqlite3"} {
			matches, _ := filepath.Glob(filepath.Join(r.env.SessionPath, pattern))
			if len(matches) > 0 {
				return true, fmt.Sprintf("database %s already exists", matches[0])
			}
		}
	}
	return false, ""
}

var _ Rule = (*SetupCommandsRule)(nil)

// SetupCommandsRule records command artifacts but deliberately implements
// no Reverser: commands have no generic inverse, so rollback treats them
// as a no-op.
