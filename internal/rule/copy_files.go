package rule

import (
	"context"
	"errors"
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

// CopyFilesRule copies or symlinks a set of files from the project root
// into the session, routing every materialization through the security
// gate's copier.
type CopyFilesRule struct {
	spec *config.RuleSpec
	env  *Env
}

// Name returns the rule's configured name.
func (r *CopyFilesRule) Name() string { return r.spec.Name }

// Validate checks every file entry: a required source must exist under the
// project root, and both endpoints must validate against their base
// directories. All violations are collected before returning.
func (r *CopyFilesRule) Validate(ctx context.Context) error {
	var problems []string
	for _, f := range r.spec.Files {
		src, err := r.env.Paths.Validate(f.Source, r.env.ProjectPath)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if _, err := r.env.Paths.Validate(f.Destination, r.env.SessionPath); err != nil {
			problems = append(problems, err.Error())
		}
		if f.Required {
			if _, statErr := os.Lstat(src); errors.Is(statErr, os.ErrNotExist) {
				problems = append(problems, fmt.Sprintf("Required source file does not exist: %s", f.Source))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("rule '%s': %s", r.spec.Name, strings.Join(problems, "; "))
	}
	return nil
}

// Apply materializes each entry. A missing optional source is skipped; any
// other per-entry failure fails the whole rule.
func (r *CopyFilesRule) Apply(ctx context.Context) *Result {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	result := &Result{RuleName: r.spec.Name}

	for _, f := range r.spec.Files {
		entryStart := time.Now()

		if !f.Required {
			src := filepath.Join(r.env.ProjectPath, f.Source)
			if _, err := os.Lstat(src); errors.Is(err, os.ErrNotExist) {
				logger.Debug("Skipping optional missing source.", "rule", r.spec.Name, "source", f.Source)
				continue
			}
		}

		outcome, err := r.env.Copier.Copy(ctx, secgate.CopyRequest{
			Source:      f.Source,
			ProjectRoot: r.env.ProjectPath,
			Destination: f.Destination,
			SessionRoot: r.env.SessionPath,
			Symlink:     f.Strategy == config.StrategySymlink,
			Mode:        f.Permissions,
			Encrypt:     f.Encrypt,
		})
		if err != nil {
			result.Err = &ExecutionError{Rule: r.spec.Name, Err: err}
			result.Duration = time.Since(start)
			return result
		}

		op := OpCopy
		if f.Strategy == config.StrategySymlink {
			op = OpSymlink
		}
		result.Artifacts = append(result.Artifacts, Artifact{
			ID:              uuid.NewString(),
			SourcePath:      outcome.SourcePath,
			DestinationPath: outcome.DestinationPath,
			Operation:       op,
			Checksum:        outcome.Checksum,
			Encrypted:       outcome.Encrypted,
			Duration:        time.Since(entryStart),
		})
	}

	result.Duration = time.Since(start)
	return result
}

// Rollback removes the destinations this rule created, tolerating paths
// that are already gone.
func (r *CopyFilesRule) Rollback(ctx context.Context, artifacts []Artifact) error {
	logger := ctxlog.FromContext(ctx)
	for i := len(artifacts) - 1; i >= 0; i-- {
		a := artifacts[i]
		if a.Operation != OpCopy && a.Operation != OpSymlink {
			continue
		}
		if err := os.Remove(a.DestinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", a.DestinationPath, err)
		}
		logger.Debug("Rolled back artifact.", "rule", r.spec.Name, "destination", a.DestinationPath)
	}
	return nil
}
