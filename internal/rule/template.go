package rule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vk/sessionkit/internal/config"
	"github.com/vk/sessionkit/internal/ctxlog"
)

// TemplateRule reads a template from the project, renders it through the
// template engine with the per-apply variables, and writes the output into
// the session through the same validated write path as copy_files.
type TemplateRule struct {
	spec *config.RuleSpec
	env  *Env
}

// Name returns the rule's configured name.
func (r *TemplateRule) Name() string { return r.spec.Name }

// Validate checks that the template source exists under the project root,
// that the destination validates against the session root, and that the
// template parses when processing is enabled.
func (r *TemplateRule) Validate(ctx context.Context) error {
	t := r.spec.Template
	var problems []string

	src, err := r.env.Paths.Validate(t.Source, r.env.ProjectPath)
	if err != nil {
		problems = append(problems, err.Error())
	} else if _, statErr := os.Stat(src); errors.Is(statErr, os.ErrNotExist) {
		problems = append(problems, fmt.Sprintf("Required source file does not exist: %s", t.Source))
	} else if t.Process {
		content, readErr := os.ReadFile(src)
		if readErr != nil {
			problems = append(problems, fmt.Sprintf("cannot read template %s: %v", t.Source, readErr))
		} else if synErr := r.env.Templates.ValidateSyntax(string(content)); synErr != nil {
			problems = append(problems, synErr.Error())
		}
	}

	if _, err := r.env.Paths.Validate(t.Destination, r.env.SessionPath); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("rule '%s': %s", r.spec.Name, strings.Join(problems, "; "))
	}
	return nil
}

// Apply renders and writes the template output.
func (r *TemplateRule) Apply(ctx context.Context) *Result {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	result := &Result{RuleName: r.spec.Name}
	t := r.spec.Template

	fail := func(err error) *Result {
		result.Err = &ExecutionError{Rule: r.spec.Name, Err: err}
		result.Duration = time.Since(start)
		return result
	}

	src, err := r.env.Paths.Validate(t.Source, r.env.ProjectPath)
	if err != nil {
		return fail(err)
	}
	raw, err := os.ReadFile(src)
	if err != nil {
		return fail(fmt.Errorf("reading template %s: %w", t.Source, err))
	}

	content := string(raw)
	if t.Process {
		if err := r.env.Templates.ValidateSyntax(content); err != nil {
			return fail(err)
		}
		content, err = r.env.Templates.Render(content, r.env.Variables)
		if err != nil {
			return fail(err)
		}
	}

	outcome, err := r.env.Copier.Write(ctx, t.Destination, r.env.SessionPath, []byte(content), config.DefaultFileMode)
	if err != nil {
		return fail(err)
	}

	logger.Debug("Rendered template into session.", "rule", r.spec.Name, "source", t.Source, "destination", outcome.DestinationPath)
	result.Artifacts = append(result.Artifacts, Artifact{
		ID:              uuid.NewString(),
		SourcePath:      src,
		DestinationPath: outcome.DestinationPath,
		Operation:       OpRender,
		Checksum:        outcome.Checksum,
		Duration:        time.Since(start),
	})
	result.Duration = time.Since(start)
	return result
}

// Rollback removes the rendered output if it is still present.
func (r *TemplateRule) Rollback(ctx context.Context, artifacts []Artifact) error {
	for i := len(artifacts) - 1; i >= 0; i-- {
		a := artifacts[i]
		if a.Operation != OpRender {
			continue
		}
		if err := os.Remove(a.DestinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", a.DestinationPath, err)
		}
	}
	return nil
}

var (
	_ Rule     = (*TemplateRule)(nil)
	_ Reverser = (*TemplateRule)(nil)
	_ Rule     = (*CopyFilesRule)(nil)
	_ Reverser = (*CopyFilesRule)(nil)
)
