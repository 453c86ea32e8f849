// Package rule defines the polymorphic rule contract, the registry mapping
// type tags to constructors, and the three built-in variants: copy_files,
// setup_commands, and template.
package rule

import (
	"context"
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/sessionkit/internal/secgate"
	"github.com/vk/sessionkit/internal/tmpl"
)

// Operation classifies an artifact's filesystem side effect.
type Operation string

const (
	OpCopy    Operation = "copy"
	OpSymlink Operation = "symlink"
	OpRender  Operation = "render"
	// OpCommand records a command run. It has no generic inverse and is a
	// documented no-op during rollback.
	OpCommand Operation = "command"
)

// Artifact is one recorded side effect of a rule application. The executor
// journals artifacts so rollback can replay them in reverse.
type Artifact struct {
	ID              string
	SourcePath      string
	DestinationPath string
	Operation       Operation
	Checksum        string
	Encrypted       bool
	Duration        time.Duration
}

// Result is the transient outcome of one rule application.
type Result struct {
	RuleName  string
	Artifacts []Artifact
	Err       error
	Duration  time.Duration
}

// Success reports whether the rule applied without failure.
func (r *Result) Success() bool { return r.Err == nil }

// ExecutionError is a per-rule, recoverable failure: it fails the rule it
// belongs to but never aborts sibling rules in the same wave.
type ExecutionError struct {
	Rule string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("rule '%s' failed: %v", e.Rule, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Rule is the contract every variant implements. Validate is pure and
// repeatable; Apply performs the work and reports failure via the result,
// never by panicking.
type Rule interface {
	Name() string
	// Validate surfaces every detectable problem for this rule with
	// specific, greppable messages. It performs no filesystem mutation.
	Validate(ctx context.Context) error
	Apply(ctx context.Context) *Result
}

// Reverser is implemented by rules whose artifacts can be undone.
type Reverser interface {
	// Rollback undoes previously recorded artifacts. It is best-effort:
	// an already-absent artifact is not an error.
	Rollback(ctx context.Context, artifacts []Artifact) error
}

// Env carries the collaborators a rule needs: the two session roots, the
// security gate components, the template engine, and the per-apply
// template variables. One Env is shared read-only by every rule of an
// apply call.
type Env struct {
	// ProjectPath is the read-only source tree.
	ProjectPath string
	// SessionPath is the destination working copy.
	SessionPath string

	Paths     *secgate.PathValidator
	Copier    *secgate.FileCopier
	Commands  *secgate.CommandExecutor
	Whitelist *secgate.CommandWhitelist
	Templates *tmpl.Engine

	Variables map[string]cty.Value
}
