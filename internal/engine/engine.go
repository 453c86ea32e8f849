package engine

import (
	"context"
	"sync"

	"github.com/vk/sessionkit/internal/config"
	"github.com/vk/sessionkit/internal/ctxlog"
	"github.com/vk/sessionkit/internal/dag"
	"github.com/vk/sessionkit/internal/rule"
)

// Engine validates and applies rule configurations against a project and
// session directory pair. One Engine serves one session; the only state it
// retains across calls is the rollback journal of the last apply.
type Engine struct {
	env      *rule.Env
	registry *rule.Registry

	mu      sync.Mutex
	journal []journalEntry
	// applied maps rule names from the last apply to their instances, so
	// rollback can reach each rule's Reverser implementation.
	applied map[string]rule.Rule
}

// journalEntry records one artifact in application order.
type journalEntry struct {
	ruleName string
	artifact rule.Artifact
}

// New builds an engine with the built-in rule variants.
func New(env *rule.Env) *Engine {
	return NewWithRegistry(env, rule.Builtins())
}

// NewWithRegistry builds an engine with a caller-supplied rule registry.
func NewWithRegistry(env *rule.Env, registry *rule.Registry) *Engine {
	return &Engine{env: env, registry: registry}
}

// ValidateRulesConfig checks the whole config without mutating anything:
// field-level schema, per-rule validation (source existence, whitelist),
// dependency resolution, and cycle detection. Every detectable violation is
// aggregated into one ValidationError rather than failing on the first.
// The call is idempotent and free of side effects.
func (e *Engine) ValidateRulesConfig(ctx context.Context, model *config.Model) error {
	logger := ctxlog.FromContext(ctx)
	var problems []string

	for _, spec := range model.Rules {
		spec.Normalize()

		if err := spec.CheckFields(); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if !e.registry.Known(spec.Type) {
			problems = append(problems, "rule '"+spec.Name+"': unknown rule type '"+string(spec.Type)+"'")
			continue
		}

		r, err := e.registry.New(ctx, spec, e.env)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if err := r.Validate(ctx); err != nil {
			problems = append(problems, err.Error())
		}
	}

	// Dependency resolution and cycle detection run on the full model so
	// unknown names and cycles are reported alongside rule-level problems.
	if _, err := dag.Build(ctx, model); err != nil {
		problems = append(problems, err.Error())
	}

	// Two rules sharing a copy destination is suspicious but legal: overlays
	// are last-write-wins, so it is logged, not raised.
	destinations := make(map[string]string)
	for _, spec := range model.Rules {
		for _, f := range spec.Files {
			if prev, seen := destinations[f.Destination]; seen && prev != spec.Name {
				logger.Warn("Two rules write the same destination.", "destination", f.Destination, "first", prev, "second", spec.Name)
				continue
			}
			destinations[f.Destination] = spec.Name
		}
	}

	if len(problems) > 0 {
		logger.Debug("Rules config validation failed.", "problem_count", len(problems))
		return &ValidationError{Problems: problems}
	}
	logger.Debug("Rules config validation passed.", "rules", len(model.Rules))
	return nil
}
