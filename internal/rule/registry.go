package rule

import (
	"context"
	"fmt"

	"github.com/vk/sessionkit/internal/config"
	"github.com/vk/sessionkit/internal/ctxlog"
)

// Factory constructs a rule instance from its validated spec and the shared
// environment.
type Factory func(spec *config.RuleSpec, env *Env) Rule

// Registry maps rule type tags to constructors. It is the closed set of
// rule variants an engine instance understands.
type Registry struct {
	factories map[config.RuleType]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[config.RuleType]Factory)}
}

// Register adds a factory for a rule type. Registering the same type twice
// is a programmer error and panics.
func (r *Registry) Register(t config.RuleType, f Factory) {
	if _, exists := r.factories[t]; exists {
		panic(fmt.Sprintf("rule factory for type '%s' already registered", t))
	}
	r.factories[t] = f
}

// Known reports whether the registry has a factory for the type tag.
func (r *Registry) Known(t config.RuleType) bool {
	_, ok := r.factories[t]
	return ok
}

// New constructs the rule for a spec.
func (r *Registry) New(ctx context.Context, spec *config.RuleSpec, env *Env) (Rule, error) {
	f, ok := r.factories[spec.Type]
	if !ok {
		return nil, fmt.Errorf("rule '%s': unknown rule type '%s'", spec.Name, spec.Type)
	}
	ctxlog.FromContext(ctx).Debug("Constructing rule.", "rule", spec.Name, "type", spec.Type)
	return f(spec, env), nil
}

// Builtins returns a registry with the three shipped rule variants.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register(config.RuleCopyFiles, func(spec *config.RuleSpec, env *Env) Rule {
		return &CopyFilesRule{spec: spec, env: env}
	})
	r.Register(config.RuleSetupCommands, func(spec *config.RuleSpec, env *Env) Rule {
		return &SetupCommandsRule{spec: spec, env: env}
	})
	r.Register(config.RuleTemplate, func(spec *config.RuleSpec, env *Env) Rule {
		return &TemplateRule{spec: spec, env: env}
	})
	return r
}
