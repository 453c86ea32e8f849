package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// newValidator builds an instance-scoped validator so concurrent loaders
// never contend on shared validator state.
func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// Normalize fills in the documented defaults for a decoded spec. It is
// called once by the loader before the spec becomes immutable.
func (s *RuleSpec) Normalize() {
	for _, f := range s.Files {
		if f.Destination == "" {
			f.Destination = f.Source
		}
		if f.Strategy == "" {
			f.Strategy = StrategyCopy
		}
		if f.Permissions == 0 {
			f.Permissions = DefaultFileMode
		}
	}
	for _, c := range s.Commands {
		if c.Timeout <= 0 {
			c.Timeout = DefaultCommandTimeout
		}
		if c.Condition == "" {
			c.Condition = CondAlways
		}
	}
}

// CheckFields runs structural field validation on a spec: required fields,
// enum membership, and that the payload matches the declared type. It does
// not touch the filesystem; source existence is the rule's concern.
func (s *RuleSpec) CheckFields() error {
	if err := newValidator().Struct(s); err != nil {
		return fmt.Errorf("rule '%s': %w", s.Name, err)
	}

	switch s.Type {
	case RuleCopyFiles:
		if len(s.Files) == 0 {
			return fmt.Errorf("rule '%s': copy_files rule declares no files", s.Name)
		}
	case RuleSetupCommands:
		if len(s.Commands) == 0 {
			return fmt.Errorf("rule '%s': setup_commands rule declares no commands", s.Name)
		}
	case RuleTemplate:
		if s.Template == nil {
			return fmt.Errorf("rule '%s': template rule declares no template block", s.Name)
		}
		if err := newValidator().Struct(s.Template); err != nil {
			return fmt.Errorf("rule '%s': %w", s.Name, err)
		}
	default:
		return fmt.Errorf("rule '%s': unknown rule type '%s'", s.Name, s.Type)
	}

	for _, c := range s.Commands {
		if c.Condition == CondFileNotExists && c.ConditionPath == "" {
			return fmt.Errorf("rule '%s': condition 'file_not_exists' requires condition_path", s.Name)
		}
	}
	return nil
}
