package config

import (
	"os"
	"time"
)

// RuleType identifies one of the built-in rule variants.
type RuleType string

const (
	// RuleCopyFiles copies or symlinks files from the project into the session.
	RuleCopyFiles RuleType = "copy_files"
	// RuleSetupCommands runs whitelisted setup commands inside the session.
	RuleSetupCommands RuleType = "setup_commands"
	// RuleTemplate renders a template from the project into the session.
	RuleTemplate RuleType = "template"
)

// KnownRuleTypes lists every rule type the engine ships with.
var KnownRuleTypes = []RuleType{RuleCopyFiles, RuleSetupCommands, RuleTemplate}

// CopyStrategy selects how a copy_files entry materializes its destination.
type CopyStrategy string

const (
	StrategyCopy    CopyStrategy = "copy"
	StrategySymlink CopyStrategy = "symlink"
)

// Condition gates a setup command on the state of the session directory.
type Condition string

const (
	// CondAlways runs the command unconditionally.
	CondAlways Condition = "always"
	// CondFileNotExists skips the command when ConditionPath already exists.
	CondFileNotExists Condition = "file_not_exists"
	// CondDBNotExists skips the command when a SQLite database file already
	// exists under db/ or storage/ in the session.
	CondDBNotExists Condition = "db_not_exists"
)

// Model is the unified, format-agnostic representation of a rules
// configuration. Rules preserves the original declaration order, which is
// the deterministic tie-break order used inside execution waves.
type Model struct {
	Rules []*RuleSpec

	byName map[string]*RuleSpec
}

// Rule returns the spec with the given name, or nil if it is not declared.
func (m *Model) Rule(name string) *RuleSpec {
	if m.byName == nil {
		m.byName = make(map[string]*RuleSpec, len(m.Rules))
		for _, r := range m.Rules {
			m.byName[r.Name] = r
		}
	}
	return m.byName[name]
}

// RuleSpec is one named, typed unit of provisioning work. Exactly one of the
// type-specific payloads (Files, Commands, Template) is populated, matching
// Type. Specs are immutable once validated.
type RuleSpec struct {
	Name              string   `validate:"required"`
	Type              RuleType `validate:"required,oneof=copy_files setup_commands template"`
	Dependencies      []string
	ContinueOnFailure bool

	Files    []*CopyFileSpec `validate:"omitempty,dive"`
	Commands []*CommandSpec  `validate:"omitempty,dive"`
	Template *TemplateSpec
}

// CopyFileSpec describes a single file entry of a copy_files rule.
type CopyFileSpec struct {
	// Source is relative to the project root.
	Source string `validate:"required"`
	// Destination is relative to the session root. Defaults to Source.
	Destination string
	Strategy    CopyStrategy `validate:"omitempty,oneof=copy symlink"`
	// Permissions are applied to the destination after the write completes.
	Permissions os.FileMode
	// Encrypt marks the content as sensitive; it is encrypted before being
	// written. Encryption and permission restriction are independent,
	// explicit controls.
	Encrypt bool
	// Required makes validation fail when Source does not exist. Defaults
	// to true in the loader.
	Required bool
}

// CommandSpec describes a single argv of a setup_commands rule. Command is
// always an argv list, never a shell string.
type CommandSpec struct {
	Command     []string `validate:"required,min=1"`
	Description string
	Timeout     time.Duration
	Environment map[string]string
	Condition   Condition `validate:"omitempty,oneof=always file_not_exists db_not_exists"`
	// ConditionPath is the session-relative path checked by file_not_exists.
	ConditionPath string
	// IgnoreFailure downgrades a non-zero exit to a logged warning instead
	// of a rule failure.
	IgnoreFailure bool
}

// TemplateSpec describes the single template of a template rule.
type TemplateSpec struct {
	// Source is the template path, relative to the project root.
	Source string `validate:"required"`
	// Destination is the output path, relative to the session root.
	Destination string `validate:"required"`
	// Process renders the template; when false the content is written
	// verbatim through the same validated path.
	Process bool
}

// DefaultCommandTimeout bounds a setup command that declares no timeout.
const DefaultCommandTimeout = 5 * time.Minute

// DefaultFileMode is used for copied files that declare no permissions.
const DefaultFileMode os.FileMode = 0o644
