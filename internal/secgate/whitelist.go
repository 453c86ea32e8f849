package secgate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandWhitelist is an explicit allow-list of executables and, where
// configured, their permitted subcommands. It is a pure predicate: checking
// an argv never executes anything.
type CommandWhitelist struct {
	entries map[string]whitelistEntry
}

// whitelistEntry permits an executable. An empty subcommand list permits
// any arguments; otherwise the first argument must match one of the listed
// subcommands.
type whitelistEntry struct {
	subcommands []string
}

// shellMetachars are rejected in any argv element. Commands are spawned
// directly, so these have no legitimate use and only appear in injection
// attempts.
const shellMetachars = ";|&$`<>\n"

// inlineCodeFlags are interpreter flags that accept code as an argument.
var inlineCodeFlags = map[string]struct{}{
	"-c": {}, "-e": {}, "-p": {}, "-E": {}, "--eval": {},
}

// interpreters whose inline-code flags are always denied, whitelisted or not.
var interpreters = map[string]struct{}{
	"sh": {}, "bash": {}, "zsh": {}, "dash": {}, "ksh": {},
	"ruby": {}, "python": {}, "python3": {}, "perl": {}, "node": {},
}

// NewCommandWhitelist builds a whitelist from an executable -> permitted
// subcommand mapping. A nil or empty subcommand slice permits any argument.
func NewCommandWhitelist(allow map[string][]string) *CommandWhitelist {
	w := &CommandWhitelist{entries: make(map[string]whitelistEntry, len(allow))}
	for name, subs := range allow {
		w.entries[name] = whitelistEntry{subcommands: append([]string(nil), subs...)}
	}
	return w
}

// DefaultCommandWhitelist covers the setup tooling a development session
// conventionally runs. Anything else must be added explicitly, either via
// NewCommandWhitelist or a whitelist file.
func DefaultCommandWhitelist() *CommandWhitelist {
	return NewCommandWhitelist(map[string][]string{
		"bundle":    {"install", "exec", "check"},
		"npm":       {"install", "ci", "run"},
		"yarn":      {"install", "run"},
		"pnpm":      {"install", "run"},
		"rails":     {"db:create", "db:migrate", "db:prepare", "db:seed", "assets:precompile"},
		"rake":      {"db:create", "db:migrate", "db:seed"},
		"bin/rails": {"db:create", "db:migrate", "db:prepare", "db:seed"},
		"bin/setup": nil,
		"git":       {"config", "lfs", "submodule"},
		"make":      nil,
		"mkdir":     nil,
		"touch":     nil,
		"cp":        nil,
		"echo":      nil,
	})
}

// whitelistFile is the YAML shape of a whitelist extension file.
type whitelistFile struct {
	Commands []struct {
		Name        string   `yaml:"name"`
		Subcommands []string `yaml:"subcommands"`
	} `yaml:"commands"`
}

// MergeFile loads additional whitelist entries from a YAML file. Entries
// for an executable that is already listed replace its subcommand set.
func (w *CommandWhitelist) MergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading whitelist file: %w", err)
	}
	var file whitelistFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parsing whitelist file %s: %w", path, err)
	}
	for _, c := range file.Commands {
		if c.Name == "" {
			return fmt.Errorf("whitelist file %s: entry with empty name", path)
		}
		w.entries[c.Name] = whitelistEntry{subcommands: append([]string(nil), c.Subcommands...)}
	}
	return nil
}

// Allowed reports whether the argv passes the whitelist.
func (w *CommandWhitelist) Allowed(argv []string) bool {
	return w.Check(argv) == nil
}

// Check returns a *SecurityError describing why the argv is denied, or nil
// if it is permitted.
func (w *CommandWhitelist) Check(argv []string) error {
	if len(argv) == 0 {
		return &SecurityError{Argv: argv, Reason: "empty command"}
	}

	for _, arg := range argv {
		if strings.ContainsAny(arg, shellMetachars) {
			return &SecurityError{Argv: argv, Reason: fmt.Sprintf("argument %q contains shell metacharacters", arg)}
		}
	}

	if _, ok := interpreters[filepath.Base(argv[0])]; ok {
		for _, arg := range argv[1:] {
			if _, inline := inlineCodeFlags[arg]; inline {
				return &SecurityError{Argv: argv, Reason: fmt.Sprintf("interpreter with inline code flag %q", arg)}
			}
		}
	}

	entry, ok := w.entries[argv[0]]
	if !ok {
		return &SecurityError{Argv: argv, Reason: fmt.Sprintf("executable %q is not on the allow-list", argv[0])}
	}

	if len(entry.subcommands) > 0 {
		if len(argv) < 2 {
			return &SecurityError{Argv: argv, Reason: fmt.Sprintf("executable %q requires one of its permitted subcommands", argv[0])}
		}
		for _, sub := range entry.subcommands {
			if argv[1] == sub {
				return nil
			}
		}
		return &SecurityError{Argv: argv, Reason: fmt.Sprintf("subcommand %q is not permitted for %q", argv[1], argv[0])}
	}

	return nil
}
