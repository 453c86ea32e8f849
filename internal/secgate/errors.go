package secgate

import "fmt"

// PathValidationError reports a candidate path that escaped its base
// directory or was otherwise rejected before any I/O happened.
type PathValidationError struct {
	Path   string
	Base   string
	Reason string
}

func (e *PathValidationError) Error() string {
	return fmt.Sprintf("path validation failed for %q: %s (base %q)", e.Path, e.Reason, e.Base)
}

// SecurityError reports a command that failed the whitelist at execution
// time. It is always fatal to the rule that triggered it.
type SecurityError struct {
	Argv   []string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("command not whitelisted: %v (%s)", e.Argv, e.Reason)
}
