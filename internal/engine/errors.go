package engine

import "strings"

// ValidationError aggregates every detectable violation of a rules config:
// schema problems, missing required source files, non-whitelisted commands,
// unknown or circular dependencies. It is raised only before any rule
// executes, never mid-execution.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "rules config validation failed: " + e.Problems[0]
	}
	return "rules config validation failed:\n- " + strings.Join(e.Problems, "\n- ")
}
