package engine

import "fmt"

// Status is the per-rule execution state within one apply call.
type Status int

const (
	StatusPending Status = iota
	StatusValidating
	StatusApplying
	StatusApplied
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusValidating:
		return "VALIDATING"
	case StatusApplying:
		return "APPLYING"
	case StatusApplied:
		return "APPLIED"
	case StatusFailed:
		return "FAILED"
	case StatusSkipped:
		return "SKIPPED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether the status can no longer transition within the
// current apply call.
func (s Status) Terminal() bool {
	switch s {
	case StatusApplied, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// allowedTransition encodes the per-rule state machine:
// PENDING -> VALIDATING -> APPLYING -> {APPLIED | FAILED}, with SKIPPED
// reachable only from PENDING.
func allowedTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusValidating || to == StatusSkipped
	case StatusValidating:
		return to == StatusApplying || to == StatusFailed
	case StatusApplying:
		return to == StatusApplied || to == StatusFailed
	default:
		return false
	}
}

// ruleState tracks one rule's progress through an apply call. The executor
// owns it exclusively; the shared results map is guarded separately.
type ruleState struct {
	status Status
}

// transition moves the rule to a new status, panicking on a disallowed
// move: a bad transition is a scheduler bug, not a runtime condition.
func (st *ruleState) transition(to Status) {
	if !allowedTransition(st.status, to) {
		panic(fmt.Sprintf("engine: disallowed rule state transition %s -> %s", st.status, to))
	}
	st.status = to
}
