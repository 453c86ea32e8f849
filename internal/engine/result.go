package engine

import (
	"time"

	"github.com/vk/sessionkit/internal/rule"
)

// ApplyResult is the aggregate outcome of one ApplyRules call. Rule names
// appear in deterministic order: wave order, declaration order within a
// wave, regardless of parallelism.
type ApplyResult struct {
	AppliedRules []string
	FailedRules  []string
	SkippedRules []string
	// Errors holds one message per failed or skipped rule.
	Errors []string
	// Results maps every scheduled rule to its detailed result.
	Results       map[string]*rule.Result
	TotalDuration time.Duration

	// fatalFailures counts failed rules whose spec does not tolerate
	// failure via continue_on_failure.
	fatalFailures int
}

// Success reports whether the apply succeeded: no rule failed, except
// rules explicitly marked continue_on_failure, whose failures are
// tolerated.
func (r *ApplyResult) Success() bool { return r.fatalFailures == 0 }

// RollbackReport summarizes a best-effort rollback pass.
type RollbackReport struct {
	// Attempted counts journal entries visited.
	Attempted int
	// Reversed counts artifacts whose side effect was undone.
	Reversed int
	// Missing counts artifacts already absent; they are not failures.
	Missing int
	// SkippedCommands counts command artifacts, which have no generic
	// inverse.
	SkippedCommands int
	Failures        []string
	Duration        time.Duration
}

// Ok reports whether rollback completed without hard failures.
func (r *RollbackReport) Ok() bool { return len(r.Failures) == 0 }
