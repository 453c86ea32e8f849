package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vk/sessionkit/internal/config"
	"github.com/vk/sessionkit/internal/ctxlog"
	"github.com/vk/sessionkit/internal/dag"
	"github.com/vk/sessionkit/internal/rule"
)

// Options control one ApplyRules call.
type Options struct {
	// Parallel dispatches each wave onto a bounded worker pool instead of
	// running its rules sequentially.
	Parallel bool
	// MaxParallelism bounds the pool. Defaults to DefaultMaxParallelism.
	MaxParallelism int
	// ContinueOnFailure keeps executing after a rule fails: dependents
	// still run and later waves are still scheduled.
	ContinueOnFailure bool
}

// DefaultMaxParallelism bounds parallel waves when no limit is given.
const DefaultMaxParallelism = 4

// ApplyRules validates the config, builds the dependency graph, and
// executes every rule wave by wave. Only a configuration-level
// ValidationError is returned as an error, and only before anything
// executes; every execution-time failure is captured in the ApplyResult so
// the caller always receives a complete picture.
func (e *Engine) ApplyRules(ctx context.Context, model *config.Model, opts Options) (*ApplyResult, error) {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	if err := e.ValidateRulesConfig(ctx, model); err != nil {
		return nil, err
	}

	graph, err := dag.Build(ctx, model)
	if err != nil {
		// Unreachable: validation already built the same graph.
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}
	waves := graph.ComputeWaves()
	logger.Info("Applying rules.", "rules", graph.Len(), "waves", len(waves), "parallel", opts.Parallel)

	rules := make(map[string]rule.Rule, graph.Len())
	states := make(map[string]*ruleState, graph.Len())
	for _, spec := range model.Rules {
		r, err := e.registry.New(ctx, spec, e.env)
		if err != nil {
			return nil, &ValidationError{Problems: []string{err.Error()}}
		}
		rules[spec.Name] = r
		states[spec.Name] = &ruleState{}
	}

	e.mu.Lock()
	e.journal = nil
	e.applied = rules
	e.mu.Unlock()

	results := make(map[string]*rule.Result, graph.Len())
	aborted := false

	for waveIdx, wave := range waves {
		if aborted {
			for _, name := range wave {
				states[name].transition(StatusSkipped)
				results[name] = &rule.Result{
					RuleName: name,
					Err:      fmt.Errorf("skipped: execution aborted after earlier failure"),
				}
			}
			continue
		}

		runnable := make([]string, 0, len(wave))
		for _, name := range wave {
			if gate := e.dependencyGate(graph, results, name, opts); gate != nil {
				states[name].transition(StatusSkipped)
				results[name] = &rule.Result{RuleName: name, Err: gate}
				logger.Warn("Skipping rule, dependency failed.", "rule", name, "reason", gate)
				continue
			}
			runnable = append(runnable, name)
		}

		logger.Debug("Dispatching wave.", "wave", waveIdx, "runnable", len(runnable), "skipped", len(wave)-len(runnable))
		if opts.Parallel {
			e.runWaveParallel(ctx, rules, states, results, runnable, opts)
		} else {
			for _, name := range runnable {
				results[name] = e.applyOne(ctx, rules[name], states[name])
			}
		}

		// Resolve the whole wave before scheduling the next: a fatal
		// failure finishes already-dispatched rules but stops here.
		for _, name := range wave {
			res := results[name]
			if res.Err != nil && states[name].status == StatusFailed {
				if !opts.ContinueOnFailure && !graph.Spec(name).ContinueOnFailure {
					aborted = true
				}
			}
		}
	}

	out := e.aggregate(graph, waves, states, results)
	out.TotalDuration = time.Since(start)
	logger.Info("Apply finished.", "success", out.Success(), "applied", len(out.AppliedRules), "failed", len(out.FailedRules), "skipped", len(out.SkippedRules), "duration", out.TotalDuration)
	return out, nil
}

// dependencyGate decides whether a rule may run given its dependencies'
// results. It returns the skip reason, or nil to proceed.
func (e *Engine) dependencyGate(graph *dag.Graph, results map[string]*rule.Result, name string, opts Options) error {
	if opts.ContinueOnFailure {
		// Failure isolation is per-rule: dependents still execute.
		return nil
	}
	for _, dep := range graph.Dependencies(name) {
		res, done := results[dep]
		if !done {
			// Dependency never scheduled; waves guarantee this cannot
			// happen for an acyclic graph.
			return fmt.Errorf("dependency failed: %s was not executed", dep)
		}
		if res.Err != nil && !graph.Spec(dep).ContinueOnFailure {
			return fmt.Errorf("dependency failed: %s", dep)
		}
	}
	return nil
}

// runWaveParallel executes one wave's runnable rules on a semaphore-bounded
// pool. The shared results map is written under the engine mutex; ordering
// of the aggregate output does not depend on completion order.
func (e *Engine) runWaveParallel(ctx context.Context, rules map[string]rule.Rule, states map[string]*ruleState, results map[string]*rule.Result, runnable []string, opts Options) {
	limit := opts.MaxParallelism
	if limit <= 0 {
		limit = DefaultMaxParallelism
	}
	sem := semaphore.NewWeighted(int64(limit))

	var wg sync.WaitGroup
	var resMu sync.Mutex
	for _, name := range runnable {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				resMu.Lock()
				states[name].transition(StatusSkipped)
				results[name] = &rule.Result{RuleName: name, Err: err}
				resMu.Unlock()
				return
			}
			defer sem.Release(1)

			res := e.applyOne(ctx, rules[name], states[name])
			resMu.Lock()
			results[name] = res
			resMu.Unlock()
		}(name)
	}
	wg.Wait()
}

// applyOne drives a single rule through its state machine and journals the
// artifacts it produced, including partial artifacts of a failed rule so
// rollback can undo them.
func (e *Engine) applyOne(ctx context.Context, r rule.Rule, st *ruleState) *rule.Result {
	logger := ctxlog.FromContext(ctx)

	// Defense in depth: re-validate right before applying. A problem found
	// here (e.g. a source file vanished since config validation) is a
	// per-rule execution failure, not a config error.
	st.transition(StatusValidating)
	if err := r.Validate(ctx); err != nil {
		st.transition(StatusFailed)
		return &rule.Result{RuleName: r.Name(), Err: &rule.ExecutionError{Rule: r.Name(), Err: err}}
	}

	st.transition(StatusApplying)
	logger.Debug("Applying rule.", "rule", r.Name())
	res := r.Apply(ctx)

	e.mu.Lock()
	for _, a := range res.Artifacts {
		e.journal = append(e.journal, journalEntry{ruleName: r.Name(), artifact: a})
	}
	e.mu.Unlock()

	if res.Success() {
		st.transition(StatusApplied)
	} else {
		st.transition(StatusFailed)
		logger.Error("Rule failed.", "rule", r.Name(), "error", res.Err)
	}
	return res
}

// aggregate folds per-rule results into the ApplyResult, walking waves in
// order and each wave in declaration order so sequential and parallel runs
// report identically.
func (e *Engine) aggregate(graph *dag.Graph, waves [][]string, states map[string]*ruleState, results map[string]*rule.Result) *ApplyResult {
	out := &ApplyResult{Results: results}
	for _, wave := range waves {
		for _, name := range wave {
			switch states[name].status {
			case StatusApplied:
				out.AppliedRules = append(out.AppliedRules, name)
			case StatusFailed:
				out.FailedRules = append(out.FailedRules, name)
				out.Errors = append(out.Errors, results[name].Err.Error())
				if spec := graph.Spec(name); spec == nil || !spec.ContinueOnFailure {
					out.fatalFailures++
				}
			case StatusSkipped:
				out.SkippedRules = append(out.SkippedRules, name)
				if res := results[name]; res != nil && res.Err != nil {
					out.Errors = append(out.Errors, fmt.Sprintf("rule '%s': %v", name, res.Err))
				}
			default:
				// Waves cover every rule; a non-terminal state here is a
				// scheduler bug.
				panic(fmt.Sprintf("engine: rule '%s' finished apply in state %s", name, states[name].status))
			}
		}
	}
	return out
}
