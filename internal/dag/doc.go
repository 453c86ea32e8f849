// Package dag builds the rule dependency graph, detects cycles, and
// computes the parallel execution waves consumed by the engine.
//
// The graph is an index arena: nodes live in a slice in declaration order
// and edges are slices of indices. Traversals are iterative over the arena,
// so graph depth never threatens the goroutine stack, and the declaration
// order doubles as the deterministic tie-break inside a wave.
package dag
