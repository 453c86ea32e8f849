// Package engine is the rules engine facade: it validates rule
// configurations, executes them across dependency-ordered waves
// (sequentially or on a bounded worker pool), aggregates the outcome, and
// can roll back recorded filesystem side effects in reverse order.
package engine
