// Package stage defines the seven underwriting stages, their state fields and
// the deterministic scoring rules, and assembles them into a compiled
// pipeline graph.
//
// Every stage honours the same fallback contract: required inputs are checked
// first and, when absent, the stage short-circuits to a documented neutral
// value without calling out; any external failure substitutes the neutral
// value, records a human-readable reason and appends to the accumulating
// warnings field. A stage function never returns an error and never panics.
package stage
