// Package pipeline implements the dependency-ordered stage orchestrator at
// the heart of the underwriting service.
//
// A Builder collects stage definitions (id, dependencies, written fields,
// execution function) and compiles them into an immutable Graph. Compilation
// validates the topology: duplicate ids, unresolved dependencies, cycles and
// overlapping overwrite-field ownership between stages that may execute
// concurrently are all rejected up front, so a compiled graph can never fail
// for structural reasons at run time.
//
// An Executor walks a compiled graph using per-run readiness counters: when a
// stage completes, each dependent's counter is decremented and any dependent
// reaching zero is dispatched immediately. Stage results are merged into a
// versioned, immutable State by the single scheduler loop, so concurrently
// running stages only ever read the snapshot they were dispatched with.
//
// Stages never fail from the executor's point of view: every stage function
// returns an Outcome that is either succeeded-with-data or
// degraded-with-fallback, and the graph always reaches its terminal stage.
package pipeline
