package pipeline

import "errors"

// Graph definition errors. These are only ever returned while registering or
// compiling a graph; a compiled graph cannot fail structurally at run time.
var (
	ErrDuplicateStage         = errors.New("duplicate stage id")
	ErrUnresolvedDependency   = errors.New("unresolved dependency")
	ErrCycleDetected          = errors.New("cycle detected")
	ErrUnknownField           = errors.New("field not declared")
	ErrOverwriteFieldConflict = errors.New("overwrite field written by concurrent stages")
	ErrNoEntryStage           = errors.New("graph has no entry stage")
)
