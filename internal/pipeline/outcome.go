package pipeline

// Status reports how a stage arrived at its update.
type Status int

const (
	// StatusOK means the stage produced real data.
	StatusOK Status = iota
	// StatusDegraded means the stage substituted neutral/holding values after
	// a missing input or an upstream failure.
	StatusDegraded
)

// String returns the wire representation of the status.
func (s Status) String() string {
	if s == StatusDegraded {
		return "degraded"
	}
	return "ok"
}

// Outcome is the uniform result of a stage invocation. A stage function never
// returns an error and never panics outward: it either succeeded with data or
// degraded with a documented fallback. Either way the update is a
// structurally valid partial state contribution, which is what lets the
// scheduler treat every stage as "completed" and always reach the terminal
// stage.
type Outcome struct {
	Update Update
	Status Status
	// Reason is a human-readable explanation, set when degraded.
	Reason string
}

// OK wraps a successful update.
func OK(update Update) Outcome {
	return Outcome{Update: update, Status: StatusOK}
}

// Degraded wraps a fallback update with the reason the stage degraded.
func Degraded(update Update, reason string) Outcome {
	return Outcome{Update: update, Status: StatusDegraded, Reason: reason}
}
