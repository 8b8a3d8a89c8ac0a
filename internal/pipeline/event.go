package pipeline

// EventKind identifies a lifecycle event in the external stream.
type EventKind string

const (
	// EventStart is emitted exactly once per stage, strictly before its end
	// event and never before the end events of all of its dependencies.
	EventStart EventKind = "start"
	// EventEnd is emitted exactly once per stage after its update has been
	// merged. Its payload carries the outcome status and, when degraded, the
	// reason.
	EventEnd EventKind = "end"
	// EventResult carries the externally relevant projection of the final
	// state. It is always the last event before the done sentinel.
	EventResult EventKind = "result"
	// EventDone closes the stream.
	EventDone EventKind = "done"
)

// Event is a single externally consumable lifecycle event.
type Event struct {
	Kind    EventKind `json:"kind"`
	Stage   string    `json:"stage,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// EndPayload is the payload attached to end events.
type EndPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}
