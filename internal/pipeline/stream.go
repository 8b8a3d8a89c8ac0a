package pipeline

import (
	"context"
)

// Finisher freezes a run: it receives the final state and returns the payload
// for the result event. The underwriting service persists the assessment
// here, so the result payload can carry the stored record's id. An error
// (persistence is the one run-time-fatal class) aborts the stream without a
// result event.
type Finisher func(ctx context.Context, final State) (any, error)

// Stream runs the graph and converts the scheduler's dispatch and completion
// signals into an ordered external event sequence:
//
//   - exactly one start and one end per stage, start strictly before end;
//   - no start before the end events of all of the stage's dependencies;
//   - one result event carrying the finisher's payload, always last before
//     the closing done sentinel.
//
// The event channel is unbuffered between scheduler and consumer beyond a
// small window, so the producing goroutine paces itself against the reader.
// The returned error channel yields at most one error after the event channel
// closes.
func Stream(ctx context.Context, exec *Executor, initial Update, finish Finisher) (<-chan Event, <-chan error) {
	events := make(chan Event, 4)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		emit := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		final, err := exec.Run(ctx, initial, emit)
		if err != nil {
			errc <- err
			return
		}

		payload := any(nil)
		if finish != nil {
			payload, err = finish(ctx, final)
			if err != nil {
				errc <- err
				return
			}
		}
		emit(Event{Kind: EventResult, Payload: payload})
		emit(Event{Kind: EventDone})
	}()

	return events, errc
}
