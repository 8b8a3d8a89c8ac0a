package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
)

const defaultWorkers = 8

// Executor drives stage readiness for a compiled graph. It is safe for
// concurrent use: all per-run bookkeeping lives on the stack of Run.
type Executor struct {
	graph   *Graph
	workers int
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers bounds the number of concurrently executing stages.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewExecutor creates an Executor for the given compiled graph.
func NewExecutor(graph *Graph, opts ...Option) *Executor {
	e := &Executor{graph: graph, workers: defaultWorkers}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers > graph.Len() && graph.Len() > 0 {
		e.workers = graph.Len()
	}
	return e
}

type dispatchItem struct {
	stage *Stage
	snap  State
}

type completion struct {
	stage   *Stage
	outcome Outcome
}

// Run executes the whole graph and returns the final frozen state. If emit is
// non-nil it receives a start event at each dispatch and an end event at each
// completion, in scheduler order. Run returns an error only for merge
// programming errors (an update naming an undeclared field); stage failures
// never surface here, they degrade inside the stage.
func (e *Executor) Run(ctx context.Context, initial Update, emit func(Event)) (State, error) {
	logger := ctxlog.FromContext(ctx)
	if emit == nil {
		emit = func(Event) {}
	}

	state, err := NewState(e.graph.fields).Merge(initial)
	if err != nil {
		return State{}, fmt.Errorf("merging initial state: %w", err)
	}

	remaining := make(map[string]int, e.graph.Len())
	for id, st := range e.graph.stages {
		remaining[id] = st.inDegree
	}

	readyCh := make(chan dispatchItem, e.graph.Len())
	doneCh := make(chan completion, e.graph.Len())
	defer close(readyCh)

	for i := 0; i < e.workers; i++ {
		go worker(ctx, readyCh, doneCh)
	}

	dispatch := func(st *Stage) {
		logger.Debug("Dispatching stage.", "stage", st.ID, "state_version", state.Version())
		emit(Event{Kind: EventStart, Stage: st.ID})
		readyCh <- dispatchItem{stage: st, snap: state}
	}

	for _, st := range e.graph.entryStages() {
		dispatch(st)
	}

	pending := e.graph.Len()
	for pending > 0 {
		c := <-doneCh
		state, err = state.Merge(c.outcome.Update)
		if err != nil {
			return State{}, fmt.Errorf("merging update from stage %q: %w", c.stage.ID, err)
		}
		pending--

		if c.outcome.Status == StatusDegraded {
			logger.Warn("Stage degraded.", "stage", c.stage.ID, "reason", c.outcome.Reason)
		} else {
			logger.Debug("Stage completed.", "stage", c.stage.ID)
		}
		emit(Event{
			Kind:  EventEnd,
			Stage: c.stage.ID,
			Payload: EndPayload{
				Status: c.outcome.Status.String(),
				Reason: c.outcome.Reason,
			},
		})

		for _, dep := range sortedDependents(c.stage) {
			remaining[dep.ID]--
			if remaining[dep.ID] == 0 {
				dispatch(dep)
			}
		}
	}

	return state, nil
}

// worker executes stages as they become ready, each against the snapshot
// captured at its dispatch.
func worker(ctx context.Context, readyCh <-chan dispatchItem, doneCh chan<- completion) {
	for item := range readyCh {
		doneCh <- completion{stage: item.stage, outcome: invoke(ctx, item.stage, item.snap)}
	}
}

// invoke calls the stage function with a recover backstop. Stage wrappers
// already guarantee they do not panic; this guard keeps the scheduler's
// "every stage completes" invariant even against a broken wrapper.
func invoke(ctx context.Context, st *Stage, snap State) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Stage panicked; treating as degraded.", "stage", st.ID, "panic", r)
			out = Degraded(Update{}, fmt.Sprintf("stage %s panicked: %v", st.ID, r))
		}
	}()
	return st.fn(ctx, snap)
}

// sortedDependents returns a stage's dependents in id order so scheduling is
// deterministic for a given completion order.
func sortedDependents(st *Stage) []*Stage {
	deps := make([]*Stage, 0, len(st.dependents))
	for _, d := range st.dependents {
		deps = append(deps, d)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].ID < deps[j].ID })
	return deps
}
