package pipeline

import (
	"fmt"
)

// MergePolicy determines how a field behaves when a stage update is merged
// into the pipeline state.
type MergePolicy int

const (
	// Overwrite replaces the prior value unconditionally.
	Overwrite MergePolicy = iota
	// Accumulate appends the update's entries onto the existing list,
	// preserving arrival order. Accumulating fields hold []string values and
	// are never truncated.
	Accumulate
)

// Fields declares the full set of state fields and their merge policies.
// Field declarations live alongside the graph, not in a stage.
type Fields map[string]MergePolicy

// Update is a partial state contribution produced by a single stage.
type Update map[string]any

// State is an immutable snapshot of the accumulated pipeline state. Merging
// an update never mutates the receiver; it yields a new snapshot with a
// bumped version, so stages dispatched concurrently can read the snapshot
// they were handed without locks.
type State struct {
	fields  Fields
	values  map[string]any
	version int
}

// NewState returns an empty version-zero state for the given field table.
func NewState(fields Fields) State {
	return State{fields: fields, values: map[string]any{}}
}

// Version returns the number of merges applied to produce this snapshot.
func (s State) Version() int { return s.version }

// Merge applies a stage update and returns the resulting snapshot. An update
// naming a field absent from the declaration table is a programming error and
// is rejected; compiled graphs prevent this by validating each stage's write
// set up front.
func (s State) Merge(update Update) (State, error) {
	next := State{
		fields:  s.fields,
		values:  make(map[string]any, len(s.values)+len(update)),
		version: s.version + 1,
	}
	for k, v := range s.values {
		next.values[k] = v
	}
	for k, v := range update {
		policy, ok := s.fields[k]
		if !ok {
			return State{}, fmt.Errorf("%w: %q", ErrUnknownField, k)
		}
		if policy == Overwrite {
			next.values[k] = v
			continue
		}
		add, ok := v.([]string)
		if !ok {
			return State{}, fmt.Errorf("accumulating field %q requires []string, got %T", k, v)
		}
		prev, _ := next.values[k].([]string)
		merged := make([]string, 0, len(prev)+len(add))
		merged = append(merged, prev...)
		merged = append(merged, add...)
		next.values[k] = merged
	}
	return next, nil
}

// Get returns the raw value for a field and whether it has been written.
func (s State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// String returns the field as a string, or "" if unset or mistyped.
func (s State) String(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// Float returns the field as a float64 and whether it was present.
func (s State) Float(key string) (float64, bool) {
	v, ok := s.values[key].(float64)
	return v, ok
}

// FloatOr returns the field as a float64, or fallback if unset.
func (s State) FloatOr(key string, fallback float64) float64 {
	if v, ok := s.values[key].(float64); ok {
		return v
	}
	return fallback
}

// Strings returns the field as a string slice, or nil if unset.
func (s State) Strings(key string) []string {
	v, _ := s.values[key].([]string)
	return v
}
