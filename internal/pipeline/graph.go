package pipeline

import (
	"context"
	"fmt"
	"sort"
)

// StageFunc executes one stage against the snapshot that existed when the
// stage was dispatched. Implementations must honour the Outcome contract:
// no panics, no errors, always a well-formed partial update.
type StageFunc func(ctx context.Context, snap State) Outcome

// Stage is a compiled stage definition. Immutable once compiled.
type Stage struct {
	ID         string
	deps       map[string]*Stage
	dependents map[string]*Stage
	writes     []string
	fn         StageFunc
	inDegree   int
}

// InDegree returns the stage's unsatisfied-dependency count at compile time.
func (s *Stage) InDegree() int { return s.inDegree }

// Graph is a compiled, validated set of stages plus the field declaration
// table their updates are merged under.
type Graph struct {
	fields Fields
	stages map[string]*Stage
	// ids is the stable iteration order used for dispatch and tests.
	ids []string
}

// Fields returns the graph's field declaration table.
func (g *Graph) Fields() Fields { return g.fields }

// Len returns the number of stages.
func (g *Graph) Len() int { return len(g.stages) }

// Builder collects stage definitions before compilation.
type Builder struct {
	fields Fields
	stages map[string]*stageDef
	order  []string
}

type stageDef struct {
	id     string
	deps   []string
	writes []string
	fn     StageFunc
}

// NewBuilder creates a Builder for the given field declaration table.
func NewBuilder(fields Fields) *Builder {
	return &Builder{fields: fields, stages: map[string]*stageDef{}}
}

// Register adds a stage with its dependency ids and the state fields it may
// write. Registration order is irrelevant; dependencies may be registered
// later. Fails with ErrDuplicateStage when the id is already taken.
func (b *Builder) Register(id string, deps []string, writes []string, fn StageFunc) error {
	if _, exists := b.stages[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateStage, id)
	}
	if fn == nil {
		return fmt.Errorf("stage %q registered without a function", id)
	}
	b.stages[id] = &stageDef{id: id, deps: deps, writes: writes, fn: fn}
	b.order = append(b.order, id)
	return nil
}

// Compile validates the registered stages and returns an executable Graph.
// It rejects unresolved dependencies, cycles, writes to undeclared fields and
// overlapping overwrite-field ownership between stages that may execute
// concurrently. Acyclicity is a standing invariant of the returned graph;
// nothing is re-checked at run time.
func (b *Builder) Compile() (*Graph, error) {
	g := &Graph{fields: b.fields, stages: make(map[string]*Stage, len(b.stages))}

	for _, id := range b.order {
		def := b.stages[id]
		for _, f := range def.writes {
			if _, ok := b.fields[f]; !ok {
				return nil, fmt.Errorf("stage %q: %w: %q", id, ErrUnknownField, f)
			}
		}
		g.stages[id] = &Stage{
			ID:         id,
			deps:       map[string]*Stage{},
			dependents: map[string]*Stage{},
			writes:     append([]string(nil), def.writes...),
			fn:         def.fn,
		}
		g.ids = append(g.ids, id)
	}
	sort.Strings(g.ids)

	for _, id := range b.order {
		def := b.stages[id]
		st := g.stages[id]
		for _, depID := range def.deps {
			dep, ok := g.stages[depID]
			if !ok {
				return nil, fmt.Errorf("stage %q: %w: %q", id, ErrUnresolvedDependency, depID)
			}
			if depID == id {
				return nil, fmt.Errorf("stage %q: %w: self-reference", id, ErrCycleDetected)
			}
			if _, dup := st.deps[depID]; dup {
				continue
			}
			st.deps[depID] = dep
			dep.dependents[id] = st
			st.inDegree++
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	if len(g.stages) > 0 && len(g.entryStages()) == 0 {
		return nil, ErrNoEntryStage
	}
	if err := g.checkOverwriteOwnership(); err != nil {
		return nil, err
	}
	return g, nil
}

// entryStages returns the stages with no dependencies, in stable order.
func (g *Graph) entryStages() []*Stage {
	var roots []*Stage
	for _, id := range g.ids {
		if st := g.stages[id]; st.inDegree == 0 {
			roots = append(roots, st)
		}
	}
	return roots
}

// detectCycles runs a classic three-colour depth-first search over the
// dependent edges.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool, len(g.stages))
	temporary := make(map[string]bool)

	var visit func(st *Stage) error
	visit = func(st *Stage) error {
		if permanent[st.ID] {
			return nil
		}
		if temporary[st.ID] {
			return fmt.Errorf("%w involving stage %q", ErrCycleDetected, st.ID)
		}
		temporary[st.ID] = true
		for _, dependent := range st.dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, st.ID)
		permanent[st.ID] = true
		return nil
	}

	for _, id := range g.ids {
		if !permanent[id] {
			if err := visit(g.stages[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkOverwriteOwnership rejects graphs where two stages that may run
// concurrently (neither reachable from the other) both write the same
// overwrite field. Write races on overwrite fields are thereby excluded
// statically rather than by author convention.
func (g *Graph) checkOverwriteOwnership() error {
	reach := make(map[string]map[string]bool, len(g.stages))
	for _, id := range g.ids {
		reach[id] = g.reachableFrom(id)
	}
	for i, a := range g.ids {
		for _, bID := range g.ids[i+1:] {
			if reach[a][bID] || reach[bID][a] {
				continue
			}
			for _, fa := range g.stages[a].writes {
				if g.fields[fa] != Overwrite {
					continue
				}
				for _, fb := range g.stages[bID].writes {
					if fa == fb {
						return fmt.Errorf("%w: field %q written by %q and %q", ErrOverwriteFieldConflict, fa, a, bID)
					}
				}
			}
		}
	}
	return nil
}

// reachableFrom returns the transitive dependents of the given stage.
func (g *Graph) reachableFrom(id string) map[string]bool {
	seen := map[string]bool{}
	var walk func(st *Stage)
	walk = func(st *Stage) {
		for depID, dep := range st.dependents {
			if !seen[depID] {
				seen[depID] = true
				walk(dep)
			}
		}
	}
	walk(g.stages[id])
	return seen
}
