package stage

import (
	"fmt"

	"github.com/aurea-hq/underwriting/internal/pipeline"
)

// Graph wires the seven stages into the assessment topology:
//
//	valuation -> {flood, environment, locality} -> policy -> decision -> narrative
//
// The compiler validates write declarations, dependency resolution, acyclicity
// and exclusive ownership of overwrite fields before anything runs.
func Graph(deps Deps) (*pipeline.Graph, error) {
	b := pipeline.NewBuilder(Fields())

	regs := []struct {
		id     string
		deps   []string
		writes []string
		fn     pipeline.StageFunc
	}{
		{
			id: StageValuation,
			writes: []string{
				FieldLatitude, FieldLongitude,
				FieldPlanningScore, FieldPlanningLabel, FieldPlanningReasoning,
				FieldValuationSummary, FieldWarnings,
			},
			fn: Valuation(deps),
		},
		{
			id:   StageFlood,
			deps: []string{StageValuation},
			writes: []string{
				FieldFloodZone, FieldFloodScore, FieldFloodReasoning, FieldWarnings,
			},
			fn: Flood(deps),
		},
		{
			id:   StageEnvironment,
			deps: []string{StageValuation},
			writes: []string{
				FieldAgeBand, FieldPropertyType, FieldAgeScore, FieldProfileSummary, FieldWarnings,
			},
			fn: Environment(deps),
		},
		{
			id:   StageLocality,
			deps: []string{StageValuation},
			writes: []string{
				FieldLocalityScore, FieldLocalityLabel, FieldLocalityReasoning, FieldWarnings,
			},
			fn: Locality(deps),
		},
		{
			id:   StagePolicy,
			deps: []string{StageFlood, StageEnvironment, StageLocality},
			writes: []string{
				FieldPolicyContext, FieldCandidateCitations, FieldWarnings,
			},
			fn: Policy(deps),
		},
		{
			id:   StageDecision,
			deps: []string{StagePolicy},
			writes: []string{
				FieldOverallScore, FieldMultiplier, FieldDecision,
				FieldUnderwriterReasoning, FieldWarnings,
			},
			fn: Decision(deps),
		},
		{
			id:   StageNarrative,
			deps: []string{StageDecision},
			writes: []string{
				FieldRiskFactors, FieldCitations, FieldNarrative, FieldWarnings,
			},
			fn: Narrative(deps),
		},
	}

	for _, r := range regs {
		if err := b.Register(r.id, r.deps, r.writes, r.fn); err != nil {
			return nil, fmt.Errorf("registering stage %q: %w", r.id, err)
		}
	}
	return b.Compile()
}
