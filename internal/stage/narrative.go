package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
	"github.com/aurea-hq/underwriting/internal/oracle"
	"github.com/aurea-hq/underwriting/internal/pipeline"
)

// Narrative is the terminal stage. It turns the full assessment into a
// customer-facing explanation: a per-factor risk breakdown, policy citations
// and a plain-English narrative. Without the oracle it assembles the same
// structure from the reasoning the earlier stages recorded.
func Narrative(deps Deps) pipeline.StageFunc {
	return func(ctx context.Context, snap pipeline.State) pipeline.Outcome {
		logger := ctxlog.FromContext(ctx)

		if deps.Oracle != nil {
			narrative, err := deps.Oracle.Narrate(ctx, oracle.NarrativeInput{
				Address:              snap.String(FieldAddress),
				Decision:             snap.String(FieldDecision),
				OverallScore:         snap.FloatOr(FieldOverallScore, 0),
				PremiumMultiplier:    snap.FloatOr(FieldMultiplier, 1.0),
				FloodScore:           snap.FloatOr(FieldFloodScore, NeutralFloodScore),
				FloodZone:            zoneOrUnknown(snap.String(FieldFloodZone)),
				FloodReasoning:       snap.String(FieldFloodReasoning),
				PlanningScore:        snap.FloatOr(FieldPlanningScore, NeutralPlanningScore),
				PlanningLabel:        labelOrUnknown(snap.String(FieldPlanningLabel)),
				PlanningReasoning:    snap.String(FieldPlanningReasoning),
				AgeScore:             snap.FloatOr(FieldAgeScore, NeutralAgeScore),
				AgeBand:              labelOrUnknown(snap.String(FieldAgeBand)),
				ProfileSummary:       snap.String(FieldProfileSummary),
				LocalityScore:        snap.FloatOr(FieldLocalityScore, NeutralLocalityScore),
				LocalityLabel:        labelOrUnknown(snap.String(FieldLocalityLabel)),
				LocalityReasoning:    snap.String(FieldLocalityReasoning),
				UnderwriterReasoning: snap.String(FieldUnderwriterReasoning),
				PolicyContext:        snap.Strings(FieldPolicyContext),
			})
			if err == nil {
				factors := make([]RiskFactor, len(narrative.RiskFactors))
				for i, f := range narrative.RiskFactors {
					factors[i] = RiskFactor{Name: f.Name, Score: f.Score, Weight: f.Weight, Reasoning: f.Reasoning}
				}
				return pipeline.OK(pipeline.Update{
					FieldRiskFactors: factors,
					FieldCitations:   narrative.PolicyCitations,
					FieldNarrative:   narrative.Narrative,
				})
			}
			logger.Warn("Narrative oracle failed, assembling deterministic explanation.", "error", err)
		}
		return fallbackNarrative(snap)
	}
}

// fallbackNarrative builds the explanation from the per-stage reasoning
// already in state.
func fallbackNarrative(snap pipeline.State) pipeline.Outcome {
	factors := []RiskFactor{
		{
			Name:      "Flood Risk",
			Score:     snap.FloatOr(FieldFloodScore, NeutralFloodScore),
			Weight:    WeightFlood,
			Reasoning: reasoningOr(snap, FieldFloodReasoning, fmt.Sprintf("Flood Zone %s.", zoneOrUnknown(snap.String(FieldFloodZone)))),
		},
		{
			Name:      "Property Age Risk",
			Score:     snap.FloatOr(FieldAgeScore, NeutralAgeScore),
			Weight:    WeightAge,
			Reasoning: reasoningOr(snap, FieldProfileSummary, fmt.Sprintf("Age band: %s.", labelOrUnknown(snap.String(FieldAgeBand)))),
		},
		{
			Name:      "Planning & Development Risk",
			Score:     snap.FloatOr(FieldPlanningScore, NeutralPlanningScore),
			Weight:    WeightPlanning,
			Reasoning: reasoningOr(snap, FieldPlanningReasoning, fmt.Sprintf("Density: %s.", labelOrUnknown(snap.String(FieldPlanningLabel)))),
		},
		{
			Name:      "Locality & Crime Risk",
			Score:     snap.FloatOr(FieldLocalityScore, NeutralLocalityScore),
			Weight:    WeightLocality,
			Reasoning: reasoningOr(snap, FieldLocalityReasoning, fmt.Sprintf("Crime level: %s.", labelOrUnknown(snap.String(FieldLocalityLabel)))),
		},
	}

	citations := snap.Strings(FieldCandidateCitations)
	if citations == nil {
		citations = []string{}
	}
	narrative := fmt.Sprintf(
		"Your property has been assessed with an overall risk score of %.0f/100. "+
			"The underwriting decision is: %s. A premium multiplier of %.2fx applies. "+
			"The key risk factors considered were flood zone classification, property construction age, "+
			"nearby planning activity, and local crime levels.",
		snap.FloatOr(FieldOverallScore, 0),
		strings.ToUpper(snap.String(FieldDecision)),
		snap.FloatOr(FieldMultiplier, 1.0))

	return pipeline.Degraded(pipeline.Update{
		FieldRiskFactors: factors,
		FieldCitations:   citations,
		FieldNarrative:   narrative,
		FieldWarnings:    []string{"Narrative produced by deterministic fallback instead of the reasoning model."},
	}, "narrative fell back to template")
}

func reasoningOr(snap pipeline.State, field, fallback string) string {
	if r := snap.String(field); r != "" {
		return r
	}
	return fallback
}
