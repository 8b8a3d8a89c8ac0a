package stage

import (
	"context"
	"fmt"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
	"github.com/aurea-hq/underwriting/internal/oracle"
	"github.com/aurea-hq/underwriting/internal/pipeline"
)

// Decision synthesises the final underwriting decision from the four
// sub-scores and the retrieved policy context. It prefers the reasoning
// oracle and falls back to the closed-form weighted average when the oracle
// is unavailable or returns something unusable.
func Decision(deps Deps) pipeline.StageFunc {
	return func(ctx context.Context, snap pipeline.State) pipeline.Outcome {
		logger := ctxlog.FromContext(ctx)

		flood := snap.FloatOr(FieldFloodScore, NeutralFloodScore)
		planning := snap.FloatOr(FieldPlanningScore, NeutralPlanningScore)
		age := snap.FloatOr(FieldAgeScore, NeutralAgeScore)
		locality := snap.FloatOr(FieldLocalityScore, NeutralLocalityScore)

		if deps.Oracle != nil {
			decision, err := deps.Oracle.Decide(ctx, oracle.DecisionInput{
				FloodScore:    flood,
				FloodZone:     zoneOrUnknown(snap.String(FieldFloodZone)),
				PlanningScore: planning,
				PlanningLabel: labelOrUnknown(snap.String(FieldPlanningLabel)),
				AgeScore:      age,
				AgeBand:       labelOrUnknown(snap.String(FieldAgeBand)),
				LocalityScore: locality,
				LocalityLabel: labelOrUnknown(snap.String(FieldLocalityLabel)),
				PolicyContext: snap.Strings(FieldPolicyContext),
			})
			if err == nil && validDecision(decision.Decision) {
				return pipeline.OK(pipeline.Update{
					FieldOverallScore:         decision.OverallScore,
					FieldMultiplier:           clampMultiplier(decision.PremiumMultiplier),
					FieldDecision:             decision.Decision,
					FieldUnderwriterReasoning: decision.Reasoning,
				})
			}
			if err != nil {
				logger.Warn("Decision oracle failed, applying deterministic fallback.", "error", err)
			} else {
				logger.Warn("Decision oracle returned an unusable decision, applying deterministic fallback.",
					"decision", decision.Decision)
				err = fmt.Errorf("unusable decision %q", decision.Decision)
			}
			return fallbackDecision(flood, planning, age, locality, err.Error())
		}
		return fallbackDecision(flood, planning, age, locality, "no oracle configured")
	}
}

// fallbackDecision is the deterministic weighted-average decision.
func fallbackDecision(flood, planning, age, locality float64, cause string) pipeline.Outcome {
	overall := OverallScore(flood, planning, age, locality)
	return pipeline.Degraded(pipeline.Update{
		FieldOverallScore: overall,
		FieldMultiplier:   PremiumMultiplier(overall),
		FieldDecision:     DecisionFor(overall),
		FieldUnderwriterReasoning: fmt.Sprintf(
			"Deterministic fallback applied (%s). Weighted average of sub-scores used.", cause),
		FieldWarnings: []string{"Decision produced by deterministic fallback instead of the reasoning model."},
	}, "decision fell back to weighted average")
}

func validDecision(d string) bool {
	return d == DecisionAccept || d == DecisionRefer || d == DecisionDecline
}

func clampMultiplier(m float64) float64 {
	if m < 0.8 {
		return 0.8
	}
	if m > 3.0 {
		return 3.0
	}
	return m
}
