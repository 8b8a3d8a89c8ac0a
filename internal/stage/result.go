package stage

import (
	"github.com/aurea-hq/underwriting/internal/pipeline"
)

// RiskFactor is one entry in the final risk breakdown.
type RiskFactor struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Reasoning string  `json:"reasoning"`
}

// Result is the complete projection of a finished pipeline run.
type Result struct {
	Address  string `json:"address"`
	Postcode string `json:"postcode"`

	FloodZone      string  `json:"flood_zone"`
	FloodScore     float64 `json:"flood_risk_score"`
	FloodReasoning string  `json:"flood_risk_reasoning"`

	PlanningScore     float64 `json:"planning_risk_score"`
	PlanningLabel     string  `json:"planning_density_label"`
	PlanningReasoning string  `json:"planning_risk_reasoning"`
	ValuationSummary  string  `json:"property_valuation_summary"`

	AgeBand        string  `json:"property_age_band"`
	PropertyType   string  `json:"property_type"`
	AgeScore       float64 `json:"property_age_risk_score"`
	ProfileSummary string  `json:"property_profile_summary"`

	LocalityScore     float64 `json:"locality_safety_score"`
	LocalityLabel     string  `json:"locality_safety_label"`
	LocalityReasoning string  `json:"locality_safety_reasoning"`

	OverallScore         float64 `json:"overall_risk_score"`
	PremiumMultiplier    float64 `json:"premium_multiplier"`
	Decision             string  `json:"decision"`
	UnderwriterReasoning string  `json:"underwriter_reasoning"`

	RiskFactors     []RiskFactor `json:"risk_factors"`
	PolicyCitations []string     `json:"policy_citations"`
	Narrative       string       `json:"plain_english_narrative"`

	Warnings []string `json:"warnings,omitempty"`
}

// Project maps the final pipeline state onto a Result. Absent fields keep
// their neutral values so a heavily degraded run still projects cleanly.
func Project(final pipeline.State) Result {
	r := Result{
		Address:  final.String(FieldAddress),
		Postcode: final.String(FieldPostcode),

		FloodZone:      zoneOrUnknown(final.String(FieldFloodZone)),
		FloodScore:     final.FloatOr(FieldFloodScore, NeutralFloodScore),
		FloodReasoning: final.String(FieldFloodReasoning),

		PlanningScore:     final.FloatOr(FieldPlanningScore, NeutralPlanningScore),
		PlanningLabel:     labelOrUnknown(final.String(FieldPlanningLabel)),
		PlanningReasoning: final.String(FieldPlanningReasoning),
		ValuationSummary:  final.String(FieldValuationSummary),

		AgeBand:        labelOrUnknown(final.String(FieldAgeBand)),
		PropertyType:   labelOrUnknown(final.String(FieldPropertyType)),
		AgeScore:       final.FloatOr(FieldAgeScore, NeutralAgeScore),
		ProfileSummary: final.String(FieldProfileSummary),

		LocalityScore:     final.FloatOr(FieldLocalityScore, NeutralLocalityScore),
		LocalityLabel:     labelOrUnknown(final.String(FieldLocalityLabel)),
		LocalityReasoning: final.String(FieldLocalityReasoning),

		OverallScore:         final.FloatOr(FieldOverallScore, 0),
		PremiumMultiplier:    final.FloatOr(FieldMultiplier, 1.0),
		Decision:             final.String(FieldDecision),
		UnderwriterReasoning: final.String(FieldUnderwriterReasoning),

		PolicyCitations: final.Strings(FieldCitations),
		Narrative:       final.String(FieldNarrative),
		Warnings:        final.Strings(FieldWarnings),
	}
	if factors, ok := final.Get(FieldRiskFactors); ok {
		if fs, ok := factors.([]RiskFactor); ok {
			r.RiskFactors = fs
		}
	}
	if r.PolicyCitations == nil {
		r.PolicyCitations = []string{}
	}
	return r
}
