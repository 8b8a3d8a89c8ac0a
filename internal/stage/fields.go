package stage

import "github.com/aurea-hq/underwriting/internal/pipeline"

// Stage ids, in graph order.
const (
	StageValuation   = "valuation"
	StageFlood       = "flood"
	StageEnvironment = "environment"
	StageLocality    = "locality"
	StagePolicy      = "policy"
	StageDecision    = "decision"
	StageNarrative   = "narrative"
)

// State field names. The declaration table below is the single source of
// truth for merge behaviour; stages declare which of these they write and the
// graph compiler checks both sets.
const (
	FieldAddress  = "address"
	FieldPostcode = "postcode"
	FieldUserID   = "user_id"

	FieldLatitude          = "latitude"
	FieldLongitude         = "longitude"
	FieldPlanningScore     = "planning_risk_score"
	FieldPlanningLabel     = "planning_density_label"
	FieldPlanningReasoning = "planning_risk_reasoning"
	FieldValuationSummary  = "property_valuation_summary"

	FieldFloodZone      = "flood_zone"
	FieldFloodScore     = "flood_risk_score"
	FieldFloodReasoning = "flood_risk_reasoning"

	FieldAgeBand        = "property_age_band"
	FieldPropertyType   = "property_type"
	FieldAgeScore       = "property_age_risk_score"
	FieldProfileSummary = "property_profile_summary"

	FieldLocalityScore     = "locality_safety_score"
	FieldLocalityLabel     = "locality_safety_label"
	FieldLocalityReasoning = "locality_safety_reasoning"

	FieldPolicyContext      = "policy_context"
	FieldCandidateCitations = "candidate_policy_citations"

	FieldOverallScore         = "overall_risk_score"
	FieldMultiplier           = "premium_multiplier"
	FieldDecision             = "decision"
	FieldUnderwriterReasoning = "underwriter_reasoning"

	FieldRiskFactors = "risk_factors"
	FieldCitations   = "policy_citations"
	FieldNarrative   = "plain_english_narrative"

	// FieldWarnings is the single accumulating warnings field. Every stage
	// may append to it; entries are never lost or reordered within a stage's
	// contribution.
	FieldWarnings = "warnings"
)

// Fields returns the per-field merge-policy table for the underwriting
// pipeline.
func Fields() pipeline.Fields {
	return pipeline.Fields{
		FieldAddress:  pipeline.Overwrite,
		FieldPostcode: pipeline.Overwrite,
		FieldUserID:   pipeline.Overwrite,

		FieldLatitude:          pipeline.Overwrite,
		FieldLongitude:         pipeline.Overwrite,
		FieldPlanningScore:     pipeline.Overwrite,
		FieldPlanningLabel:     pipeline.Overwrite,
		FieldPlanningReasoning: pipeline.Overwrite,
		FieldValuationSummary:  pipeline.Overwrite,

		FieldFloodZone:      pipeline.Overwrite,
		FieldFloodScore:     pipeline.Overwrite,
		FieldFloodReasoning: pipeline.Overwrite,

		FieldAgeBand:        pipeline.Overwrite,
		FieldPropertyType:   pipeline.Overwrite,
		FieldAgeScore:       pipeline.Overwrite,
		FieldProfileSummary: pipeline.Overwrite,

		FieldLocalityScore:     pipeline.Overwrite,
		FieldLocalityLabel:     pipeline.Overwrite,
		FieldLocalityReasoning: pipeline.Overwrite,

		FieldPolicyContext:      pipeline.Overwrite,
		FieldCandidateCitations: pipeline.Overwrite,

		FieldOverallScore:         pipeline.Overwrite,
		FieldMultiplier:           pipeline.Overwrite,
		FieldDecision:             pipeline.Overwrite,
		FieldUnderwriterReasoning: pipeline.Overwrite,

		FieldRiskFactors: pipeline.Overwrite,
		FieldCitations:   pipeline.Overwrite,
		FieldNarrative:   pipeline.Overwrite,

		FieldWarnings: pipeline.Accumulate,
	}
}
