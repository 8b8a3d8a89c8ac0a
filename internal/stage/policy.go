package stage

import (
	"context"
	"fmt"

	"github.com/aurea-hq/underwriting/internal/pipeline"
)

// Policy retrieves the underwriting guideline chunks most relevant to the
// risk profile the fan-out stages produced. It is the fan-in point: it waits
// for flood, environment and locality before building its query.
func Policy(deps Deps) pipeline.StageFunc {
	return func(ctx context.Context, snap pipeline.State) pipeline.Outcome {
		if deps.Policies == nil {
			return pipeline.Degraded(pipeline.Update{
				FieldPolicyContext: []string{},
				FieldWarnings:      []string{"Policy guideline retrieval unavailable; decision will rely on scores alone."},
			}, "no policy retriever configured")
		}

		query := fmt.Sprintf("flood zone %s property flood risk score %.1f planning density %s property age band %s UK residential insurance policy",
			zoneOrUnknown(snap.String(FieldFloodZone)),
			snap.FloatOr(FieldFloodScore, NeutralFloodScore),
			labelOrUnknown(snap.String(FieldPlanningLabel)),
			labelOrUnknown(snap.String(FieldAgeBand)))

		chunks := deps.Policies.Retrieve(ctx, query)
		if len(chunks) == 0 {
			return pipeline.Degraded(pipeline.Update{
				FieldPolicyContext: []string{},
				FieldWarnings:      []string{"Policy guideline retrieval returned no results."},
			}, "empty retrieval")
		}

		texts := make([]string, len(chunks))
		citations := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text()
			citations[i] = c.Citation()
		}
		return pipeline.OK(pipeline.Update{
			FieldPolicyContext:      texts,
			FieldCandidateCitations: citations,
		})
	}
}

func zoneOrUnknown(zone string) string {
	if zone == "" {
		return ZoneUnknown
	}
	return zone
}

func labelOrUnknown(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
