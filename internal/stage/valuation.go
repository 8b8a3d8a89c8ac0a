package stage

import (
	"context"
	"fmt"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
	"github.com/aurea-hq/underwriting/internal/feeds"
	"github.com/aurea-hq/underwriting/internal/pipeline"
)

// Valuation is the entry stage. It geocodes the address and scores planning
// activity from local applications plus council-level statistics. Everything
// downstream depends on the coordinates it resolves; when geocoding fails the
// coordinate fields stay absent and the rest of the pipeline degrades around
// them.
func Valuation(deps Deps) pipeline.StageFunc {
	return func(ctx context.Context, snap pipeline.State) pipeline.Outcome {
		logger := ctxlog.FromContext(ctx)
		address := snap.String(FieldAddress)
		postcode := snap.String(FieldPostcode)

		var warnings []string

		coords, err := deps.Geocoder.Locate(ctx, address, postcode)
		if err != nil {
			logger.Warn("Geocoding failed, degrading valuation stage.", "address", address, "error", err)
			return pipeline.Degraded(pipeline.Update{
				FieldPlanningScore:     NeutralPlanningScore,
				FieldPlanningLabel:     "Low",
				FieldPlanningReasoning: "No coordinates available, defaulting to low planning risk.",
				FieldValuationSummary:  "Location unknown.",
				FieldWarnings:          []string{"Could not geocode address."},
			}, "address could not be geocoded")
		}

		search, err := deps.Planning.Search(ctx, coords.Lat, coords.Lon)
		if err != nil {
			logger.Warn("Planning search failed.", "error", err)
			warnings = append(warnings, fmt.Sprintf("Planning application search failed: %v", err))
		}

		var stats feeds.CouncilStats
		councilID, err := deps.Planning.ResolveCouncilID(ctx, postcode, search)
		if err != nil {
			logger.Debug("Council could not be resolved, skipping stats.", "error", err)
			warnings = append(warnings, "Council-level planning statistics unavailable: council not resolved.")
		} else {
			stats, err = deps.Planning.Stats(ctx, councilID)
			if err != nil {
				logger.Warn("Planning stats failed.", "council_id", councilID, "error", err)
				warnings = append(warnings, fmt.Sprintf("Council planning statistics unavailable: %v", err))
				stats = feeds.CouncilStats{}
			}
		}

		score, label, reasoning := scorePlanning(stats, search)
		summary := fmt.Sprintf("Property at (%.4f, %.4f). Council planning activity: %s. %d applications within 500 m.",
			coords.Lat, coords.Lon, label, len(search.Applications))

		update := pipeline.Update{
			FieldLatitude:          coords.Lat,
			FieldLongitude:         coords.Lon,
			FieldPlanningScore:     score,
			FieldPlanningLabel:     label,
			FieldPlanningReasoning: reasoning,
			FieldValuationSummary:  summary,
		}
		if len(warnings) > 0 {
			update[FieldWarnings] = warnings
			return pipeline.Degraded(update, "planning data partially unavailable")
		}
		return pipeline.OK(update)
	}
}
