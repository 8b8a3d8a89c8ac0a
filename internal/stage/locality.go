package stage

import (
	"context"
	"fmt"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
	"github.com/aurea-hq/underwriting/internal/pipeline"
)

// Locality weights twelve months of street-level crime history into a
// neighbourhood safety score.
func Locality(deps Deps) pipeline.StageFunc {
	return func(ctx context.Context, snap pipeline.State) pipeline.Outcome {
		logger := ctxlog.FromContext(ctx)

		lat, okLat := snap.Float(FieldLatitude)
		lon, okLon := snap.Float(FieldLongitude)
		if !okLat || !okLon {
			return localityFallback(
				"No coordinates available, locality safety cannot be evaluated.",
				"Locality safety evaluation skipped: no coordinates.",
				"no coordinates")
		}

		crimes, period, err := deps.Crime.Crimes(ctx, lat, lon)
		if err != nil {
			logger.Warn("Crime feed unavailable.", "error", err)
			return localityFallback(
				"Locality safety data unavailable (crime feed error). A neutral holding score of 25.0/100 has been applied.",
				fmt.Sprintf("Locality safety data unavailable: %v", err),
				"crime feed error")
		}
		if len(crimes) == 0 {
			return localityFallback(
				"No crime data returned for this location. A neutral holding score of 25.0/100 has been applied.",
				"Locality safety: crime feed returned no data for this location.",
				"no crime data")
		}

		score, counts := scoreCrimes(crimes)
		label := crimeLabel(score)
		reasoning := fmt.Sprintf(
			"Street-level crime data (%s to %s, 12 months): %d recorded crimes near this location. "+
				"Top categories: %s. Weighted crime score: %.1f/100 (%s). "+
				"Burglary and criminal damage/arson carry the highest weighting as direct insurance risk factors.",
			period.From, period.To, len(crimes), topCategories(counts, 4), score, label)

		return pipeline.OK(pipeline.Update{
			FieldLocalityScore:     score,
			FieldLocalityLabel:     label,
			FieldLocalityReasoning: reasoning,
		})
	}
}

func localityFallback(reasoning, warning, reason string) pipeline.Outcome {
	return pipeline.Degraded(pipeline.Update{
		FieldLocalityScore:     NeutralLocalityScore,
		FieldLocalityLabel:     "Low Crime",
		FieldLocalityReasoning: reasoning,
		FieldWarnings:          []string{warning},
	}, reason)
}
