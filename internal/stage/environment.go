package stage

import (
	"context"
	"fmt"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
	"github.com/aurea-hq/underwriting/internal/pipeline"
)

// Environment looks up the property's energy certificate and scores
// construction age risk from the age band it records.
func Environment(deps Deps) pipeline.StageFunc {
	return func(ctx context.Context, snap pipeline.State) pipeline.Outcome {
		logger := ctxlog.FromContext(ctx)
		postcode := snap.String(FieldPostcode)

		certs, err := deps.Energy.Certificates(ctx, postcode)
		if err != nil {
			logger.Warn("Energy certificate lookup failed.", "postcode", postcode, "error", err)
			return pipeline.Degraded(pipeline.Update{
				FieldAgeBand:        AgeBandUnknown,
				FieldPropertyType:   "unknown",
				FieldAgeScore:       NeutralAgeScore,
				FieldProfileSummary: "Property type: unknown. Construction age band: unknown.",
				FieldWarnings:       []string{fmt.Sprintf("Energy certificate data fetch failed: %v", err)},
			}, "certificate lookup failed")
		}

		ageBand, propType := AgeBandUnknown, "unknown"
		if len(certs) > 0 {
			if certs[0].AgeBand != "" {
				ageBand = certs[0].AgeBand
			}
			if certs[0].PropertyType != "" {
				propType = certs[0].PropertyType
			}
		}
		score := scoreAgeBand(ageBand)
		summary := fmt.Sprintf("Property type: %s. Construction age band: %s. Property age risk score: %.1f/100.",
			propType, ageBand, score)

		update := pipeline.Update{
			FieldAgeBand:        ageBand,
			FieldPropertyType:   propType,
			FieldAgeScore:       score,
			FieldProfileSummary: summary,
		}
		if len(certs) == 0 {
			update[FieldWarnings] = []string{"No energy certificate found for this postcode; age band unknown."}
			return pipeline.Degraded(update, "no certificate found")
		}
		return pipeline.OK(update)
	}
}
