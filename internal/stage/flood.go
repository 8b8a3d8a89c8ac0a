package stage

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
	"github.com/aurea-hq/underwriting/internal/pipeline"
)

// Flood classifies the property's flood zone and applies a live-warning
// uplift. The zone source only publishes polygons for zones 2 and 3, so a
// clean response with no entities means zone 1.
func Flood(deps Deps) pipeline.StageFunc {
	return func(ctx context.Context, snap pipeline.State) pipeline.Outcome {
		logger := ctxlog.FromContext(ctx)

		lat, okLat := snap.Float(FieldLatitude)
		lon, okLon := snap.Float(FieldLongitude)
		if !okLat || !okLon {
			return pipeline.Degraded(pipeline.Update{
				FieldFloodZone:      ZoneUnknown,
				FieldFloodScore:     NeutralFloodScore,
				FieldFloodReasoning: "No coordinates available, flood zone cannot be evaluated. Manual verification required.",
				FieldWarnings:       []string{"Flood zone evaluation skipped: no coordinates."},
			}, "no coordinates")
		}

		var warnings []string
		degraded := false

		zone := ZoneUnknown
		result, err := deps.Flood.Zone(ctx, lat, lon)
		switch {
		case err != nil || !result.Responded:
			logger.Warn("Flood zone source unavailable.", "error", err)
			warnings = append(warnings, "Flood zone data unavailable: zone source did not respond. Manual verification required.")
			degraded = true
		case result.Zone != "":
			zone = result.Zone
		default:
			// responded with zero entities: outside all zone 2/3 polygons
			zone = "1"
		}
		baseScore := zoneScores[zone]

		active, err := deps.Flood.Warnings(ctx, lat, lon)
		if err != nil {
			logger.Warn("Live flood warning feed unavailable.", "error", err)
			warnings = append(warnings, "Live flood warning feed unavailable; score reflects zone classification only.")
			degraded = true
			active = nil
		}
		uplift := warningUplift(active)
		finalScore := math.Min(100, baseScore+uplift)

		var zoneReasoning string
		if zone == ZoneUnknown {
			zoneReasoning = fmt.Sprintf("Flood zone could not be determined. A holding score of %.0f/100 has been applied.", baseScore)
		} else {
			zoneReasoning = fmt.Sprintf("Flood Zone %s, %s risk, %s.", zone, zoneRiskLevels[zone], zoneProbabilities[zone])
		}
		var warningReasoning string
		if uplift > 0 {
			warningReasoning = fmt.Sprintf(" %d active flood warning(s) within 5 km; score uplift of +%.0f applied.", len(active), uplift)
		} else {
			warningReasoning = " No active flood warnings or alerts within 5 km."
		}
		reasoning := strings.TrimSpace(fmt.Sprintf("%s%s Overall flood risk score: %.1f/100.", zoneReasoning, warningReasoning, finalScore))

		update := pipeline.Update{
			FieldFloodZone:      zone,
			FieldFloodScore:     finalScore,
			FieldFloodReasoning: reasoning,
		}
		if degraded {
			update[FieldWarnings] = warnings
			return pipeline.Degraded(update, "flood data partially unavailable")
		}
		return pipeline.OK(update)
	}
}
