package stage

import (
	"context"

	"github.com/aurea-hq/underwriting/internal/feeds"
	"github.com/aurea-hq/underwriting/internal/oracle"
	"github.com/aurea-hq/underwriting/internal/policystore"
)

// GeocodeFeed resolves an address to coordinates.
type GeocodeFeed interface {
	Locate(ctx context.Context, address, postcode string) (feeds.Coordinates, error)
}

// PlanningFeed supplies planning applications and council statistics.
type PlanningFeed interface {
	Search(ctx context.Context, lat, lon float64) (feeds.PlanningSearch, error)
	Stats(ctx context.Context, councilID int) (feeds.CouncilStats, error)
	ResolveCouncilID(ctx context.Context, postcode string, search feeds.PlanningSearch) (int, error)
}

// FloodFeed supplies flood zone classification and live warnings.
type FloodFeed interface {
	Zone(ctx context.Context, lat, lon float64) (feeds.ZoneResult, error)
	Warnings(ctx context.Context, lat, lon float64) ([]feeds.FloodWarning, error)
}

// EnergyFeed supplies energy-certificate records for a postcode.
type EnergyFeed interface {
	Certificates(ctx context.Context, postcode string) ([]feeds.Certificate, error)
}

// CrimeFeed supplies street-level crime history around a point.
type CrimeFeed interface {
	Crimes(ctx context.Context, lat, lon float64) ([]feeds.Crime, feeds.CrimePeriod, error)
}

// PolicyRetriever returns the policy chunks most relevant to a query.
type PolicyRetriever interface {
	Retrieve(ctx context.Context, query string) []policystore.Chunk
}

// Oracle is the reasoning model behind the decision and narrative stages.
type Oracle interface {
	Decide(ctx context.Context, in oracle.DecisionInput) (oracle.Decision, error)
	Narrate(ctx context.Context, in oracle.NarrativeInput) (oracle.Narrative, error)
}

// Deps bundles every external dependency the pipeline stages use. Any nil
// entry makes the stages that need it degrade instead of fail.
type Deps struct {
	Geocoder GeocodeFeed
	Planning PlanningFeed
	Flood    FloodFeed
	Energy   EnergyFeed
	Crime    CrimeFeed
	Policies PolicyRetriever
	Oracle   Oracle
}
