package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
)

// ErrNoCouncil is returned when no council id can be resolved for a
// location; council-level statistics are skipped in that case.
var ErrNoCouncil = errors.New("council id could not be resolved")

// localSearchRadius is the metre radius for nearby planning applications.
const localSearchRadius = 500

// wideSearchRadius is used only while resolving a council id.
const wideSearchRadius = 2000

// searchWindow is the rolling window for planning queries.
const searchWindow = 730 * 24 * time.Hour

// Application is one planning application near the property.
type Application struct {
	CouncilID         int     `json:"council_id"`
	CouncilName       string  `json:"council_name"`
	AppealStatus      string  `json:"appeal_status"`
	AppealDecision    string  `json:"appeal_decision"`
	NumNewHouses      int     `json:"num_new_houses"`
	ProposedFloorArea float64 `json:"proposed_floor_area"`
}

// PlanningSearch is the local-radius search result.
type PlanningSearch struct {
	Applications []Application
}

// CouncilStats carries council-level planning statistics.
type CouncilStats struct {
	ActivityLevel     string         `json:"council_development_activity_level"`
	NewHomesApproved  int            `json:"number_of_new_homes_approved"`
	ApprovalRate      float64        `json:"approval_rate"`
	RefusalRate       float64        `json:"refusal_rate"`
	ApplicationCounts map[string]int `json:"number_of_applications"`
}

// PlanningClient queries the planning-activity data source. The API uses
// POST with JSON bodies; coordinates are GeoJSON order, longitude first.
type PlanningClient struct {
	baseURL      string
	apiKey       string
	postcodesURL string
	client       *http.Client
}

// NewPlanningClient creates a PlanningClient. postcodesURL points at the
// postcode-to-district lookup used as the council-resolution fallback.
func NewPlanningClient(baseURL, apiKey, postcodesURL string, client *http.Client) *PlanningClient {
	return &PlanningClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		postcodesURL: strings.TrimSuffix(postcodesURL, "/"),
		client:       client,
	}
}

// Search returns planning applications within 500 m of the point over the
// rolling two-year window.
func (p *PlanningClient) Search(ctx context.Context, lat, lon float64) (PlanningSearch, error) {
	return p.search(ctx, lat, lon, localSearchRadius, map[string]bool{
		"appeals":             true,
		"num_new_houses":      true,
		"proposed_floor_area": true,
	})
}

func (p *PlanningClient) search(ctx context.Context, lat, lon float64, radius int, extensions map[string]bool) (PlanningSearch, error) {
	now := time.Now()
	body := map[string]any{
		"input": map[string]any{
			"srid":        4326,
			"coordinates": []float64{lon, lat},
			"radius":      radius,
			"date_from":   now.Add(-searchWindow).Format("2006-01-02"),
			"date_to":     now.Format("2006-01-02"),
		},
		"extensions": extensions,
	}

	var envelope struct {
		Applications []Application `json:"applications"`
		Results      []Application `json:"results"`
	}
	if err := p.post(ctx, "/search", body, &envelope); err != nil {
		return PlanningSearch{}, err
	}
	apps := envelope.Applications
	if len(apps) == 0 {
		apps = envelope.Results
	}
	return PlanningSearch{Applications: apps}, nil
}

// Stats returns council-level statistics for the given council id.
func (p *PlanningClient) Stats(ctx context.Context, councilID int) (CouncilStats, error) {
	now := time.Now()
	body := map[string]any{
		"input": map[string]any{
			"council_id": councilID,
			"date_from":  now.Add(-searchWindow).Format("2006-01-02"),
			"date_to":    now.Format("2006-01-02"),
		},
	}
	var stats CouncilStats
	if err := p.post(ctx, "/stats", body, &stats); err != nil {
		return CouncilStats{}, err
	}
	return stats, nil
}

// ResolveCouncilID finds the council id for a location. The already-fetched
// local search is scanned first; failing that, the postcode lookup provides a
// point for a wide-radius search.
func (p *PlanningClient) ResolveCouncilID(ctx context.Context, postcode string, search PlanningSearch) (int, error) {
	logger := ctxlog.FromContext(ctx)
	for _, app := range search.Applications {
		if app.CouncilID != 0 {
			return app.CouncilID, nil
		}
	}

	coords, err := p.postcodeLookup(ctx, postcode)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoCouncil, err)
	}
	logger.Debug("Resolved postcode for wide council search.", "postcode", postcode, "lat", coords.Lat, "lon", coords.Lon)

	wide, err := p.search(ctx, coords.Lat, coords.Lon, wideSearchRadius, map[string]bool{})
	if err != nil {
		return 0, fmt.Errorf("%w: wide search: %v", ErrNoCouncil, err)
	}
	for _, app := range wide.Applications {
		if app.CouncilID != 0 {
			return app.CouncilID, nil
		}
	}
	return 0, ErrNoCouncil
}

func (p *PlanningClient) postcodeLookup(ctx context.Context, postcode string) (Coordinates, error) {
	clean := strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.postcodesURL+"/postcodes/"+clean, nil)
	if err != nil {
		return Coordinates{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("postcode lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("postcode lookup returned status %d", resp.StatusCode)
	}

	var payload struct {
		Result struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Coordinates{}, fmt.Errorf("decoding postcode lookup: %w", err)
	}
	if payload.Result.Latitude == 0 && payload.Result.Longitude == 0 {
		return Coordinates{}, errors.New("postcode lookup returned no coordinates")
	}
	return Coordinates{Lat: payload.Result.Latitude, Lon: payload.Result.Longitude}, nil
}

func (p *PlanningClient) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("planning %s request: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("planning %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding planning %s response: %w", path, err)
	}
	return nil
}
