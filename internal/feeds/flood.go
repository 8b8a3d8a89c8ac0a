package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// warningRadiusKM is the search radius for live flood warnings.
const warningRadiusKM = 5

// ZoneResult is the flood zone classification for a point. Zone is "1", "2"
// or "3" when detected and "" when the source responded but no zone could be
// derived. The source only publishes explicit polygons for zones 2 and 3, so
// a successful response with zero entities means the point is implicitly in
// zone 1; callers distinguish that case via EntityCount and Responded.
type ZoneResult struct {
	Zone        string
	EntityCount int
	Responded   bool
}

// FloodWarning is one active live warning near the property. Severity is 1
// (severe warning), 2 (warning) or 3 (alert); expired entries (severity 4)
// are filtered out by the client.
type FloodWarning struct {
	Severity int
	Area     string
}

// FloodClient queries the flood-zone classification source and the live
// flood-warning feed.
type FloodClient struct {
	zoneURL    string
	warningURL string
	client     *http.Client
}

// NewFloodClient creates a FloodClient for the two sources.
func NewFloodClient(zoneURL, warningURL string, client *http.Client) *FloodClient {
	return &FloodClient{
		zoneURL:    strings.TrimSuffix(zoneURL, "/"),
		warningURL: strings.TrimSuffix(warningURL, "/"),
		client:     client,
	}
}

// Zone classifies the point against the flood-risk-zone dataset. The worst
// (highest) zone wins when multiple entities overlap the point.
func (f *FloodClient) Zone(ctx context.Context, lat, lon float64) (ZoneResult, error) {
	params := url.Values{}
	params.Set("dataset", "flood-risk-zone")
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.zoneURL+"/entity.json?"+params.Encode(), nil)
	if err != nil {
		return ZoneResult{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return ZoneResult{}, fmt.Errorf("flood zone request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ZoneResult{}, fmt.Errorf("flood zone source returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Entities []zoneEntity `json:"entities"`
		Results  []zoneEntity `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return ZoneResult{}, fmt.Errorf("decoding flood zone response: %w", err)
	}
	entities := envelope.Entities
	if len(entities) == 0 {
		entities = envelope.Results
	}

	return ZoneResult{
		Zone:        parseZone(entities),
		EntityCount: len(entities),
		Responded:   true,
	}, nil
}

type zoneEntity struct {
	RiskLevel string `json:"flood-risk-level"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
}

// parseZone extracts the flood zone from entity fields, which carry it in
// several shapes ("flood-risk-zone-2", "fz3", "Flood Zone 2", a bare digit,
// or a reference suffix like "232138/2").
func parseZone(entities []zoneEntity) string {
	detected := 0
	for _, e := range entities {
		level := strings.ToLower(e.RiskLevel)
		ref := strings.ToLower(e.Reference)
		name := strings.ToLower(e.Name)
		combined := level + " " + ref + " " + name
		for z := 3; z >= 1; z-- {
			d := strconv.Itoa(z)
			matched := strings.Contains(combined, "zone-"+d) ||
				strings.Contains(combined, "zone "+d) ||
				strings.Contains(combined, "fz"+d) ||
				strings.TrimSpace(combined) == d ||
				strings.HasSuffix(ref, "/"+d) ||
				strings.HasSuffix(ref, "-"+d)
			if matched && z > detected {
				detected = z
			}
		}
	}
	if detected == 0 {
		return ""
	}
	return strconv.Itoa(detected)
}

// Warnings returns the active live flood warnings within 5 km of the point.
func (f *FloodClient) Warnings(ctx context.Context, lat, lon float64) ([]FloodWarning, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("long", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("dist", strconv.Itoa(warningRadiusKM))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.warningURL+"/id/floods?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flood warning request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flood warning feed returned status %d", resp.StatusCode)
	}

	var payload struct {
		Items []struct {
			Severity    int    `json:"severityLevel"`
			AreaName    string `json:"eaAreaName"`
			Description string `json:"description"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding flood warning response: %w", err)
	}

	var active []FloodWarning
	for _, item := range payload.Items {
		if item.Severity <= 0 || item.Severity >= 4 {
			continue
		}
		area := item.AreaName
		if area == "" {
			area = item.Description
		}
		active = append(active, FloodWarning{Severity: item.Severity, Area: area})
	}
	return active, nil
}
