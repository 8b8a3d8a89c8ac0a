package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
)

// Certificate is one energy-certificate record for a property.
type Certificate struct {
	AgeBand      string `json:"construction-age-band"`
	PropertyType string `json:"property-type"`
}

// EnergyClient queries the energy-certificate open data API for construction
// age and property type.
type EnergyClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewEnergyClient creates an EnergyClient. apiKey is the pre-encoded basic
// auth credential the API hands out.
func NewEnergyClient(baseURL, apiKey string, client *http.Client) *EnergyClient {
	return &EnergyClient{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, client: client}
}

// Certificates returns up to five certificates for the postcode. The API
// wants postcodes without spaces; an empty body triggers one retry with the
// outward code only (e.g. "M145TL" → "M14").
func (e *EnergyClient) Certificates(ctx context.Context, postcode string) ([]Certificate, error) {
	clean := strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
	rows, err := e.search(ctx, clean)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 && len(clean) > 3 {
		outward := clean[:len(clean)-3]
		ctxlog.FromContext(ctx).Debug("No certificates for full postcode; retrying outward code.", "outward", outward)
		return e.search(ctx, outward)
	}
	return rows, nil
}

func (e *EnergyClient) search(ctx context.Context, postcode string) ([]Certificate, error) {
	params := url.Values{}
	params.Set("postcode", postcode)
	params.Set("size", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/v1/domestic/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Basic "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("certificate request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("certificate API returned status %d", resp.StatusCode)
	}

	// The API answers an unknown postcode with an entirely empty body rather
	// than an empty result set.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading certificate response: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var payload struct {
		Rows []Certificate `json:"rows"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding certificate response: %w", err)
	}
	return payload.Rows, nil
}
