package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
)

// userAgent identifies the service to the geocoding provider, which requires
// a descriptive agent string.
const userAgent = "Aurea-Underwriting/1.0"

// ErrNoMatch is returned when no query variant resolves to coordinates.
var ErrNoMatch = errors.New("address could not be geocoded")

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Geocoder resolves free-text addresses to coordinates via a
// Nominatim-compatible endpoint. Requests are rate limited to stay inside the
// provider's one-request-per-second policy.
type Geocoder struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewGeocoder creates a Geocoder against the given base URL.
func NewGeocoder(baseURL string, client *http.Client) *Geocoder {
	return &Geocoder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Locate tries the full address first and progressively coarser queries
// before giving up with ErrNoMatch.
func (g *Geocoder) Locate(ctx context.Context, address, postcode string) (Coordinates, error) {
	logger := ctxlog.FromContext(ctx)
	queries := []string{address, address + ", UK", postcode, postcode + ", UK"}
	var lastErr error
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || q == ", UK" {
			continue
		}
		coords, err := g.lookup(ctx, q)
		if err == nil {
			logger.Debug("Geocoded address.", "query", q, "lat", coords.Lat, "lon", coords.Lon)
			return coords, nil
		}
		if !errors.Is(err, ErrNoMatch) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return Coordinates{}, lastErr
	}
	return Coordinates{}, ErrNoMatch
}

func (g *Geocoder) lookup(ctx context.Context, query string) (Coordinates, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Coordinates{}, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("countrycodes", "gb")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Coordinates{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("geocoding returned status %d", resp.StatusCode)
	}

	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return Coordinates{}, fmt.Errorf("decoding geocoding response: %w", err)
	}
	if len(hits) == 0 {
		return Coordinates{}, ErrNoMatch
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parsing latitude %q: %w", hits[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parsing longitude %q: %w", hits[0].Lon, err)
	}
	return Coordinates{Lat: lat, Lon: lon}, nil
}
