package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
)

// monthsOfHistory is how far back the crime picture reaches.
const monthsOfHistory = 12

// probeLimit bounds the search for the most recent published month; the feed
// publishes with a lag of two to three months.
const probeLimit = 4

// Crime is one recorded street-level incident.
type Crime struct {
	Category string `json:"category"`
}

// CrimePeriod is the inclusive month range the incidents cover.
type CrimePeriod struct {
	From string
	To   string
}

// CrimeClient queries the street-level crime feed.
type CrimeClient struct {
	baseURL string
	client  *http.Client
	// now is swappable for tests.
	now func() time.Time
}

// NewCrimeClient creates a CrimeClient.
func NewCrimeClient(baseURL string, client *http.Client) *CrimeClient {
	return &CrimeClient{baseURL: strings.TrimSuffix(baseURL, "/"), client: client, now: time.Now}
}

// Crimes returns twelve months of incidents near the point. The most recent
// published month is probed sequentially; the twelve-month backfill then runs
// concurrently, one request per month. Months that fail individually are
// simply absent from the result.
func (c *CrimeClient) Crimes(ctx context.Context, lat, lon float64) ([]Crime, CrimePeriod, error) {
	logger := ctxlog.FromContext(ctx)

	latest, ok := c.probeLatestMonth(ctx, lat, lon)
	if !ok {
		return nil, CrimePeriod{}, fmt.Errorf("no published crime data found within %d months", probeLimit)
	}

	months := make([]time.Time, monthsOfHistory)
	for i := range months {
		months[i] = latest.AddDate(0, -i, 0)
	}
	logger.Debug("Fetching crime months.", "from", monthKey(months[len(months)-1]), "to", monthKey(months[0]))

	// Each goroutine owns its own slot, so no locking is needed.
	results := make([][]Crime, monthsOfHistory)
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range months {
		g.Go(func() error {
			crimes, err := c.fetchMonth(gctx, lat, lon, m)
			if err != nil {
				ctxlog.FromContext(gctx).Warn("Crime month fetch failed.", "month", monthKey(m), "error", err)
				return nil
			}
			results[i] = crimes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, CrimePeriod{}, err
	}

	var all []Crime
	for _, crimes := range results {
		all = append(all, crimes...)
	}
	period := CrimePeriod{From: monthKey(months[len(months)-1]), To: monthKey(months[0])}
	return all, period, nil
}

// probeLatestMonth walks backwards from the current month until a month with
// published data is found.
func (c *CrimeClient) probeLatestMonth(ctx context.Context, lat, lon float64) (time.Time, bool) {
	month := c.now()
	for i := 0; i < probeLimit; i++ {
		crimes, err := c.fetchMonth(ctx, lat, lon, month)
		if err == nil && len(crimes) > 0 {
			return month, true
		}
		month = month.AddDate(0, -1, 0)
	}
	return time.Time{}, false
}

func (c *CrimeClient) fetchMonth(ctx context.Context, lat, lon float64, month time.Time) ([]Crime, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("date", monthKey(month))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/crimes-street/all-crime?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crime request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crime feed returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading crime response: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var crimes []Crime
	if err := json.Unmarshal(raw, &crimes); err != nil {
		return nil, fmt.Errorf("decoding crime response: %w", err)
	}
	return crimes, nil
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}
