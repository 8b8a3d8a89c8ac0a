package feeds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
}

func TestCrimeClient_FetchesTwelveMonths(t *testing.T) {
	var mu sync.Mutex
	months := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crimes-street/all-crime", r.URL.Path)
		month := r.URL.Query().Get("date")
		mu.Lock()
		months[month]++
		mu.Unlock()
		if month == "2026-08" || month == "2026-07" {
			// publication lag: the two most recent months are empty
			w.Write([]byte(`[]`))
			return
		}
		json.NewEncoder(w).Encode([]Crime{{Category: "burglary"}, {Category: "other-theft"}})
	}))
	defer srv.Close()

	c := NewCrimeClient(srv.URL, srv.Client())
	c.now = fixedNow

	crimes, period, err := c.Crimes(context.Background(), 53.96, -1.08)
	require.NoError(t, err)
	assert.Len(t, crimes, 24)
	assert.Equal(t, "2026-06", period.To)
	assert.Equal(t, "2025-07", period.From)
	// every month of the window gets fetched once past the probe
	assert.Equal(t, 1, months["2025-07"])
}

func TestCrimeClient_NoPublishedData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewCrimeClient(srv.URL, srv.Client())
	c.now = fixedNow

	_, _, err := c.Crimes(context.Background(), 53.96, -1.08)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no published crime data")
}

func TestCrimeClient_ToleratesFailingMonths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		month := r.URL.Query().Get("date")
		if month == "2026-01" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]Crime{{Category: "vehicle-crime"}})
	}))
	defer srv.Close()

	c := NewCrimeClient(srv.URL, srv.Client())
	c.now = fixedNow

	crimes, _, err := c.Crimes(context.Background(), 53.96, -1.08)
	require.NoError(t, err)
	// eleven of twelve months contribute
	assert.Len(t, crimes, 11)
}
