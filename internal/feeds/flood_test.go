package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zoneServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/entity.json", r.URL.Path)
		assert.Equal(t, "flood-risk-zone", r.URL.Query().Get("dataset"))
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFloodClient_Zone(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		wantZone string
		entities int
	}{
		{
			name:     "risk level field",
			body:     `{"entities":[{"flood-risk-level":"flood-risk-zone-2"}]}`,
			wantZone: "2",
			entities: 1,
		},
		{
			name:     "reference suffix",
			body:     `{"entities":[{"reference":"232138/3"}]}`,
			wantZone: "3",
			entities: 1,
		},
		{
			name:     "fz shorthand in name",
			body:     `{"entities":[{"name":"FZ2 polygon"}]}`,
			wantZone: "2",
			entities: 1,
		},
		{
			name:     "worst zone wins",
			body:     `{"entities":[{"name":"Flood Zone 2"},{"name":"Flood Zone 3"}]}`,
			wantZone: "3",
			entities: 2,
		},
		{
			name:     "results envelope",
			body:     `{"results":[{"name":"zone 2"}]}`,
			wantZone: "2",
			entities: 1,
		},
		{
			name:     "no entities means implicit zone 1 upstream",
			body:     `{"entities":[]}`,
			wantZone: "",
			entities: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := zoneServer(t, tc.body)
			f := NewFloodClient(srv.URL, "http://unused", srv.Client())

			res, err := f.Zone(context.Background(), 53.96, -1.08)
			require.NoError(t, err)
			assert.True(t, res.Responded)
			assert.Equal(t, tc.wantZone, res.Zone)
			assert.Equal(t, tc.entities, res.EntityCount)
		})
	}
}

func TestFloodClient_ZoneSourceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewFloodClient(srv.URL, "http://unused", srv.Client())
	res, err := f.Zone(context.Background(), 53.96, -1.08)
	require.Error(t, err)
	assert.False(t, res.Responded)
}

func TestFloodClient_WarningsFiltersExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/id/floods", r.URL.Path)
		assert.Equal(t, fmt.Sprint(warningRadiusKM), r.URL.Query().Get("dist"))
		w.Write([]byte(`{"items":[
			{"severityLevel":2,"eaAreaName":"River Ouse"},
			{"severityLevel":4,"eaAreaName":"Expired area"},
			{"severityLevel":3,"description":"Low lying land"}
		]}`))
	}))
	defer srv.Close()

	f := NewFloodClient("http://unused", srv.URL, srv.Client())
	warnings, err := f.Warnings(context.Background(), 53.96, -1.08)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, FloodWarning{Severity: 2, Area: "River Ouse"}, warnings[0])
	assert.Equal(t, FloodWarning{Severity: 3, Area: "Low lying land"}, warnings[1])
}
