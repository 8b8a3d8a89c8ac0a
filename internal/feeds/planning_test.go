package feeds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanningClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body struct {
			Input struct {
				SRID        int       `json:"srid"`
				Coordinates []float64 `json:"coordinates"`
				Radius      int       `json:"radius"`
			} `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 4326, body.Input.SRID)
		// GeoJSON order, longitude first
		assert.Equal(t, []float64{-1.08, 53.96}, body.Input.Coordinates)
		assert.Equal(t, localSearchRadius, body.Input.Radius)

		w.Write([]byte(`{"applications":[{"council_id":42,"num_new_houses":12}]}`))
	}))
	defer srv.Close()

	p := NewPlanningClient(srv.URL, "secret", "http://unused", srv.Client())
	search, err := p.Search(context.Background(), 53.96, -1.08)
	require.NoError(t, err)
	require.Len(t, search.Applications, 1)
	assert.Equal(t, 42, search.Applications[0].CouncilID)
}

func TestPlanningClient_Stats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stats", r.URL.Path)
		w.Write([]byte(`{
			"council_development_activity_level": "high",
			"number_of_new_homes_approved": 640,
			"approval_rate": 71.5,
			"refusal_rate": 22.0
		}`))
	}))
	defer srv.Close()

	p := NewPlanningClient(srv.URL, "", "http://unused", srv.Client())
	stats, err := p.Stats(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "high", stats.ActivityLevel)
	assert.Equal(t, 640, stats.NewHomesApproved)
	assert.InDelta(t, 22.0, stats.RefusalRate, 1e-9)
}

func TestPlanningClient_ResolveCouncilID_FromSearch(t *testing.T) {
	p := NewPlanningClient("http://unused", "", "http://unused", http.DefaultClient)

	id, err := p.ResolveCouncilID(context.Background(), "YO1 7HH", PlanningSearch{
		Applications: []Application{{CouncilID: 0}, {CouncilID: 42}},
	})
	require.NoError(t, err)
	assert.Equal(t, 42, id)
}

func TestPlanningClient_ResolveCouncilID_ViaPostcode(t *testing.T) {
	planning := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input struct {
				Radius int `json:"radius"`
			} `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, wideSearchRadius, body.Input.Radius)
		w.Write([]byte(`{"applications":[{"council_id":7}]}`))
	}))
	defer planning.Close()

	postcodes := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// spaces are stripped before lookup
		assert.Equal(t, "/postcodes/YO17HH", r.URL.Path)
		w.Write([]byte(`{"result":{"latitude":53.96,"longitude":-1.08}}`))
	}))
	defer postcodes.Close()

	p := NewPlanningClient(planning.URL, "", postcodes.URL, planning.Client())
	id, err := p.ResolveCouncilID(context.Background(), "YO1 7HH", PlanningSearch{})
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestPlanningClient_ResolveCouncilID_Unresolvable(t *testing.T) {
	postcodes := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer postcodes.Close()

	p := NewPlanningClient("http://unused", "", postcodes.URL, postcodes.Client())
	_, err := p.ResolveCouncilID(context.Background(), "ZZ9 9ZZ", PlanningSearch{})
	require.ErrorIs(t, err, ErrNoCouncil)
}
