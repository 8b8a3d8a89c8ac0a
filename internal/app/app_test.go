package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurea-hq/underwriting/internal/config"
	"github.com/aurea-hq/underwriting/internal/feeds"
	"github.com/aurea-hq/underwriting/internal/pipeline"
	"github.com/aurea-hq/underwriting/internal/policystore"
	"github.com/aurea-hq/underwriting/internal/stage"
	"github.com/aurea-hq/underwriting/internal/store"
)

type fakeGeocoder struct{ coords feeds.Coordinates }

func (f *fakeGeocoder) Locate(context.Context, string, string) (feeds.Coordinates, error) {
	return f.coords, nil
}

type fakePlanning struct{}

func (f *fakePlanning) Search(context.Context, float64, float64) (feeds.PlanningSearch, error) {
	return feeds.PlanningSearch{Applications: []feeds.Application{{CouncilID: 42}}}, nil
}

func (f *fakePlanning) Stats(context.Context, int) (feeds.CouncilStats, error) {
	return feeds.CouncilStats{ActivityLevel: "low"}, nil
}

func (f *fakePlanning) ResolveCouncilID(context.Context, string, feeds.PlanningSearch) (int, error) {
	return 42, nil
}

type fakeFlood struct{}

func (f *fakeFlood) Zone(context.Context, float64, float64) (feeds.ZoneResult, error) {
	return feeds.ZoneResult{Zone: "2", EntityCount: 1, Responded: true}, nil
}

func (f *fakeFlood) Warnings(context.Context, float64, float64) ([]feeds.FloodWarning, error) {
	return nil, nil
}

type fakeEnergy struct{}

func (f *fakeEnergy) Certificates(context.Context, string) ([]feeds.Certificate, error) {
	return []feeds.Certificate{{AgeBand: "England and Wales: 1996-2002", PropertyType: "House"}}, nil
}

type fakeCrime struct{}

func (f *fakeCrime) Crimes(context.Context, float64, float64) ([]feeds.Crime, feeds.CrimePeriod, error) {
	return []feeds.Crime{{Category: "burglary"}}, feeds.CrimePeriod{From: "2025-09", To: "2026-08"}, nil
}

type fakeRetriever struct{}

func (f *fakeRetriever) Retrieve(context.Context, string) []policystore.Chunk {
	return []policystore.Chunk{{
		PolicyName: "Standard Home Policy v2",
		Section:    "Flood Zone 2 Elevated Premium",
		Content:    "Elevated premium applies.",
	}}
}

func testDeps() stage.Deps {
	return stage.Deps{
		Geocoder: &fakeGeocoder{coords: feeds.Coordinates{Lat: 53.96, Lon: -1.08}},
		Planning: &fakePlanning{},
		Flood:    &fakeFlood{},
		Energy:   &fakeEnergy{},
		Crime:    &fakeCrime{},
		Policies: &fakeRetriever{},
	}
}

func newTestApp(t *testing.T) (*App, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	a, err := New(io.Discard, config.Default(), "error", "text", WithDeps(testDeps()), WithStore(mem))
	require.NoError(t, err)
	return a, mem
}

func TestAssess_PersistsAssessmentAndRationale(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	resp, err := a.Assess(ctx, AssessRequest{
		Address:  "12 River Lane, York",
		Postcode: "YO1 7HH",
		UserID:   "user-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AssessmentID)
	assert.Equal(t, stage.DecisionAccept, resp.Result.Decision)

	saved, rationale, err := a.Assessment(ctx, resp.AssessmentID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", saved.UserID)
	assert.Equal(t, resp.Result.OverallScore, saved.OverallRiskScore)
	require.Len(t, rationale.RiskFactors, 4)
	assert.Equal(t, []string{"Standard Home Policy v2 - Flood Zone 2 Elevated Premium"}, rationale.PolicyCitations)

	history, err := a.History(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, resp.AssessmentID, history[0].ID)
}

func TestAssess_RejectsIncompleteRequests(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.Assess(context.Background(), AssessRequest{Postcode: "YO1 7HH"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = a.Assess(context.Background(), AssessRequest{Address: "12 River Lane"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAssessStream_EmitsLifecycleAndPersistsBeforeResult(t *testing.T) {
	a, mem := newTestApp(t)
	ctx := context.Background()

	events, errc := a.AssessStream(ctx, AssessRequest{
		Address:  "12 River Lane, York",
		Postcode: "YO1 7HH",
		UserID:   "user-1",
	})

	starts := map[string]bool{}
	ends := map[string]bool{}
	var resp AssessResponse
	var sawResult, sawDone bool
	for ev := range events {
		switch ev.Kind {
		case pipeline.EventStart:
			assert.False(t, ends[ev.Stage], "start after end for %s", ev.Stage)
			starts[ev.Stage] = true
		case pipeline.EventEnd:
			assert.True(t, starts[ev.Stage], "end without start for %s", ev.Stage)
			ends[ev.Stage] = true
		case pipeline.EventResult:
			var ok bool
			resp, ok = ev.Payload.(AssessResponse)
			require.True(t, ok)
			// the record must already be readable when the result arrives
			_, err := mem.Assessment(ctx, resp.AssessmentID)
			assert.NoError(t, err)
			sawResult = true
		case pipeline.EventDone:
			assert.True(t, sawResult, "done before result")
			sawDone = true
		}
	}
	require.NoError(t, <-errc)

	assert.True(t, sawDone)
	assert.Len(t, ends, 7)
	assert.NotEmpty(t, resp.AssessmentID)
}

func TestAssessStream_InvalidRequestFailsFast(t *testing.T) {
	a, _ := newTestApp(t)

	events, errc := a.AssessStream(context.Background(), AssessRequest{})

	_, open := <-events
	assert.False(t, open, "event channel should be closed")
	require.ErrorIs(t, <-errc, ErrInvalidRequest)
}

func TestHistory_RequiresUserID(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.History(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAssessment_UnknownID(t *testing.T) {
	a, _ := newTestApp(t)

	_, _, err := a.Assessment(context.Background(), "no-such-id")
	require.True(t, errors.Is(err, store.ErrNotFound))
}
