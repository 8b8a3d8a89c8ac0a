package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id := uuid.NewString()
	a := Assessment{
		ID:                id,
		UserID:            "user-1",
		Address:           "12 River Lane, York",
		Decision:          "accept",
		OverallRiskScore:  21.3,
		PremiumMultiplier: 1.43,
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, m.SaveAssessment(ctx, a))
	require.NoError(t, m.SaveRationale(ctx, Rationale{
		AssessmentID: id,
		Narrative:    "Low overall risk.",
	}))

	gotA, err := m.Assessment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, a, gotA)

	gotR, err := m.Rationale(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, gotR.AssessmentID)
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Assessment(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Rationale(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_HistoryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, user := range []string{"alice", "bob", "alice", "alice"} {
		require.NoError(t, m.SaveAssessment(ctx, Assessment{
			ID:        uuid.NewString(),
			UserID:    user,
			Address:   "addr",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := m.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].CreatedAt.After(got[i].CreatedAt))
	}

	empty, err := m.History(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
