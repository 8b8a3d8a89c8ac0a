package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields() Fields {
	return Fields{
		"score":    Overwrite,
		"label":    Overwrite,
		"warnings": Accumulate,
	}
}

func TestStateMerge_Overwrite(t *testing.T) {
	t.Parallel()

	s0 := NewState(testFields())
	s1, err := s0.Merge(Update{"score": 10.0})
	require.NoError(t, err)
	s2, err := s1.Merge(Update{"score": 42.0})
	require.NoError(t, err)

	got, ok := s2.Float("score")
	require.True(t, ok)
	assert.Equal(t, 42.0, got)
	assert.Equal(t, 2, s2.Version())
}

func TestStateMerge_AccumulatePreservesOrderAndNeverTruncates(t *testing.T) {
	t.Parallel()

	s := NewState(testFields())
	var err error
	s, err = s.Merge(Update{"warnings": []string{"a"}})
	require.NoError(t, err)
	s, err = s.Merge(Update{"warnings": []string{"b", "c"}})
	require.NoError(t, err)
	s, err = s.Merge(Update{"warnings": []string{}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, s.Strings("warnings"))
}

func TestStateMerge_DoesNotMutatePriorSnapshot(t *testing.T) {
	t.Parallel()

	s1, err := NewState(testFields()).Merge(Update{"label": "low", "warnings": []string{"w1"}})
	require.NoError(t, err)

	s2, err := s1.Merge(Update{"label": "high", "warnings": []string{"w2"}})
	require.NoError(t, err)

	// The earlier snapshot must be untouched by the later merge.
	assert.Equal(t, "low", s1.String("label"))
	if diff := cmp.Diff([]string{"w1"}, s1.Strings("warnings")); diff != "" {
		t.Errorf("prior snapshot mutated (-want +got):\n%s", diff)
	}
	assert.Equal(t, "high", s2.String("label"))
	assert.Equal(t, []string{"w1", "w2"}, s2.Strings("warnings"))
}

func TestStateMerge_UndeclaredFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := NewState(testFields()).Merge(Update{"bogus": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestStateMerge_AccumulateRequiresStringSlice(t *testing.T) {
	t.Parallel()

	_, err := NewState(testFields()).Merge(Update{"warnings": 7})
	assert.ErrorContains(t, err, "requires []string")
}

func TestStateAccessors_ZeroValues(t *testing.T) {
	t.Parallel()

	s := NewState(testFields())
	assert.Equal(t, "", s.String("label"))
	assert.Nil(t, s.Strings("warnings"))
	_, ok := s.Float("score")
	assert.False(t, ok)
	assert.Equal(t, 25.0, s.FloatOr("score", 25.0))
}
