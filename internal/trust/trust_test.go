package trust

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aegis/internal/model"
)

func soft(name string, value, bound float64) model.Feature {
	return model.Feature{Name: name, Value: value, Bound: bound, Anomalous: true}
}

func hard(name string, value, bound float64) model.Feature {
	f := soft(name, value, bound)
	f.Hard = true
	return f
}

func vec(fs ...model.Feature) model.FeatureVector {
	return model.FeatureVector{EnvelopeID: "e", Features: fs}
}

func TestRuleScorerCleanVectorIsFullyTrusted(t *testing.T) {
	r := NewRuleScorer(DefaultWeights())
	s, err := r.Score(context.Background(), vec(model.Feature{Name: "x", Value: 3}), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s)
}

func TestRuleScorerOneSoftAcceptsTwoReject(t *testing.T) {
	r := NewRuleScorer(DefaultWeights())
	ctx := context.Background()

	one, err := r.Score(ctx, vec(soft("a", 1, 1)), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, one, 1e-9)

	two, err := r.Score(ctx, vec(soft("a", 1, 1), soft("b", 1, 1)), nil)
	require.NoError(t, err)
	assert.Less(t, two, 0.0)
}

func TestRuleScorerSmoothingUsesBoundedWindow(t *testing.T) {
	r := NewRuleScorer(Weights{Smoothing: 0.5, Window: 2})
	ctx := context.Background()

	// Only the last two entries count: mean 0.
	s, err := r.Score(ctx, vec(), []float64{-1, -1, -1, 1, -1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s, 1e-9)
}

func TestRuleScorerHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRuleScorer(DefaultWeights()).Score(ctx, vec(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnforceHardLimitsOverridesScorer(t *testing.T) {
	v := vec(model.Feature{Name: "clean", Value: 1}, hard("implied_velocity_mps", 25, 20))
	ts := EnforceHardLimits(v, 1.0)
	assert.LessOrEqual(t, ts.Value, HardCeiling)
	assert.True(t, ts.HardLimit)
	assert.Equal(t, "implied_velocity_mps", ts.Dominant)

	far := EnforceHardLimits(vec(hard("implied_velocity_mps", 500, 20)), 1.0)
	assert.Equal(t, -1.0, far.Value)
}

func TestEnforceHardLimitsLeavesLowerScores(t *testing.T) {
	ts := EnforceHardLimits(vec(hard("target_altitude_m", 121, 120)), -0.9)
	assert.Equal(t, -0.9, ts.Value)
}

func TestEnforceHardLimitsWithoutBreachOnlyClamps(t *testing.T) {
	ts := EnforceHardLimits(vec(soft("a", 2, 1)), 7)
	assert.Equal(t, 1.0, ts.Value)
	assert.False(t, ts.HardLimit)
	assert.Equal(t, "a", ts.Dominant)
}

func TestHistoryRingKeepsNewest(t *testing.T) {
	h := NewHistory(3)
	assert.Empty(t, h.Window())
	for _, v := range []float64{1, 2, 3, 4, 5} {
		h.Push(v)
	}
	assert.Equal(t, []float64{3, 4, 5}, h.Window())
	h.Reset()
	assert.Empty(t, h.Window())
}

func TestStubSequenceRepeatsLast(t *testing.T) {
	s := Sequence(-0.3, -0.6)
	ctx := context.Background()
	var got []float64
	for i := 0; i < 3; i++ {
		v, err := s.Score(ctx, vec(), nil)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []float64{-0.3, -0.6, -0.6}, got)
}

func TestStubFailing(t *testing.T) {
	boom := errors.New("model offline")
	_, err := Failing(boom).Score(context.Background(), vec(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestStubBlockingWaitsForRelease(t *testing.T) {
	release := make(chan struct{})
	s := Blocking(0.5, release)
	done := make(chan float64, 1)
	go func() {
		v, _ := s.Score(context.Background(), vec(), nil)
		done <- v
	}()
	select {
	case <-done:
		t.Fatal("expected blocking stub to wait")
	default:
	}
	close(release)
	assert.Equal(t, 0.5, <-done)
}
