package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aegis/internal/model"
)

var (
	t0   = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	home = model.Position{Lat: 37.7749, Lon: -122.4194}
)

func vehicleAt(p model.Position) model.VehicleState {
	return model.VehicleState{Position: p, Home: home, CommandedMode: "GUIDED", FlightMode: "GUIDED"}
}

func gotoEnv(at time.Time, lat, lon, alt float64) model.CommandEnvelope {
	return model.CommandEnvelope{
		ID:         "e1",
		Kind:       model.KindGotoPosition,
		Params:     model.Params{"lat": lat, "lon": lon, "alt": alt},
		ReceivedAt: at,
	}
}

func feature(t *testing.T, v model.FeatureVector, name string) model.Feature {
	t.Helper()
	f, ok := v.Get(name)
	require.True(t, ok, "missing feature %s", name)
	return f
}

func TestHighAltitudeGotoBreachesHardLimits(t *testing.T) {
	h := NewHistory(t0, 0, 0)
	x := NewExtractor(DefaultBounds())

	env := gotoEnv(t0, home.Lat, home.Lon, 500)
	vec := x.Extract(env, h.Capture(t0, vehicleAt(home)))

	assert.True(t, vec.HardBreach())
	alt := feature(t, vec, TargetAltitude)
	assert.True(t, alt.Hard)
	speed := feature(t, vec, ImpliedVelocity)
	assert.True(t, speed.Hard, "500m climb within the minimum transit must exceed max speed")
	assert.InDelta(t, 500, speed.Value, 1e-6)

	dom, ok := vec.Dominant()
	require.True(t, ok)
	assert.Equal(t, ImpliedVelocity, dom.Name)
}

func TestNominalGotoAfterQuietPeriod(t *testing.T) {
	h := NewHistory(t0, 0, 0)
	x := NewExtractor(DefaultBounds())

	at := t0.Add(time.Minute)
	// Roughly 111m north.
	vec := x.Extract(gotoEnv(at, home.Lat+0.001, home.Lon, 20), h.Capture(at, vehicleAt(home)))

	assert.False(t, vec.HardBreach())
	_, anomalous := vec.Dominant()
	assert.False(t, anomalous)
	assert.InDelta(t, 113, feature(t, vec, PositionDelta).Value, 2)
}

func TestFeatureOrderIsStable(t *testing.T) {
	x := NewExtractor(Bounds{})
	vec := x.Extract(model.CommandEnvelope{Kind: model.KindArm, ReceivedAt: t0}, NewHistory(t0, 0, 0).Capture(t0, vehicleAt(home)))

	var names []string
	for _, f := range vec.Features {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{PositionDelta, AltitudeDelta, TargetAltitude, ImpliedVelocity, SinceLastCommand, ModeTransitions}, names)
}

func TestRapidCommandsAreSoftAnomaly(t *testing.T) {
	h := NewHistory(t0, 0, 0)
	x := NewExtractor(DefaultBounds())

	h.Seen(t0)
	at := t0.Add(50 * time.Millisecond)
	vec := x.Extract(model.CommandEnvelope{Kind: model.KindArm, ReceivedAt: at}, h.Capture(at, vehicleAt(home)))

	f := feature(t, vec, SinceLastCommand)
	assert.True(t, f.Anomalous)
	assert.False(t, f.Hard)
	assert.InDelta(t, 0.05, f.Value, 1e-9)
}

func TestModeFlappingIsSoftAnomaly(t *testing.T) {
	h := NewHistory(t0, 0, time.Minute)
	x := NewExtractor(DefaultBounds())

	for i := 0; i < 5; i++ {
		h.Accept(t0.Add(time.Duration(i)*time.Second), true, model.FeatureVector{})
	}
	at := t0.Add(10 * time.Second)
	env := model.CommandEnvelope{Kind: model.KindSetMode, Params: model.Params{"mode": "LOITER"}, ReceivedAt: at}
	vec := x.Extract(env, h.Capture(at, vehicleAt(home)))

	f := feature(t, vec, ModeTransitions)
	assert.Equal(t, 6.0, f.Value)
	assert.True(t, f.Anomalous)
}

func TestModeWindowTrims(t *testing.T) {
	h := NewHistory(t0, 0, time.Minute)
	x := NewExtractor(DefaultBounds())
	for i := 0; i < 5; i++ {
		h.Accept(t0, true, model.FeatureVector{})
	}

	at := t0.Add(2 * time.Minute)
	env := model.CommandEnvelope{Kind: model.KindSetMode, Params: model.Params{"mode": "GUIDED"}, ReceivedAt: at}
	vec := x.Extract(env, h.Capture(at, vehicleAt(home)))
	assert.Equal(t, 0.0, feature(t, vec, ModeTransitions).Value)
}

func TestCaptureExcludesLaterHistory(t *testing.T) {
	h := NewHistory(t0, 0, 0)
	h.Seen(t0.Add(time.Hour))
	h.Accept(t0.Add(time.Hour), true, model.FeatureVector{})

	snap := h.Capture(t0.Add(time.Second), vehicleAt(home))
	assert.True(t, snap.LastCommand.IsZero())
	assert.True(t, snap.LastAccepted.IsZero())
	assert.Empty(t, snap.ModeChanges)
}

func TestExpectationWindowFlagsOutlier(t *testing.T) {
	h := NewHistory(t0, 0, 0)
	x := NewExtractor(DefaultBounds())
	for i, d := range []float64{10, 12, 11, 9, 10, 11} {
		h.Accept(t0.Add(time.Duration(i)*time.Second), false, model.FeatureVector{Features: []model.Feature{
			{Name: PositionDelta, Value: d},
		}})
	}

	at := t0.Add(10 * time.Minute)
	// Roughly 1.1km away: far outside the learned ~10m steps but slow enough.
	vec := x.Extract(gotoEnv(at, home.Lat+0.01, home.Lon, 0), h.Capture(at, vehicleAt(home)))
	f := feature(t, vec, PositionDelta)
	assert.True(t, f.Anomalous)
	assert.False(t, f.Hard)
	assert.Greater(t, f.Excess(), 1.0)
}

func TestSampleWindowIsBounded(t *testing.T) {
	h := NewHistory(t0, 3, 0)
	for i := 0; i < 10; i++ {
		h.Accept(t0, false, model.FeatureVector{Features: []model.Feature{{Name: ImpliedVelocity, Value: float64(i)}}})
	}
	snap := h.Capture(t0, vehicleAt(home))
	assert.Equal(t, []float64{7, 8, 9}, snap.Samples[ImpliedVelocity])
}

func TestSetVelocityUsesCommandedSpeed(t *testing.T) {
	x := NewExtractor(DefaultBounds())
	env := model.CommandEnvelope{Kind: model.KindSetVelocity, Params: model.Params{"vx": 30.0, "vy": 0.0}, ReceivedAt: t0}
	vec := x.Extract(env, NewHistory(t0, 0, 0).Capture(t0, vehicleAt(home)))
	assert.True(t, feature(t, vec, ImpliedVelocity).Hard)
}
