package features

import (
	"math"
	"time"

	"github.com/ppiankov/aegis/internal/model"
	"github.com/ppiankov/aegis/internal/vehicle"
)

// Extractor computes feature vectors against fixed bounds.
type Extractor struct {
	bounds Bounds
}

// NewExtractor returns an extractor; zero bounds fall back to defaults.
func NewExtractor(b Bounds) *Extractor {
	return &Extractor{bounds: b.withDefaults()}
}

// Bounds returns the effective limits.
func (x *Extractor) Bounds() Bounds {
	return x.bounds
}

// Extract derives the feature vector for env from snap alone.
func (x *Extractor) Extract(env model.CommandEnvelope, snap Snapshot) model.FeatureVector {
	b := x.bounds
	cur := snap.Vehicle
	next := vehicle.Plan(cur, env)
	moves := movesVehicle(env.Kind)

	dist := vehicle.Distance(cur.Position, next.Position)
	dAlt := math.Abs(next.Position.Alt - cur.Position.Alt)

	ref := snap.LastAccepted
	if ref.IsZero() {
		ref = snap.Start
	}
	elapsed := env.ReceivedAt.Sub(ref)
	if elapsed < b.MinTransit {
		elapsed = b.MinTransit
	}
	var velocity float64
	switch {
	case moves:
		velocity = dist / elapsed.Seconds()
	case env.Kind == model.KindSetVelocity:
		velocity = next.Speed
	}

	vec := model.FeatureVector{EnvelopeID: env.ID}

	vec.Features = append(vec.Features,
		x.expect(snap, model.Feature{Name: PositionDelta, Value: dist, Unit: "m"}),
		x.expect(snap, model.Feature{Name: AltitudeDelta, Value: dAlt, Unit: "m"}),
	)

	target := model.Feature{Name: TargetAltitude, Value: next.Position.Alt, Unit: "m", Bound: b.MaxAltitude}
	if moves && target.Value > b.MaxAltitude {
		target.Anomalous, target.Hard = true, true
	}
	vec.Features = append(vec.Features, target)

	speed := model.Feature{Name: ImpliedVelocity, Value: velocity, Unit: "m/s", Bound: b.MaxSpeed}
	if velocity > b.MaxSpeed {
		speed.Anomalous, speed.Hard = true, true
	} else {
		speed = x.expect(snap, speed)
	}
	vec.Features = append(vec.Features, speed)

	since := model.Feature{Name: SinceLastCommand, Unit: "s", Bound: b.MinCommandInterval.Seconds(), Floor: true}
	if snap.LastCommand.IsZero() {
		since.Value = env.ReceivedAt.Sub(snap.Start).Seconds()
	} else {
		gap := env.ReceivedAt.Sub(snap.LastCommand)
		since.Value = math.Max(gap.Seconds(), 0)
		since.Anomalous = gap < b.MinCommandInterval
	}
	vec.Features = append(vec.Features, since)

	count := countSince(snap.ModeChanges, env.ReceivedAt.Add(-b.ModeWindow))
	if next.CommandedMode != cur.CommandedMode {
		count++
	}
	modes := model.Feature{Name: ModeTransitions, Value: float64(count), Bound: float64(b.MaxModeTransitions)}
	modes.Anomalous = count > b.MaxModeTransitions
	vec.Features = append(vec.Features, modes)

	return vec
}

// expect flags f when it strays from its rolling expectation window.
// Features with a static bound keep it; otherwise Bound becomes the
// expectation ceiling so the anomaly can be ranked.
func (x *Extractor) expect(snap Snapshot, f model.Feature) model.Feature {
	samples := snap.Samples[f.Name]
	if len(samples) < x.bounds.MinSamples {
		return f
	}
	mean, std := meanStd(samples)
	ceiling := mean + x.bounds.ZScoreThreshold*std
	if std == 0 {
		// A perfectly steady baseline only flags clear departures.
		ceiling = mean*2 + 1
	}
	if f.Value > ceiling {
		f.Anomalous = true
		if f.Bound == 0 {
			f.Bound = ceiling
		}
	}
	return f
}

func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, v := range xs {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

func countSince(ts []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range ts {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}

func movesVehicle(k model.CommandKind) bool {
	switch k {
	case model.KindTakeoff, model.KindGotoPosition:
		return true
	}
	return false
}
