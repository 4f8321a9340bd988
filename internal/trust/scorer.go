// Package trust turns feature vectors into a bounded trust score.
package trust

import (
	"context"
	"math"

	"github.com/ppiankov/aegis/internal/model"
)

// Scorer produces a raw trust value from a feature vector and the trailing
// window of prior scores. Implementations must be deterministic for
// identical inputs.
type Scorer interface {
	Score(ctx context.Context, vec model.FeatureVector, history []float64) (float64, error)
}

// HardCeiling is the highest score a vector with a hard breach can receive.
const HardCeiling = -0.5

// Clamp bounds v to [-1, 1]. NaN reads as fully untrusted.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return -1
	}
	return math.Max(-1, math.Min(1, v))
}

// EnforceHardLimits applies the physical-limit override to a scorer's raw
// output. No scorer can lift a vector with a hard breach above HardCeiling;
// the further past the limit, the closer to -1.
func EnforceHardLimits(vec model.FeatureVector, raw float64) model.TrustScore {
	ts := model.TrustScore{Value: Clamp(raw)}
	if f, ok := vec.Dominant(); ok {
		ts.Dominant = f.Name
		ts.Cause = &f
	}
	if !vec.HardBreach() {
		return ts
	}

	worst := 1.0
	for _, f := range vec.Features {
		if f.Hard && f.Excess() > worst {
			worst = f.Excess()
		}
	}
	ceiling := HardCeiling - 0.5*math.Min(1, worst-1)
	ts.Value = math.Min(ts.Value, ceiling)
	ts.HardLimit = true
	return ts
}
