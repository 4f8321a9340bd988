package trust

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ppiankov/aegis/internal/model"
)

func genFeature() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 1000),
		gen.Float64Range(0.1, 200),
		gen.Bool(),
		gen.Bool(),
	).Map(func(vs []interface{}) model.Feature {
		f := model.Feature{Name: "f", Value: vs[0].(float64), Bound: vs[1].(float64)}
		f.Anomalous = vs[2].(bool)
		f.Hard = f.Anomalous && vs[3].(bool)
		return f
	})
}

// TestHardBreachCapsAnyScore: whatever the scorer says and whatever the other
// features look like, a hard breach ends at or below the ceiling.
func TestHardBreachCapsAnyScore(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("hard breach forces score <= -0.5", prop.ForAll(
		func(others []model.Feature, speed, raw float64) bool {
			breach := model.Feature{Name: "implied_velocity_mps", Value: speed, Bound: 20, Anomalous: true, Hard: true}
			v := model.FeatureVector{Features: append(others, breach)}
			ts := EnforceHardLimits(v, raw)
			return ts.Value <= HardCeiling && ts.Value >= -1 && ts.HardLimit
		},
		gen.SliceOf(genFeature()),
		gen.Float64Range(20.0001, 5000),
		gen.Float64Range(-10, 10),
	))

	properties.TestingRun(t)
}

func TestRuleScorerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	r := NewRuleScorer(DefaultWeights())
	ctx := context.Background()

	properties.Property("output stays within [-1, 1]", prop.ForAll(
		func(fs []model.Feature, history []float64) bool {
			s, err := r.Score(ctx, model.FeatureVector{Features: fs}, history)
			return err == nil && s >= -1 && s <= 1
		},
		gen.SliceOf(genFeature()),
		gen.SliceOf(gen.Float64Range(-1, 1)),
	))

	properties.Property("identical inputs give identical scores", prop.ForAll(
		func(fs []model.Feature, history []float64) bool {
			v := model.FeatureVector{Features: fs}
			a, _ := r.Score(ctx, v, history)
			b, _ := r.Score(ctx, v, history)
			return a == b
		},
		gen.SliceOf(genFeature()),
		gen.SliceOf(gen.Float64Range(-1, 1)),
	))

	properties.Property("history beyond the window has no effect", prop.ForAll(
		func(old, recent []float64) bool {
			w := r.Weights().Window
			if len(recent) < w {
				return true
			}
			a, _ := r.Score(ctx, model.FeatureVector{}, recent)
			b, _ := r.Score(ctx, model.FeatureVector{}, append(append([]float64(nil), old...), recent...))
			return a == b
		},
		gen.SliceOf(gen.Float64Range(-1, 1)),
		gen.SliceOfN(12, gen.Float64Range(-1, 1)),
	))

	properties.TestingRun(t)
}
