package trust

import (
	"context"
	"math"

	"github.com/ppiankov/aegis/internal/model"
)

// Weights tune RuleScorer.
type Weights struct {
	// Base is the score of a vector with no anomalies.
	Base float64 `yaml:"base"`
	// Anomaly is subtracted once per anomalous feature.
	Anomaly float64 `yaml:"anomaly"`
	// Excess scales the extra penalty for how far past its bound a feature is.
	Excess float64 `yaml:"excess"`
	// Smoothing blends in the mean of the trailing window, in [0, 1).
	Smoothing float64 `yaml:"smoothing"`
	// Window is how many prior scores are considered.
	Window int `yaml:"window"`
}

// DefaultWeights returns weights under which one soft anomaly lowers trust
// but two reject.
func DefaultWeights() Weights {
	return Weights{Base: 1, Anomaly: 0.6, Excess: 0.2, Smoothing: 0.3, Window: 10}
}

// RuleScorer is the deterministic rule-based scorer.
type RuleScorer struct {
	w Weights
}

// NewRuleScorer returns a scorer with w, filling invalid fields from
// DefaultWeights.
func NewRuleScorer(w Weights) *RuleScorer {
	d := DefaultWeights()
	if w.Base == 0 {
		w.Base = d.Base
	}
	if w.Anomaly <= 0 {
		w.Anomaly = d.Anomaly
	}
	if w.Excess < 0 {
		w.Excess = d.Excess
	}
	if w.Smoothing < 0 || w.Smoothing >= 1 {
		w.Smoothing = d.Smoothing
	}
	if w.Window <= 0 {
		w.Window = d.Window
	}
	return &RuleScorer{w: w}
}

// Weights returns the effective weights.
func (r *RuleScorer) Weights() Weights {
	return r.w
}

// Score implements Scorer.
func (r *RuleScorer) Score(ctx context.Context, vec model.FeatureVector, history []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s := r.w.Base
	for _, f := range vec.Features {
		if !f.Anomalous {
			continue
		}
		s -= r.w.Anomaly
		if e := f.Excess(); e > 1 {
			s -= r.w.Excess * math.Min(e-1, 1)
		}
	}

	if len(history) > r.w.Window {
		history = history[len(history)-r.w.Window:]
	}
	if len(history) > 0 && r.w.Smoothing > 0 {
		var sum float64
		for _, h := range history {
			sum += h
		}
		s = (1-r.w.Smoothing)*s + r.w.Smoothing*(sum/float64(len(history)))
	}
	return Clamp(s), nil
}
