package model

import (
	"fmt"
	"math"
)

// FailureReason explains why cryptographic verification failed.
type FailureReason string

const (
	FailureNone      FailureReason = "none"
	FailureIntegrity FailureReason = "integrity_failure"
	FailureReplay    FailureReason = "replayed_nonce"
	FailureUnknown   FailureReason = "unknown_key"
)

// VerificationResult is the output of the crypto verifier.
// Valid implies Failure == FailureNone.
type VerificationResult struct {
	Valid   bool          `json:"valid"`
	Failure FailureReason `json:"failure"`
	Detail  string        `json:"detail,omitempty"`
}

// Verified returns a passing result.
func Verified() VerificationResult {
	return VerificationResult{Valid: true, Failure: FailureNone}
}

// Failed returns a failing result; FailureNone is coerced to integrity
// failure so an invalid result never reads as clean.
func Failed(reason FailureReason, detail string) VerificationResult {
	if reason == FailureNone || reason == "" {
		reason = FailureIntegrity
	}
	return VerificationResult{Valid: false, Failure: reason, Detail: detail}
}

// Feature is one derived behavioural signal.
type Feature struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Bound     float64 `json:"bound,omitempty"`
	Anomalous bool    `json:"anomalous"`
	// Floor means Bound is a minimum rather than a maximum.
	Floor bool `json:"floor,omitempty"`
	// Hard marks a breach of a physical limit. Hard implies Anomalous.
	Hard bool `json:"hard,omitempty"`
}

// Excess is how far the value sits past its bound, as a ratio (1.0 = at bound).
func (f Feature) Excess() float64 {
	if f.Bound <= 0 {
		return 0
	}
	if f.Floor {
		return f.Bound / math.Max(f.Value, 1e-3)
	}
	return f.Value / f.Bound
}

// FeatureVector is the ordered set of features derived for one envelope.
type FeatureVector struct {
	EnvelopeID string    `json:"envelope_id"`
	Features   []Feature `json:"features"`
}

// Get returns the named feature.
func (v FeatureVector) Get(name string) (Feature, bool) {
	for _, f := range v.Features {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// HardBreach reports whether any physical limit was exceeded.
func (v FeatureVector) HardBreach() bool {
	for _, f := range v.Features {
		if f.Hard {
			return true
		}
	}
	return false
}

// Dominant returns the most significant anomalous feature: hard breaches
// outrank soft ones, then the largest excess wins, then vector order.
func (v FeatureVector) Dominant() (Feature, bool) {
	var best Feature
	found := false
	for _, f := range v.Features {
		if !f.Anomalous {
			continue
		}
		if !found ||
			(f.Hard && !best.Hard) ||
			(f.Hard == best.Hard && f.Excess() > best.Excess()) {
			best = f
			found = true
		}
	}
	return best, found
}

// TrustScore is the behavioural plausibility signal in [-1, 1].
type TrustScore struct {
	Value    float64 `json:"value"`
	Dominant string  `json:"dominant,omitempty"`
	// Cause is the dominant anomalous feature, if any.
	Cause     *Feature `json:"cause,omitempty"`
	HardLimit bool     `json:"hard_limit,omitempty"`
}

func (t TrustScore) String() string {
	return fmt.Sprintf("%.2f", t.Value)
}
