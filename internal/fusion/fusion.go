// Package fusion is the single admission point: it combines the crypto
// verdict and the trust score into a Decision.
package fusion

import (
	"fmt"

	"github.com/ppiankov/aegis/internal/model"
)

// AcceptReason is the reason given to every accepted command.
const AcceptReason = "command validated and authorized"

// Decide applies the admission rule: accepted only when the verification is
// valid and trust is non-negative. The reason is picked by priority: crypto
// failure, then the dominant anomalous feature, then generic acceptance.
func Decide(vr model.VerificationResult, ts model.TrustScore) model.Decision {
	d := model.Decision{Verification: vr, Trust: ts, Scored: true}

	if !vr.Valid || vr.Failure != model.FailureNone {
		d.Verdict = model.Rejected
		d.Code, d.Reason = cryptoReason(vr)
		return d
	}
	if ts.Value < 0 {
		d.Verdict = model.Rejected
		d.Code, d.Reason = trustReason(ts)
		return d
	}

	d.Verdict = model.Accepted
	d.Code = model.CodeAuthorized
	d.Reason = AcceptReason
	return d
}

// Timeout rejects an envelope whose validation budget ran out during stage.
// No trust score is attached.
func Timeout(vr model.VerificationResult, stage string) model.Decision {
	return model.Decision{
		Verdict:      model.Rejected,
		Code:         model.CodeValidationTimeout,
		Reason:       fmt.Sprintf("validation timeout during %s", stage),
		Verification: vr,
	}
}

// Unscored rejects an envelope whose scorer failed. Admission fails closed.
func Unscored(vr model.VerificationResult, err error) model.Decision {
	return model.Decision{
		Verdict:      model.Rejected,
		Code:         model.CodeScoringFailure,
		Reason:       fmt.Sprintf("trust scoring failed: %v", err),
		Verification: vr,
	}
}

func cryptoReason(vr model.VerificationResult) (model.Code, string) {
	var code model.Code
	var what string
	switch vr.Failure {
	case model.FailureReplay:
		code, what = model.CodeReplayedNonce, "replayed nonce"
	case model.FailureUnknown:
		code, what = model.CodeUnknownKey, "unknown key"
	default:
		code, what = model.CodeIntegrityFailure, "integrity failure"
	}
	if vr.Detail != "" {
		return code, what + ": " + vr.Detail
	}
	return code, what
}

func trustReason(ts model.TrustScore) (model.Code, string) {
	if ts.Cause == nil {
		return model.CodeBehavioralAnomaly, fmt.Sprintf("trust score %.2f below acceptance threshold", ts.Value)
	}

	f := *ts.Cause
	if f.Hard || ts.HardLimit {
		return model.CodePhysicalLimitExceeded, fmt.Sprintf("physical limit exceeded: %s", describe(f))
	}
	return model.CodeBehavioralAnomaly, fmt.Sprintf("behavioral anomaly: %s (trust %.2f)", describe(f), ts.Value)
}

func describe(f model.Feature) string {
	if f.Bound == 0 {
		return fmt.Sprintf("%s %.2f", f.Name, f.Value)
	}
	cmp := ">"
	if f.Floor {
		cmp = "<"
	}
	unit := f.Unit
	if unit != "" {
		unit = " " + unit
	}
	return fmt.Sprintf("%s %.2f%s %s %.2f%s", f.Name, f.Value, unit, cmp, f.Bound, unit)
}
