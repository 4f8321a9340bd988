package model

import (
	"fmt"
	"time"
)

// Verdict is the admission outcome for one envelope.
type Verdict string

const (
	Accepted Verdict = "ACCEPTED"
	Rejected Verdict = "REJECTED"
)

// Code classifies why a decision was reached.
type Code string

const (
	CodeAuthorized            Code = "Authorized"
	CodeIntegrityFailure      Code = "IntegrityFailure"
	CodeReplayedNonce         Code = "ReplayedNonce"
	CodeUnknownKey            Code = "UnknownKey"
	CodePhysicalLimitExceeded Code = "PhysicalLimitExceeded"
	CodeBehavioralAnomaly     Code = "BehavioralAnomaly"
	CodeValidationTimeout     Code = "ValidationTimeout"
	CodeScoringFailure        Code = "ScoringFailure"
)

// Decision is the fused admission verdict. Only the fusion stage builds one.
type Decision struct {
	EnvelopeID   string             `json:"envelope_id"`
	Verdict      Verdict            `json:"verdict"`
	Code         Code               `json:"code"`
	Reason       string             `json:"reason"`
	Verification VerificationResult `json:"verification"`
	Trust        TrustScore         `json:"trust"`
	// Scored is false when no trust score was produced (timeout).
	Scored    bool      `json:"scored"`
	DecidedAt time.Time `json:"decided_at"`
}

// Accepted reports whether the command may reach the vehicle.
func (d Decision) Accepted() bool {
	return d.Verdict == Accepted
}

// SafeMode is the vehicle-side fallback state.
type SafeMode int

const (
	SafeNominal SafeMode = iota
	SafeHold
	SafeReturnToLaunch
)

func (m SafeMode) String() string {
	switch m {
	case SafeNominal:
		return "NOMINAL"
	case SafeHold:
		return "HOLD"
	case SafeReturnToLaunch:
		return "RTL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the mode by name.
func (m SafeMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name.
func (m *SafeMode) UnmarshalText(b []byte) error {
	for v := SafeNominal; v <= SafeReturnToLaunch; v++ {
		if v.String() == string(b) {
			*m = v
			return nil
		}
	}
	return fmt.Errorf("unknown safe mode %q", b)
}

// FlightMode is the flight-controller mode name this state forces.
func (m SafeMode) FlightMode() string {
	switch m {
	case SafeHold:
		return "HOLD"
	case SafeReturnToLaunch:
		return "RTL"
	default:
		return ""
	}
}

// SafeModeState is a snapshot of the safe-mode machine.
type SafeModeState struct {
	Mode      SafeMode  `json:"mode"`
	Reason    string    `json:"reason,omitempty"`
	EnteredAt time.Time `json:"entered_at"`
}

// SafeModeTransition records one state change of the safe-mode machine.
type SafeModeTransition struct {
	From       SafeMode  `json:"from"`
	To         SafeMode  `json:"to"`
	Reason     string    `json:"reason"`
	EnvelopeID string    `json:"envelope_id,omitempty"`
	At         time.Time `json:"at"`
}
