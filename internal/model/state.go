package model

import (
	"fmt"
	"time"
)

// Position is a WGS84 coordinate with altitude above launch in metres.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// VehicleState is a consistent snapshot of the vehicle.
type VehicleState struct {
	Position      Position `json:"position"`
	Home          Position `json:"home"`
	Heading       float64  `json:"heading"`
	Speed         float64  `json:"speed"`
	Armed         bool     `json:"armed"`
	CommandedMode string   `json:"commanded_mode"`
	// FlightMode is the effective mode: the safe-mode override when one is
	// active, otherwise CommandedMode.
	FlightMode string `json:"flight_mode"`
}

// Severity ranks log events.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	for v := SeverityInfo; v <= SeverityCritical; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", b)
}

// AtLeastWarning reports whether the event demands operator attention.
func (s Severity) AtLeastWarning() bool {
	return s >= SeverityWarning
}

// Log event categories, one per pipeline stage transition.
const (
	CatReceived   = "CMD_RECEIVED"
	CatIntake     = "CMD_INVALID"
	CatCryptoOK   = "CRYPTO_OK"
	CatCryptoFail = "CRYPTO_FAIL"
	CatFeature    = "FEATURE_ANOMALY"
	CatScore      = "TRUST_SCORE"
	CatDecision   = "DECISION"
	CatTimeout    = "VALIDATION_TIMEOUT"
	CatSafeMode   = "SAFE_MODE"
	CatRecovery   = "SAFE_MODE_CLEARED"
	CatLifecycle  = "LIFECYCLE"
)

// LogEvent is one append-only record of a stage transition.
type LogEvent struct {
	Timestamp  time.Time `json:"ts"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	EnvelopeID string    `json:"envelope_id,omitempty"`
}
