// Package alert posts webhook notifications for rejected commands and
// safe-mode changes.
package alert

// Event types a webhook can subscribe to. A webhook may also subscribe to a
// decision code such as "IntegrityFailure".
const (
	EventRejected = "rejected"
	EventSafeMode = "safe_mode"
	EventRecovery = "recovery"
)

// DefaultRatePerMinute caps alerts per webhook when unset.
const DefaultRatePerMinute = 30

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["rejected", "safe_mode", "IntegrityFailure"]
	Headers map[string]string `yaml:"headers" json:"headers"`
	// RatePerMinute throttles this webhook; excess alerts are dropped.
	RatePerMinute int `yaml:"rate_per_minute" json:"rate_per_minute"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string  `json:"timestamp"`
	Type       string  `json:"type"`
	SessionID  string  `json:"session_id"`
	EnvelopeID string  `json:"envelope_id,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Code       string  `json:"code,omitempty"`
	Reason     string  `json:"reason"`
	Trust      float64 `json:"trust"`
	SafeMode   string  `json:"safe_mode"`
}
