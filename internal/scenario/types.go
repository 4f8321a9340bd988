// Package scenario replays scripted command sequences through a fresh
// engine and checks each decision against expectations.
package scenario

import "time"

// Step is one command sent during a scenario.
type Step struct {
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params,omitempty"`
	Nonce  uint64         `yaml:"nonce"`
	// KeyID defaults to the scenario's provisioned key.
	KeyID string `yaml:"key_id,omitempty"`
	// Tamper flips a bit of the auth tag after signing.
	Tamper bool `yaml:"tamper,omitempty"`
	// After is how much simulated time passes before the step.
	After time.Duration `yaml:"after,omitempty"`

	Expect         string `yaml:"expect"` // "accepted" or "rejected"
	ExpectCode     string `yaml:"expect_code,omitempty"`
	ExpectSafeMode string `yaml:"expect_safe_mode,omitempty"`
}

// Scenario is a named command sequence run against one session.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index    int     `json:"index"`
	Passed   bool    `json:"passed"`
	Kind     string  `json:"kind"`
	Nonce    uint64  `json:"nonce"`
	Expected string  `json:"expected"`
	Actual   string  `json:"actual"`
	Code     string  `json:"code"`
	SafeMode string  `json:"safe_mode"`
	Trust    float64 `json:"trust"`
	Reason   string  `json:"reason"`
	// Mismatch explains a failed expectation.
	Mismatch string `json:"mismatch,omitempty"`
}

// RunResult is the outcome of running one scenario.
type RunResult struct {
	File   string       `json:"file,omitempty"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Steps  []StepResult `json:"steps"`
}
