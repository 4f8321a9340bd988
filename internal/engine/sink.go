package engine

import (
	"time"

	"github.com/ppiankov/aegis/internal/model"
)

// Outcome is the full result of validating one envelope.
type Outcome struct {
	Envelope model.CommandEnvelope `json:"envelope"`
	Features model.FeatureVector   `json:"features"`
	Decision model.Decision        `json:"decision"`
	SafeMode model.SafeModeState   `json:"safe_mode"`
	Latency  time.Duration         `json:"latency"`
}

// Sink consumes every decision and safe-mode transition: presentation,
// audit, alerting, or a vehicle-command dispatcher. Calls are serialized
// and must not call back into the engine.
type Sink interface {
	OnDecision(Outcome)
	OnSafeMode(model.SafeModeTransition)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	Decision func(Outcome)
	SafeMode func(model.SafeModeTransition)
}

// OnDecision implements Sink.
func (s SinkFuncs) OnDecision(o Outcome) {
	if s.Decision != nil {
		s.Decision(o)
	}
}

// OnSafeMode implements Sink.
func (s SinkFuncs) OnSafeMode(tr model.SafeModeTransition) {
	if s.SafeMode != nil {
		s.SafeMode(tr)
	}
}
