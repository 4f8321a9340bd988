package server

import (
	"sync/atomic"

	"github.com/ppiankov/aegis/internal/alert"
	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/model"
)

// AlertSink forwards to the current alert dispatcher, which hot reload may
// replace while the engine runs.
type AlertSink struct {
	d atomic.Pointer[alert.Dispatcher]
}

// NewAlertSink starts with d, which may be nil.
func NewAlertSink(d *alert.Dispatcher) *AlertSink {
	a := &AlertSink{}
	a.d.Store(d)
	return a
}

// Swap installs d and returns the previous dispatcher.
func (a *AlertSink) Swap(d *alert.Dispatcher) *alert.Dispatcher {
	return a.d.Swap(d)
}

// Current returns the active dispatcher.
func (a *AlertSink) Current() *alert.Dispatcher {
	return a.d.Load()
}

// OnDecision implements engine.Sink.
func (a *AlertSink) OnDecision(o engine.Outcome) {
	a.d.Load().OnDecision(o)
}

// OnSafeMode implements engine.Sink.
func (a *AlertSink) OnSafeMode(tr model.SafeModeTransition) {
	a.d.Load().OnSafeMode(tr)
}
