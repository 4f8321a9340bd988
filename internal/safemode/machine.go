// Package safemode drives the vehicle-side fallback after rejected commands.
package safemode

import (
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/aegis/internal/clock"
	"github.com/ppiankov/aegis/internal/model"
)

// DefaultDwell is how long a fallback state holds without further
// rejections before recovering.
const DefaultDwell = 30 * time.Second

// SevereTrust is the score below which a rejection sends the vehicle home.
const SevereTrust = -0.5

// Appender receives log events. eventlog.Log satisfies it.
type Appender interface {
	Append(model.LogEvent)
}

// Listener is told about every state change. It runs with the machine
// locked and must not call back into the machine.
type Listener func(model.SafeModeTransition)

// Machine is the NOMINAL/HOLD/RTL state machine. It only escalates on
// rejections and only recovers on dwell expiry.
type Machine struct {
	clock    clock.Clock
	dwell    time.Duration
	events   Appender
	listener Listener

	mu    sync.Mutex
	state model.SafeModeState
	timer clock.Timer
	gen   uint64
}

// New returns a machine in NOMINAL.
func New(clk clock.Clock, dwell time.Duration, events Appender, listener Listener) *Machine {
	if clk == nil {
		clk = clock.Real()
	}
	if dwell <= 0 {
		dwell = DefaultDwell
	}
	return &Machine{
		clock:    clk,
		dwell:    dwell,
		events:   events,
		listener: listener,
		state:    model.SafeModeState{Mode: model.SafeNominal, EnteredAt: clk.Now()},
	}
}

// State returns the current state.
func (m *Machine) State() model.SafeModeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dwell returns the recovery dwell duration.
func (m *Machine) Dwell() time.Duration {
	return m.dwell
}

// Target maps a rejected decision to the fallback it demands. Accepted
// decisions map to NOMINAL.
func Target(d model.Decision) model.SafeMode {
	if d.Accepted() {
		return model.SafeNominal
	}

	target := model.SafeHold
	if !d.Verification.Valid && d.Verification.Failure != model.FailureReplay {
		target = model.SafeReturnToLaunch
	}
	if d.Scored && d.Trust.Value < SevereTrust {
		target = model.SafeReturnToLaunch
	}
	return target
}

// Observe feeds one decision into the machine. Accepted decisions are
// ignored. A rejection enters or escalates the fallback, or just restarts
// the dwell timer when the current state is already severe enough. It
// reports whether the mode changed.
func (m *Machine) Observe(d model.Decision) (model.SafeModeState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.Accepted() {
		return m.state, false
	}

	target := Target(d)
	changed := false
	if target > m.state.Mode {
		m.enter(target, d)
		changed = true
	}
	m.restartTimer()
	return m.state, changed
}

// Reset stops the dwell timer and returns to NOMINAL without logging.
// Used on session teardown.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimer()
	m.state = model.SafeModeState{Mode: model.SafeNominal, EnteredAt: m.clock.Now()}
}

func (m *Machine) enter(to model.SafeMode, d model.Decision) {
	now := m.clock.Now()
	from := m.state.Mode
	reason := fmt.Sprintf("%s: %s", d.Code, d.Reason)
	m.state = model.SafeModeState{Mode: to, Reason: reason, EnteredAt: now}

	sev := model.SeverityWarning
	if to == model.SafeReturnToLaunch {
		sev = model.SeverityCritical
	}
	verb := "entered"
	if from != model.SafeNominal {
		verb = "escalated to"
	}
	m.emit(model.LogEvent{
		Timestamp:  now,
		Category:   model.CatSafeMode,
		Message:    fmt.Sprintf("safe mode %s %s (%s)", verb, to, reason),
		Severity:   sev,
		EnvelopeID: d.EnvelopeID,
	})
	m.notify(model.SafeModeTransition{From: from, To: to, Reason: reason, EnvelopeID: d.EnvelopeID, At: now})
}

func (m *Machine) restartTimer() {
	m.stopTimer()
	m.gen++
	gen := m.gen
	m.timer = m.clock.AfterFunc(m.dwell, func() { m.expire(gen) })
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

// expire recovers to NOMINAL unless a later rejection restarted the timer.
func (m *Machine) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state.Mode == model.SafeNominal {
		return
	}
	m.timer = nil

	now := m.clock.Now()
	from := m.state.Mode
	reason := fmt.Sprintf("no rejections for %s", m.dwell)
	m.state = model.SafeModeState{Mode: model.SafeNominal, Reason: reason, EnteredAt: now}
	m.emit(model.LogEvent{
		Timestamp: now,
		Category:  model.CatRecovery,
		Message:   fmt.Sprintf("safe mode %s cleared: %s", from, reason),
		Severity:  model.SeverityInfo,
	})
	m.notify(model.SafeModeTransition{From: from, To: model.SafeNominal, Reason: reason, At: now})
}

func (m *Machine) emit(ev model.LogEvent) {
	if m.events != nil {
		m.events.Append(ev)
	}
}

func (m *Machine) notify(tr model.SafeModeTransition) {
	if m.listener != nil {
		m.listener(tr)
	}
}
