package features

import (
	"sync"
	"time"

	"github.com/ppiankov/aegis/internal/model"
)

// DefaultSampleWindow bounds the rolling expectation window per feature.
const DefaultSampleWindow = 50

// History is the command history the extractor reads. Every slice is
// bounded.
type History struct {
	mu           sync.Mutex
	start        time.Time
	size         int
	modeWindow   time.Duration
	lastCommand  time.Time
	lastAccepted time.Time
	modes        []time.Time
	samples      map[string][]float64
}

// NewHistory starts an empty history at start.
func NewHistory(start time.Time, size int, modeWindow time.Duration) *History {
	if size <= 0 {
		size = DefaultSampleWindow
	}
	if modeWindow <= 0 {
		modeWindow = DefaultBounds().ModeWindow
	}
	return &History{
		start:      start,
		size:       size,
		modeWindow: modeWindow,
		samples:    make(map[string][]float64),
	}
}

// Seen records that a command of any kind arrived at t.
func (h *History) Seen(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.After(h.lastCommand) {
		h.lastCommand = t
	}
}

// Accept records an accepted command received at t, whether it changed the
// flight mode, and its feature values as expectation samples.
func (h *History) Accept(t time.Time, modeChanged bool, vec model.FeatureVector) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t.After(h.lastAccepted) {
		h.lastAccepted = t
	}
	if modeChanged {
		h.modes = append(h.modes, t)
	}
	cutoff := t.Add(-h.modeWindow)
	for len(h.modes) > 0 && h.modes[0].Before(cutoff) {
		h.modes = h.modes[1:]
	}

	for _, f := range vec.Features {
		if !sampled(f.Name) {
			continue
		}
		s := append(h.samples[f.Name], f.Value)
		if len(s) > h.size {
			s = s[len(s)-h.size:]
		}
		h.samples[f.Name] = s
	}
}

// Reset clears everything and restarts the history at start.
func (h *History) Reset(start time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = start
	h.lastCommand = time.Time{}
	h.lastAccepted = time.Time{}
	h.modes = nil
	h.samples = make(map[string][]float64)
}

// Capture copies the history as of at. Entries stamped after at are left
// out.
func (h *History) Capture(at time.Time, vs model.VehicleState) Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := Snapshot{
		Vehicle: vs,
		At:      at,
		Start:   h.start,
		Samples: make(map[string][]float64, len(h.samples)),
	}
	if !h.lastCommand.After(at) {
		snap.LastCommand = h.lastCommand
	}
	if !h.lastAccepted.After(at) {
		snap.LastAccepted = h.lastAccepted
	}
	for _, m := range h.modes {
		if !m.After(at) {
			snap.ModeChanges = append(snap.ModeChanges, m)
		}
	}
	for name, s := range h.samples {
		snap.Samples[name] = append([]float64(nil), s...)
	}
	return snap
}

// Snapshot is the frozen input to Extract.
type Snapshot struct {
	Vehicle      model.VehicleState
	At           time.Time
	Start        time.Time
	LastCommand  time.Time
	LastAccepted time.Time
	ModeChanges  []time.Time
	Samples      map[string][]float64
}

func sampled(name string) bool {
	switch name {
	case PositionDelta, AltitudeDelta, ImpliedVelocity:
		return true
	}
	return false
}
