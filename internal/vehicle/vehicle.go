// Package vehicle holds the single shared vehicle snapshot that accepted
// commands and safe mode write to.
package vehicle

import (
	"math"
	"strings"
	"sync"

	"github.com/ppiankov/aegis/internal/model"
)

// InitialMode is the flight mode a freshly connected vehicle reports.
const InitialMode = "STABILIZE"

// Vehicle is the lock-guarded vehicle state. Readers get consistent copies;
// writes are serialized.
type Vehicle struct {
	mu       sync.RWMutex
	home     model.Position
	state    model.VehicleState
	override string
}

// New returns a disarmed vehicle sitting at home.
func New(home model.Position) *Vehicle {
	v := &Vehicle{home: home}
	v.state = initial(home)
	return v
}

func initial(home model.Position) model.VehicleState {
	return model.VehicleState{
		Position:      home,
		Home:          home,
		CommandedMode: InitialMode,
		FlightMode:    InitialMode,
	}
}

// Snapshot returns a copy of the current state.
func (v *Vehicle) Snapshot() model.VehicleState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Apply records the effect of an accepted command. While safe mode holds an
// override the commanded mode is tracked but the effective mode is not
// changed. It reports whether the commanded mode changed.
func (v *Vehicle) Apply(env model.CommandEnvelope) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev := v.state.CommandedMode
	v.state = Plan(v.state, env)
	v.state.FlightMode = v.effective()
	return v.state.CommandedMode != prev
}

// Override forces the effective flight mode.
func (v *Vehicle) Override(mode string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.override = mode
	v.state.FlightMode = v.effective()
}

// Release drops the override; the effective mode returns to the commanded one.
func (v *Vehicle) Release() {
	v.Override("")
}

// Overridden reports whether safe mode currently owns the flight mode.
func (v *Vehicle) Overridden() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.override != ""
}

// Reset returns the vehicle to its initial state at home.
func (v *Vehicle) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.override = ""
	v.state = initial(v.home)
}

func (v *Vehicle) effective() string {
	if v.override != "" {
		return v.override
	}
	return v.state.CommandedMode
}

// Plan returns the state that would result from applying env to s.
// It does not touch FlightMode; callers resolve overrides.
func Plan(s model.VehicleState, env model.CommandEnvelope) model.VehicleState {
	p := env.Params
	switch env.Kind {
	case model.KindArm:
		s.Armed = true
	case model.KindDisarm:
		s.Armed = false
		s.Speed = 0
	case model.KindTakeoff:
		if alt, ok := p.Float("alt"); ok {
			s.Position.Alt = alt
		}
		s.CommandedMode = "GUIDED"
	case model.KindLand:
		s.Position.Alt = 0
		s.Speed = 0
		s.CommandedMode = "LAND"
	case model.KindReturnToLaunch:
		s.Position = s.Home
		s.Speed = 0
		s.CommandedMode = "RTL"
	case model.KindGotoPosition:
		lat, _ := p.Float("lat")
		lon, _ := p.Float("lon")
		alt, _ := p.Float("alt")
		to := model.Position{Lat: lat, Lon: lon, Alt: alt}
		if Haversine(s.Position, to) > 0 {
			s.Heading = Bearing(s.Position, to)
		}
		s.Position = to
		s.CommandedMode = "GUIDED"
	case model.KindSetMode:
		if mode, ok := p.String("mode"); ok {
			s.CommandedMode = strings.ToUpper(strings.TrimSpace(mode))
		}
	case model.KindSetVelocity:
		vx, _ := p.Float("vx")
		vy, _ := p.Float("vy")
		vz, _ := p.Float("vz")
		s.Speed = math.Sqrt(vx*vx + vy*vy + vz*vz)
		if vx != 0 || vy != 0 {
			s.Heading = math.Mod(math.Atan2(vy, vx)*180/math.Pi+360, 360)
		}
		s.CommandedMode = "GUIDED"
	}
	return s
}

const earthRadius = 6371000.0

// Haversine returns the great-circle ground distance between a and b in metres.
func Haversine(a, b model.Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Distance combines ground distance and altitude change.
func Distance(a, b model.Position) float64 {
	g := Haversine(a, b)
	dz := b.Alt - a.Alt
	return math.Sqrt(g*g + dz*dz)
}

// Bearing returns the initial course from a to b in degrees.
func Bearing(a, b model.Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
}
