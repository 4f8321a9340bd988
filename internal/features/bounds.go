// Package features derives behavioural signals for one envelope from the
// vehicle and command history captured at intake.
package features

import "time"

// Feature names, in vector order.
const (
	PositionDelta    = "position_delta_m"
	AltitudeDelta    = "altitude_delta_m"
	TargetAltitude   = "target_altitude_m"
	ImpliedVelocity  = "implied_velocity_mps"
	SinceLastCommand = "time_since_last_command_s"
	ModeTransitions  = "mode_transitions"
)

// Bounds are the physical and behavioural limits features are checked
// against. MaxAltitude and MaxSpeed are physical; breaching them is hard.
type Bounds struct {
	MaxAltitude        float64       `yaml:"max_altitude_m"`
	MaxSpeed           float64       `yaml:"max_speed_mps"`
	MinCommandInterval time.Duration `yaml:"min_command_interval"`
	MaxModeTransitions int           `yaml:"max_mode_transitions"`
	ModeWindow         time.Duration `yaml:"mode_window"`
	ZScoreThreshold    float64       `yaml:"zscore_threshold"`
	MinSamples         int           `yaml:"min_samples"`
	// MinTransit floors the elapsed time used for implied velocity.
	MinTransit time.Duration `yaml:"min_transit"`
}

// DefaultBounds returns limits for a small multirotor.
func DefaultBounds() Bounds {
	return Bounds{
		MaxAltitude:        120,
		MaxSpeed:           20,
		MinCommandInterval: 200 * time.Millisecond,
		MaxModeTransitions: 5,
		ModeWindow:         time.Minute,
		ZScoreThreshold:    3,
		MinSamples:         5,
		MinTransit:         time.Second,
	}
}

// withDefaults fills zero fields from DefaultBounds.
func (b Bounds) withDefaults() Bounds {
	d := DefaultBounds()
	if b.MaxAltitude <= 0 {
		b.MaxAltitude = d.MaxAltitude
	}
	if b.MaxSpeed <= 0 {
		b.MaxSpeed = d.MaxSpeed
	}
	if b.MinCommandInterval < 0 {
		b.MinCommandInterval = 0
	}
	if b.MaxModeTransitions <= 0 {
		b.MaxModeTransitions = d.MaxModeTransitions
	}
	if b.ModeWindow <= 0 {
		b.ModeWindow = d.ModeWindow
	}
	if b.ZScoreThreshold <= 0 {
		b.ZScoreThreshold = d.ZScoreThreshold
	}
	if b.MinSamples <= 1 {
		b.MinSamples = d.MinSamples
	}
	if b.MinTransit <= 0 {
		b.MinTransit = d.MinTransit
	}
	return b
}
