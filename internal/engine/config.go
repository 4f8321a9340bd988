package engine

import (
	"time"

	"github.com/ppiankov/aegis/internal/features"
	"github.com/ppiankov/aegis/internal/model"
	"github.com/ppiankov/aegis/internal/trust"
	"github.com/ppiankov/aegis/internal/verify"
)

// DefaultBudget is the per-envelope validation budget.
const DefaultBudget = 2 * time.Second

// Config holds the session parameters.
type Config struct {
	SessionID   string
	Suite       verify.Suite
	Budget      time.Duration
	Workers     int
	QueueDepth  int
	Dwell       time.Duration
	LogCapacity int
	Bounds      features.Bounds
	Weights     trust.Weights
	Home        model.Position
}

func (c Config) withDefaults() Config {
	if c.SessionID == "" {
		c.SessionID = "default"
	}
	if c.Suite == "" {
		c.Suite = verify.SuiteAESGCM
	}
	if c.Budget <= 0 {
		c.Budget = DefaultBudget
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Weights.Window <= 0 {
		c.Weights.Window = trust.DefaultWeights().Window
	}
	return c
}
