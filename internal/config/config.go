// Package config loads the aegis YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/aegis/internal/alert"
	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/features"
	"github.com/ppiankov/aegis/internal/model"
	"github.com/ppiankov/aegis/internal/safemode"
	"github.com/ppiankov/aegis/internal/trust"
	"github.com/ppiankov/aegis/internal/verify"
)

// DefaultHome is the launch point used when none is configured.
var DefaultHome = model.Position{Lat: 37.7749, Lon: -122.4194}

// Server configures the network surfaces.
type Server struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Spool configures directory intake of framed commands.
type Spool struct {
	Dir          string        `yaml:"dir"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Config holds all configurable parameters.
type Config struct {
	SessionID string `yaml:"session_id"`
	Suite     string `yaml:"suite"`
	// Keys maps key id to a secret in DecodeSecret form ("env:VAR", "hex:..", "base64:..").
	Keys        map[string]string `yaml:"keys"`
	Budget      time.Duration     `yaml:"budget"`
	Dwell       time.Duration     `yaml:"dwell"`
	Workers     int               `yaml:"workers"`
	QueueDepth  int               `yaml:"queue_depth"`
	LogCapacity int               `yaml:"log_capacity"`
	Bounds      features.Bounds   `yaml:"bounds"`
	Weights     trust.Weights     `yaml:"weights"`
	Home        model.Position    `yaml:"home"`
	Alerts      []alert.Config    `yaml:"alerts"`
	Server      Server            `yaml:"server"`
	Spool       Spool             `yaml:"spool"`
	AuditLog    string            `yaml:"audit_log"`
}

// DefaultConfig returns the built-in configuration. It has no keys, so every
// command fails verification until one is configured.
func DefaultConfig() *Config {
	return &Config{
		SessionID:   "default",
		Suite:       string(verify.SuiteAESGCM),
		Keys:        map[string]string{},
		Budget:      engine.DefaultBudget,
		Dwell:       safemode.DefaultDwell,
		Workers:     4,
		QueueDepth:  256,
		LogCapacity: 100,
		Bounds:      features.DefaultBounds(),
		Weights:     trust.DefaultWeights(),
		Home:        DefaultHome,
		Server: Server{
			GRPCAddr:    "127.0.0.1:7443",
			MetricsAddr: "",
		},
		Spool: Spool{PollInterval: 2 * time.Second},
	}
}

// DefaultPath returns ~/.aegis/config.yaml, or "" if there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".aegis", "config.yaml")
}

// Load reads configuration from a YAML file.
// Empty path falls back to ~/.aegis/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := verify.ParseSuite(c.Suite); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Budget <= 0 {
		return fmt.Errorf("config: budget must be positive, got %s", c.Budget)
	}
	if c.Dwell <= 0 {
		return fmt.Errorf("config: dwell must be positive, got %s", c.Dwell)
	}
	if c.Workers < 0 || c.QueueDepth < 0 || c.LogCapacity < 0 {
		return fmt.Errorf("config: workers, queue_depth and log_capacity must not be negative")
	}
	if c.Weights.Smoothing < 0 || c.Weights.Smoothing >= 1 {
		return fmt.Errorf("config: weights.smoothing must be in [0, 1), got %v", c.Weights.Smoothing)
	}
	for i, a := range c.Alerts {
		if a.URL == "" {
			return fmt.Errorf("config: alerts[%d]: url is required", i)
		}
		switch a.Format {
		case "", "generic", "slack", "pagerduty":
		default:
			return fmt.Errorf("config: alerts[%d]: unknown format %q", i, a.Format)
		}
	}
	return nil
}

// Keyring decodes every configured secret into a keyring.
func (c *Config) Keyring() (*verify.Keyring, error) {
	kr := verify.NewKeyring()
	for id, spec := range c.Keys {
		secret, err := verify.DecodeSecret(spec)
		if err != nil {
			return nil, fmt.Errorf("config: key %q: %w", id, err)
		}
		if err := kr.Add(id, secret); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return kr, nil
}

// Engine converts the file configuration into engine parameters.
func (c *Config) Engine() (engine.Config, error) {
	suite, err := verify.ParseSuite(c.Suite)
	if err != nil {
		return engine.Config{}, fmt.Errorf("config: %w", err)
	}
	return engine.Config{
		SessionID:   c.SessionID,
		Suite:       suite,
		Budget:      c.Budget,
		Workers:     c.Workers,
		QueueDepth:  c.QueueDepth,
		Dwell:       c.Dwell,
		LogCapacity: c.LogCapacity,
		Bounds:      c.Bounds,
		Weights:     c.Weights,
		Home:        c.Home,
	}, nil
}
