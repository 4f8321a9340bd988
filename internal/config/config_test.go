package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/aegis/internal/features"
	"github.com/ppiankov/aegis/internal/verify"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Suite != "aes-256-gcm" {
		t.Errorf("expected aes-256-gcm, got %s", cfg.Suite)
	}
	if cfg.Budget != 2*time.Second {
		t.Errorf("expected budget 2s, got %s", cfg.Budget)
	}
	if cfg.Dwell != 30*time.Second {
		t.Errorf("expected dwell 30s, got %s", cfg.Dwell)
	}
	if cfg.LogCapacity != 100 {
		t.Errorf("expected log capacity 100, got %d", cfg.LogCapacity)
	}
	if cfg.Bounds != features.DefaultBounds() {
		t.Errorf("expected default bounds, got %+v", cfg.Bounds)
	}
	if len(cfg.Keys) != 0 {
		t.Errorf("expected no keys by default, got %v", cfg.Keys)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, hash, err := LoadWithHash("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Workers)
	}
	// sha256 of empty input
	if hash != "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("unexpected empty hash %s", hash)
	}
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
session_id: sortie-7
suite: chacha20-poly1305
budget: 500ms
bounds:
  max_altitude_m: 60
keys:
  gcs-1: "hex:000102030405060708090a0b0c0d0e0f"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.SessionID != "sortie-7" {
		t.Errorf("expected session sortie-7, got %s", cfg.SessionID)
	}
	if cfg.Budget != 500*time.Millisecond {
		t.Errorf("expected budget 500ms, got %s", cfg.Budget)
	}
	if cfg.Bounds.MaxAltitude != 60 {
		t.Errorf("expected max altitude 60, got %v", cfg.Bounds.MaxAltitude)
	}
	if cfg.Bounds.MaxSpeed != 20 {
		t.Errorf("expected default max speed retained, got %v", cfg.Bounds.MaxSpeed)
	}
	if cfg.Dwell != 30*time.Second {
		t.Errorf("expected default dwell retained, got %s", cfg.Dwell)
	}

	ec, err := cfg.Engine()
	if err != nil {
		t.Fatal(err)
	}
	if ec.Suite != verify.SuiteChaCha20 || ec.SessionID != "sortie-7" {
		t.Errorf("unexpected engine config %+v", ec)
	}
}

func TestLoadHashTracksContent(t *testing.T) {
	_, h1, err := LoadWithHash(writeConfig(t, "workers: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	_, h2, err := LoadWithHash(writeConfig(t, "workers: 3\n"))
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("expected different hashes for different content")
	}
	if !strings.HasPrefix(h1, "sha256:") {
		t.Errorf("expected sha256 prefix, got %s", h1)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":     "workers: [",
		"suite":        "suite: rot13\n",
		"budget":       "budget: -1s\n",
		"smoothing":    "weights:\n  smoothing: 1.5\n",
		"alert url":    "alerts:\n  - format: slack\n",
		"alert format": "alerts:\n  - url: http://x\n    format: teams\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestKeyringDecodesSecrets(t *testing.T) {
	t.Setenv("AEGIS_TEST_KEY", "101112131415161718191a1b1c1d1e1f")
	cfg := DefaultConfig()
	cfg.Keys = map[string]string{
		"gcs-1": "hex:000102030405060708090a0b0c0d0e0f",
		"gcs-2": "env:AEGIS_TEST_KEY",
	}

	kr, err := cfg.Keyring()
	if err != nil {
		t.Fatal(err)
	}
	ids := kr.IDs()
	if len(ids) != 2 || ids[0] != "gcs-1" || ids[1] != "gcs-2" {
		t.Errorf("unexpected key ids %v", ids)
	}

	cfg.Keys = map[string]string{"short": "hex:0001"}
	if _, err := cfg.Keyring(); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestLoadAlerts(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
alerts:
  - url: https://hooks.example.com/a
    format: pagerduty
    events: [safe_mode, IntegrityFailure]
    rate_per_minute: 5
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(cfg.Alerts))
	}
	a := cfg.Alerts[0]
	if a.Format != "pagerduty" || a.RatePerMinute != 5 || len(a.Events) != 2 {
		t.Errorf("unexpected alert config %+v", a)
	}
}
