package scenario

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/aegis/internal/clock"
	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/model"
	"github.com/ppiankov/aegis/internal/verify"
)

const (
	// KeyID is provisioned in every scenario session.
	KeyID = "gcs-1"
	// RogueKeyID signs commands but is unknown to the gate.
	RogueKeyID = "rogue"
	// DefaultSpacing separates steps that set no After.
	DefaultSpacing = 2 * time.Second
	stepWait       = 10 * time.Second
)

var (
	epoch  = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	secret = []byte("aegis-simulation-secret-0123456789")
)

// Run executes every step of s against a fresh engine built from cfg on a
// simulated clock. Steps run one at a time; each waits for its decision.
func Run(ctx context.Context, s *Scenario, cfg engine.Config, opts ...engine.Option) (*RunResult, error) {
	gate := verify.NewKeyring()
	if err := gate.Add(KeyID, secret); err != nil {
		return nil, err
	}
	ground := verify.NewKeyring()
	for _, id := range []string{KeyID, RogueKeyID} {
		if err := ground.Add(id, secret); err != nil {
			return nil, err
		}
	}

	if cfg.SessionID == "" {
		cfg.SessionID = "sim-" + s.Name
	}
	clk := clock.NewFake(epoch)
	base := []engine.Option{
		engine.WithClock(clk),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	e, err := engine.New(cfg, gate, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	signer := verify.NewSigner(cfg.Suite, ground, cfg.SessionID)
	result := &RunResult{Name: s.Name, Total: len(s.Steps)}

	for i, step := range s.Steps {
		after := step.After
		if after <= 0 {
			after = DefaultSpacing
		}
		clk.Advance(after)

		out, err := submit(ctx, e, signer, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Kind, err)
		}

		sr := StepResult{
			Index:    i + 1,
			Kind:     step.Kind,
			Nonce:    step.Nonce,
			Expected: strings.ToLower(step.Expect),
			Actual:   strings.ToLower(string(out.Decision.Verdict)),
			Code:     string(out.Decision.Code),
			SafeMode: out.SafeMode.Mode.String(),
			Trust:    out.Decision.Trust.Value,
			Reason:   out.Decision.Reason,
		}
		sr.Mismatch = check(step, sr)
		if sr.Mismatch == "" {
			sr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Steps = append(result.Steps, sr)
	}

	return result, nil
}

func submit(ctx context.Context, e *engine.Engine, signer *verify.Signer, step Step) (engine.Outcome, error) {
	keyID := step.KeyID
	if keyID == "" {
		keyID = KeyID
	}
	raw, err := signer.SignRaw(model.RawCommand{
		Kind:   step.Kind,
		Params: step.Params,
		Source: string(model.SourceKnownGroundStation),
		KeyID:  keyID,
		Nonce:  step.Nonce,
	})
	if err != nil {
		return engine.Outcome{}, err
	}
	if step.Tamper {
		tag, _ := base64.StdEncoding.DecodeString(raw.AuthTag)
		if len(tag) > 0 {
			tag[0] ^= 0x01
		}
		raw.AuthTag = base64.StdEncoding.EncodeToString(tag)
	}

	p, err := e.Submit(ctx, raw)
	if err != nil {
		return engine.Outcome{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, stepWait)
	defer cancel()
	return p.Wait(ctx)
}

func check(step Step, sr StepResult) string {
	var diffs []string
	if sr.Expected != "" && sr.Expected != sr.Actual {
		diffs = append(diffs, fmt.Sprintf("expected %s, got %s", sr.Expected, sr.Actual))
	}
	if step.ExpectCode != "" && !strings.EqualFold(step.ExpectCode, sr.Code) {
		diffs = append(diffs, fmt.Sprintf("expected code %s, got %s", step.ExpectCode, sr.Code))
	}
	if step.ExpectSafeMode != "" && !strings.EqualFold(step.ExpectSafeMode, sr.SafeMode) {
		diffs = append(diffs, fmt.Sprintf("expected safe mode %s, got %s", step.ExpectSafeMode, sr.SafeMode))
	}
	return strings.Join(diffs, "; ")
}

// Load reads a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and runs it.
func LoadAndRun(ctx context.Context, path string, cfg engine.Config) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result, err := Run(ctx, s, cfg)
	if err != nil {
		return nil, err
	}
	result.File = path
	return result, nil
}
