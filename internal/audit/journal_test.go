package audit

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/model"
)

var base = time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

func outcome(id string, nonce uint64, verdict model.Verdict, code model.Code, at time.Time) engine.Outcome {
	return engine.Outcome{
		Envelope: model.CommandEnvelope{ID: id, Kind: model.KindGotoPosition, KeyID: "gcs-1", Nonce: nonce, Source: model.SourceKnownGroundStation},
		Decision: model.Decision{
			EnvelopeID: id,
			Verdict:    verdict,
			Code:       code,
			Reason:     "reason for " + id,
			Trust:      model.TrustScore{Value: -0.8},
			Scored:     true,
			DecidedAt:  at,
		},
		SafeMode: model.SafeModeState{Mode: model.SafeNominal},
	}
}

// writeJournal records a small session through the engine sink.
func writeJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	j := NewJournal(l, "s-1", "sha256:cfg", nil)
	j.OnDecision(outcome("e-1", 1, model.Accepted, model.CodeAuthorized, base))
	j.OnDecision(outcome("e-2", 2, model.Rejected, model.CodePhysicalLimitExceeded, base.Add(2*time.Second)))
	j.OnSafeMode(model.SafeModeTransition{From: model.SafeNominal, To: model.SafeReturnToLaunch, Reason: "PhysicalLimitExceeded", EnvelopeID: "e-2", At: base.Add(2 * time.Second)})
	j.OnDecision(outcome("e-3", 3, model.Rejected, model.CodeReplayedNonce, base.Add(4*time.Second)))
	return path
}

func TestJournalProducesVerifiableChain(t *testing.T) {
	path := writeJournal(t)
	result := Verify(path)
	if !result.Valid || result.Lines != 4 {
		t.Fatalf("expected 4 valid lines, got %+v", result)
	}
}

func TestReadSummarises(t *testing.T) {
	res, err := Read(writeJournal(t), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	s := res.Summary
	if s.Total != 4 || s.Accepted != 1 || s.Rejected != 2 || s.SafeModeEvents != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.Codes["PhysicalLimitExceeded"] != 1 {
		t.Errorf("expected one PhysicalLimitExceeded, got %v", s.Codes)
	}
	if res.Entries[0].SessionID != "s-1" || res.Entries[0].ConfigHash != "sha256:cfg" {
		t.Errorf("expected session and config hash stamped, got %+v", res.Entries[0])
	}
	if res.Entries[2].FromMode != "NOMINAL" || res.Entries[2].SafeMode != "RTL" {
		t.Errorf("unexpected transition entry %+v", res.Entries[2])
	}
}

func TestReadFilters(t *testing.T) {
	path := writeJournal(t)

	res, _ := Read(path, Filter{EnvelopeID: "e-2"})
	if len(res.Entries) != 2 {
		t.Errorf("expected decision and transition for e-2, got %d", len(res.Entries))
	}

	res, _ = Read(path, Filter{Verdict: "REJECTED"})
	if len(res.Entries) != 2 {
		t.Errorf("expected 2 rejections, got %d", len(res.Entries))
	}

	res, _ = Read(path, Filter{From: base.Add(3 * time.Second)})
	if len(res.Entries) != 1 || res.Entries[0].EnvelopeID != "e-3" {
		t.Errorf("expected only e-3 after from, got %+v", res.Entries)
	}

	res, _ = Read(path, Filter{Last: 2})
	if len(res.Entries) != 2 || res.Entries[1].EnvelopeID != "e-3" {
		t.Errorf("expected newest two entries, got %+v", res.Entries)
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "missing.jsonl"), Filter{}); err == nil {
		t.Fatal("expected error for missing journal")
	}
}

func TestFormatTimeline(t *testing.T) {
	res, err := Read(writeJournal(t), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	out := FormatTimeline(res)

	for _, want := range []string{"Journal | 2026-01-15 14:00:00", "ACCEPTED", "PhysicalLimitExceeded", "NOMINAL -> RTL", "Summary: 1 accepted, 2 rejected, 1 safe-mode"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in timeline:\n%s", want, out)
		}
	}
	if FormatTimeline(&Result{}) != "No entries found.\n" {
		t.Error("expected empty marker")
	}
}

func TestFormatJSON(t *testing.T) {
	res, _ := Read(writeJournal(t), Filter{Last: 1})
	out, err := FormatJSON(res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"envelope_id": "e-3"`) {
		t.Errorf("unexpected JSON:\n%s", out)
	}
}
