package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/model"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func counting(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &called
}

func fastRetry(t *testing.T) {
	t.Helper()
	prev := retryBackoff
	retryBackoff = time.Millisecond
	t.Cleanup(func() { retryBackoff = prev })
}

func TestDispatchMatchesEvents(t *testing.T) {
	srv, called := counting(t, http.StatusOK)

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{EventRejected}},
	}, "s-1", quiet)

	d.Dispatch(Event{Type: EventRejected, Kind: "GOTO", Code: "PhysicalLimitExceeded"})
	d.Wait()

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	srv, called := counting(t, http.StatusOK)

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{EventSafeMode}},
	}, "s-1", quiet)

	d.Dispatch(Event{Type: EventRejected, Code: "ReplayedNonce"})
	d.Wait()

	if called.Load() != 0 {
		t.Errorf("expected 0 calls for non-matching event, got %d", called.Load())
	}
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	srv1, called1 := counting(t, http.StatusOK)
	srv2, called2 := counting(t, http.StatusOK)

	d := NewDispatcher([]Config{
		{URL: srv1.URL, Format: "generic", Events: []string{EventRejected}},
		{URL: srv2.URL, Format: "slack", Events: []string{EventSafeMode, EventRejected}},
	}, "s-1", quiet)

	d.Dispatch(Event{Type: EventRejected, Code: "IntegrityFailure"})
	d.Wait()

	if called1.Load()+called2.Load() != 2 {
		t.Errorf("expected 2 calls (both webhooks match), got %d", called1.Load()+called2.Load())
	}
}

func TestDispatchMatchesCode(t *testing.T) {
	srv, called := counting(t, http.StatusOK)

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{"IntegrityFailure"}},
	}, "s-1", quiet)

	d.Dispatch(Event{Type: EventRejected, Code: "IntegrityFailure"})
	d.Dispatch(Event{Type: EventRejected, Code: "ReplayedNonce"})
	d.Wait()

	if called.Load() != 1 {
		t.Errorf("expected 1 call for code match, got %d", called.Load())
	}
}

func TestDispatchThrottles(t *testing.T) {
	srv, called := counting(t, http.StatusOK)

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{EventRejected}, RatePerMinute: 2},
	}, "s-1", quiet)

	for i := 0; i < 5; i++ {
		d.Dispatch(Event{Type: EventRejected})
	}
	d.Wait()

	if called.Load() != 2 {
		t.Errorf("expected burst of 2 delivered, got %d", called.Load())
	}
	if d.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", d.Dropped())
	}
}

func TestDispatcherAsSink(t *testing.T) {
	var got []Event
	bodies := make(chan Event, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		bodies <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{EventRejected, EventSafeMode, EventRecovery}},
	}, "s-9", quiet)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	accepted := engine.Outcome{
		Envelope: model.CommandEnvelope{ID: "e-0", Kind: model.KindArm},
		Decision: model.Decision{Verdict: model.Accepted, Code: model.CodeAuthorized, DecidedAt: at},
	}
	rejected := engine.Outcome{
		Envelope: model.CommandEnvelope{ID: "e-1", Kind: model.KindGotoPosition},
		Decision: model.Decision{
			Verdict:   model.Rejected,
			Code:      model.CodePhysicalLimitExceeded,
			Reason:    "physical limit exceeded",
			Trust:     model.TrustScore{Value: -0.8},
			DecidedAt: at,
		},
		SafeMode: model.SafeModeState{Mode: model.SafeReturnToLaunch},
	}

	d.OnDecision(accepted)
	d.OnSafeMode(model.SafeModeTransition{From: model.SafeNominal, To: model.SafeReturnToLaunch, EnvelopeID: "e-1", At: at})
	d.OnDecision(rejected)
	d.OnSafeMode(model.SafeModeTransition{From: model.SafeReturnToLaunch, To: model.SafeNominal, At: at})
	d.Wait()
	close(bodies)
	for ev := range bodies {
		got = append(got, ev)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 alerts (accepted decision skipped), got %d", len(got))
	}
	types := map[string]Event{}
	for _, ev := range got {
		if ev.SessionID != "s-9" {
			t.Errorf("expected session s-9, got %q", ev.SessionID)
		}
		types[ev.Type] = ev
	}
	if ev := types[EventRejected]; ev.EnvelopeID != "e-1" || ev.Code != "PhysicalLimitExceeded" || ev.SafeMode != "RTL" {
		t.Errorf("unexpected rejection alert: %+v", ev)
	}
	if ev := types[EventRejected]; ev.Timestamp != "2026-01-02T03:04:05.000Z" {
		t.Errorf("unexpected timestamp %q", ev.Timestamp)
	}
	if _, ok := types[EventRecovery]; !ok {
		t.Error("expected recovery alert")
	}
}

func TestNilDispatcherIgnoresEverything(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(Event{Type: EventRejected})
	d.OnDecision(engine.Outcome{})
	d.OnSafeMode(model.SafeModeTransition{})
	d.Wait()
	if d.Dropped() != 0 {
		t.Error("expected zero drops on nil dispatcher")
	}
}

func TestRetryOnServerError(t *testing.T) {
	fastRetry(t)
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Send(context.Background(), Config{URL: srv.URL, Format: "generic"}, Event{Type: EventRejected})
	if err != nil {
		t.Errorf("expected success after retries, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	fastRetry(t)
	srv, attempts := counting(t, http.StatusBadRequest)

	err := Send(context.Background(), Config{URL: srv.URL, Format: "generic"}, Event{Type: EventRejected})
	if err == nil {
		t.Error("expected error on 400, got nil")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", attempts.Load())
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	fastRetry(t)
	srv, _ := counting(t, http.StatusServiceUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Send(ctx, Config{URL: srv.URL}, Event{Type: EventRejected}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestSendAppliesHeaders(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Token abc"}}
	if err := Send(context.Background(), cfg, Event{Type: EventSafeMode}); err != nil {
		t.Fatal(err)
	}
	if auth.Load() != "Token abc" {
		t.Errorf("expected header forwarded, got %v", auth.Load())
	}
}

func TestFormatGenericJSON(t *testing.T) {
	event := Event{
		Timestamp:  "2025-01-15T14:00:00.000Z",
		Type:       EventRejected,
		EnvelopeID: "e-123",
		Kind:       "GOTO",
		Code:       "PhysicalLimitExceeded",
		Reason:     "physical limit exceeded",
		Trust:      -0.9,
	}

	data, err := FormatPayload("generic", event)
	if err != nil {
		t.Fatal(err)
	}

	var parsed Event
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("generic format is not valid JSON: %v", err)
	}
	if parsed.EnvelopeID != "e-123" {
		t.Errorf("expected envelope_id e-123, got %s", parsed.EnvelopeID)
	}
	if parsed.Code != "PhysicalLimitExceeded" {
		t.Errorf("expected code PhysicalLimitExceeded, got %s", parsed.Code)
	}
}

func TestFormatSlackBlockKit(t *testing.T) {
	event := Event{Type: EventRejected, Kind: "GOTO", Code: "BehavioralAnomaly", Reason: "behavioral anomaly", SafeMode: "HOLD"}

	data, err := FormatPayload("slack", event)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("slack format is not valid JSON: %v", err)
	}

	blocks, ok := parsed["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in slack payload")
	}
	if len(blocks) < 2 {
		t.Fatalf("expected at least 2 blocks, got %d", len(blocks))
	}

	header, _ := blocks[0].(map[string]any)
	if header["type"] != "header" {
		t.Errorf("expected header block, got %s", header["type"])
	}
	text, _ := header["text"].(map[string]any)
	if text["text"] != "aegis: GOTO rejected (BehavioralAnomaly)" {
		t.Errorf("unexpected header text %v", text["text"])
	}

	section, _ := blocks[1].(map[string]any)
	fields, ok := section["fields"].([]any)
	if !ok || len(fields) < 4 {
		t.Errorf("expected at least 4 fields in section, got %v", fields)
	}
}

func TestFormatPagerDuty(t *testing.T) {
	cases := []struct {
		event    Event
		action   string
		severity string
	}{
		{Event{Type: EventSafeMode, SafeMode: "RTL"}, "trigger", "critical"},
		{Event{Type: EventSafeMode, SafeMode: "HOLD"}, "trigger", "warning"},
		{Event{Type: EventRejected, SafeMode: "NOMINAL"}, "trigger", "error"},
		{Event{Type: EventRecovery, SafeMode: "NOMINAL"}, "resolve", "info"},
	}

	for _, tc := range cases {
		data, err := FormatPayload("pagerduty", tc.event)
		if err != nil {
			t.Fatal(err)
		}
		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			t.Fatalf("pagerduty format is not valid JSON: %v", err)
		}
		if parsed["event_action"] != tc.action {
			t.Errorf("%s/%s: expected event_action %s, got %v", tc.event.Type, tc.event.SafeMode, tc.action, parsed["event_action"])
		}
		payload, ok := parsed["payload"].(map[string]any)
		if !ok {
			t.Fatal("expected payload object")
		}
		if payload["severity"] != tc.severity {
			t.Errorf("%s/%s: expected severity %s, got %v", tc.event.Type, tc.event.SafeMode, tc.severity, payload["severity"])
		}
		if payload["source"] != "aegis" {
			t.Errorf("expected source aegis, got %v", payload["source"])
		}
	}
}

func TestNewDispatcherNilOnEmpty(t *testing.T) {
	if d := NewDispatcher(nil, "s", nil); d != nil {
		t.Error("expected nil dispatcher for empty configs")
	}
	if d := NewDispatcher([]Config{}, "s", nil); d != nil {
		t.Error("expected nil dispatcher for zero-length configs")
	}
}
