package alert

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/model"
)

type hook struct {
	cfg     Config
	limiter *rate.Limiter
}

// Dispatcher fans out alert events to matching webhooks. It is an engine
// sink; sends happen in the background and never block the pipeline.
type Dispatcher struct {
	hooks     []hook
	sessionID string
	logger    *slog.Logger

	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty; a nil Dispatcher ignores everything.
func NewDispatcher(configs []Config, sessionID string, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{sessionID: sessionID, logger: logger.With("component", "alert")}
	for _, cfg := range configs {
		per := cfg.RatePerMinute
		if per <= 0 {
			per = DefaultRatePerMinute
		}
		d.hooks = append(d.hooks, hook{
			cfg:     cfg,
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(per)), per),
		})
	}
	return d
}

// Dispatch sends event to all webhooks whose Events list matches its type
// or code. Throttled alerts are counted and dropped.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	if event.SessionID == "" {
		event.SessionID = d.sessionID
	}
	for _, h := range d.hooks {
		if !matches(h.cfg.Events, event) {
			continue
		}
		if !h.limiter.Allow() {
			d.dropped.Add(1)
			d.logger.Warn("alert throttled", "url", h.cfg.URL, "type", event.Type)
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendBudget)
			defer cancel()
			if err := Send(ctx, cfg, event); err != nil {
				d.logger.Error("alert delivery failed", "url", cfg.URL, "type", event.Type, "error", err)
			}
		}(h.cfg)
	}
}

// Wait blocks until all in-flight sends finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Dropped returns how many alerts were throttled.
func (d *Dispatcher) Dropped() int64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// OnDecision implements engine.Sink. Only rejections alert.
func (d *Dispatcher) OnDecision(o engine.Outcome) {
	if d == nil || o.Decision.Accepted() {
		return
	}
	d.Dispatch(Event{
		Timestamp:  o.Decision.DecidedAt.UTC().Format(timestampFormat),
		Type:       EventRejected,
		EnvelopeID: o.Envelope.ID,
		Kind:       string(o.Envelope.Kind),
		Code:       string(o.Decision.Code),
		Reason:     o.Decision.Reason,
		Trust:      o.Decision.Trust.Value,
		SafeMode:   o.SafeMode.Mode.String(),
	})
}

// OnSafeMode implements engine.Sink.
func (d *Dispatcher) OnSafeMode(tr model.SafeModeTransition) {
	if d == nil {
		return
	}
	typ := EventSafeMode
	if tr.To == model.SafeNominal {
		typ = EventRecovery
	}
	d.Dispatch(Event{
		Timestamp:  tr.At.UTC().Format(timestampFormat),
		Type:       typ,
		EnvelopeID: tr.EnvelopeID,
		Reason:     tr.Reason,
		SafeMode:   tr.To.String(),
	})
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Type {
			return true
		}
		if event.Code != "" && e == event.Code {
			return true
		}
	}
	return false
}
