// Package engine runs the validation pipeline for one session: intake,
// verification, feature extraction, scoring, fusion and safe mode.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ppiankov/aegis/internal/clock"
	"github.com/ppiankov/aegis/internal/envelope"
	"github.com/ppiankov/aegis/internal/eventlog"
	"github.com/ppiankov/aegis/internal/features"
	"github.com/ppiankov/aegis/internal/fusion"
	"github.com/ppiankov/aegis/internal/model"
	"github.com/ppiankov/aegis/internal/safemode"
	"github.com/ppiankov/aegis/internal/trust"
	"github.com/ppiankov/aegis/internal/vehicle"
	"github.com/ppiankov/aegis/internal/verify"
)

// ErrClosed is returned by Submit after Close, and by Wait for envelopes
// abandoned at teardown.
var ErrClosed = envelope.ErrClosed

// Option customises an Engine.
type Option func(*Engine)

// WithClock sets the time source for timestamps and dwell timers.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithScorer replaces the rule-based scorer.
func WithScorer(s trust.Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithVerifier replaces the keyring-backed AEAD verifier.
func WithVerifier(v verify.Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithSink adds decision and safe-mode consumers.
func WithSink(s ...Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, s...) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

type job struct {
	env     model.CommandEnvelope
	snap    features.Snapshot
	pending *Pending

	ctx    context.Context
	cancel context.CancelFunc
	vr     model.VerificationResult
	// expired is set when the budget ran out before verification finished.
	expired bool
}

// Engine owns one session. All state it mutates is reachable only through
// it, so independent engines never share anything.
type Engine struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	queue     *envelope.Queue
	verifier  verify.Verifier
	session   *verify.Session
	extractor *features.Extractor
	history   *features.History
	scorer    trust.Scorer
	scores    *trust.History
	vehicle   *vehicle.Vehicle
	safe      *safemode.Machine
	events    *eventlog.Log

	sinkMu sync.Mutex
	sinks  []Sink

	submitMu sync.Mutex
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     map[string]*job
	closed   bool

	// effectMu serializes decisions' side effects: lifecycle, vehicle,
	// history and safe mode.
	effectMu sync.Mutex

	work   chan *job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a session. keyring may be nil only when WithVerifier is given.
func New(cfg Config, keyring *verify.Keyring, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	e := &Engine{cfg: cfg, jobs: make(map[string]*job)}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine", "session", cfg.SessionID)

	if e.verifier == nil {
		if keyring == nil {
			return nil, errors.New("engine: keyring required without a custom verifier")
		}
		e.session = verify.NewSession(cfg.SessionID)
		e.verifier = verify.NewAEADVerifier(cfg.Suite, keyring, e.session)
	}
	if e.scorer == nil {
		e.scorer = trust.NewRuleScorer(cfg.Weights)
	}

	now := e.clock.Now()
	e.queue = envelope.NewQueue(e.clock, cfg.QueueDepth)
	e.extractor = features.NewExtractor(cfg.Bounds)
	e.history = features.NewHistory(now, 0, e.extractor.Bounds().ModeWindow)
	e.scores = trust.NewHistory(cfg.Weights.Window)
	e.vehicle = vehicle.New(cfg.Home)
	e.events = eventlog.New(cfg.LogCapacity)
	e.safe = safemode.New(e.clock, cfg.Dwell, e.events, e.onSafeMode)
	e.cond = sync.NewCond(&e.mu)

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.work = make(chan *job, cfg.Workers)
	e.wg.Add(1 + cfg.Workers)
	go e.dispatch()
	for i := 0; i < cfg.Workers; i++ {
		go e.worker()
	}

	e.logger.Info("session started", "suite", cfg.Suite, "budget", cfg.Budget, "workers", cfg.Workers)
	return e, nil
}

// Submit frames raw and queues it for validation. Malformed commands fail
// here with envelope.ErrInvalidCommand and never reach fusion.
func (e *Engine) Submit(ctx context.Context, raw model.RawCommand) (*Pending, error) {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	snap := e.history.Capture(e.clock.Now(), e.vehicle.Snapshot())
	env, err := e.queue.Submit(ctx, raw)
	if err != nil {
		if errors.Is(err, envelope.ErrInvalidCommand) {
			e.record(model.CatIntake, model.SeverityWarning, err.Error(), "")
		}
		return nil, err
	}
	e.history.Seen(env.ReceivedAt)

	e.record(model.CatReceived, model.SeverityInfo,
		fmt.Sprintf("%s received from %s (key %s, nonce %d)", env.Kind, env.Source, env.KeyID, env.Nonce), env.ID)

	// The dispatcher waits in claim until the job is registered.
	p := newPending(env)
	e.mu.Lock()
	e.jobs[env.ID] = &job{env: env, snap: snap, pending: p}
	e.cond.Broadcast()
	e.mu.Unlock()
	return p, nil
}

// dispatch is the only goroutine that verifies, so nonces are checked in
// submission order.
func (e *Engine) dispatch() {
	defer e.wg.Done()
	defer close(e.work)

	for {
		env, err := e.queue.Next(e.ctx)
		if err != nil {
			return
		}
		j := e.claim(env.ID)
		if j == nil {
			return
		}
		j.ctx, j.cancel = context.WithTimeout(e.ctx, e.cfg.Budget)

		if err := e.advance(j, model.StatusDispatched); err != nil {
			continue
		}
		if err := e.advance(j, model.StatusValidating); err != nil {
			continue
		}

		vr, err := e.verify(j)
		switch {
		case err != nil && j.ctx.Err() != nil:
			if e.ctx.Err() != nil {
				e.abandon(j)
				return
			}
			j.expired = true
			e.record(model.CatTimeout, model.SeverityError,
				fmt.Sprintf("validation budget %s exceeded during verification", e.cfg.Budget), env.ID)
		case err != nil:
			vr = model.Failed(model.FailureIntegrity, fmt.Sprintf("verifier error: %v", err))
			e.record(model.CatCryptoFail, model.SeverityError, vr.Detail, env.ID)
		case vr.Valid:
			e.record(model.CatCryptoOK, model.SeveritySuccess,
				fmt.Sprintf("signature valid, nonce %d fresh", env.Nonce), env.ID)
		default:
			e.record(model.CatCryptoFail, model.SeverityError,
				fmt.Sprintf("%s: %s", vr.Failure, vr.Detail), env.ID)
		}
		j.vr = vr

		select {
		case e.work <- j:
		case <-e.ctx.Done():
			e.abandon(j)
			return
		}
	}
}

func (e *Engine) claim(id string) *job {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if j, ok := e.jobs[id]; ok {
			return j
		}
		if e.closed {
			return nil
		}
		e.cond.Wait()
	}
}

func (e *Engine) advance(j *job, next model.LifecycleStatus) error {
	if err := e.queue.Advance(j.env.ID, next); err != nil {
		e.record(model.CatLifecycle, model.SeverityError, err.Error(), j.env.ID)
		e.logger.Error("lifecycle violation", "envelope", j.env.ID, "error", err)
		j.cancel()
		j.pending.fail(err)
		e.forget(j)
		return err
	}
	j.env.Status = next
	return nil
}

func (e *Engine) verify(j *job) (model.VerificationResult, error) {
	type result struct {
		vr  model.VerificationResult
		err error
	}
	ch := make(chan result, 1)
	go func() {
		vr, err := e.verifier.Verify(j.ctx, j.env)
		ch <- result{vr, err}
	}()
	select {
	case r := <-ch:
		return r.vr, r.err
	case <-j.ctx.Done():
		return model.VerificationResult{}, j.ctx.Err()
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for j := range e.work {
		e.process(j)
	}
}

func (e *Engine) process(j *job) {
	defer j.cancel()
	if e.ctx.Err() != nil {
		e.abandon(j)
		return
	}
	if j.expired {
		e.finish(j, model.FeatureVector{EnvelopeID: j.env.ID}, fusion.Timeout(j.vr, "verification"))
		return
	}

	vec := e.extractor.Extract(j.env, j.snap)
	if vec.HardBreach() {
		f, _ := vec.Dominant()
		e.record(model.CatFeature, model.SeverityError,
			fmt.Sprintf("%s: %s %.2f exceeds physical limit %.2f", model.CodePhysicalLimitExceeded, f.Name, f.Value, f.Bound), j.env.ID)
	}

	raw, err := e.score(j, vec)
	if e.ctx.Err() != nil {
		e.abandon(j)
		return
	}

	var d model.Decision
	switch {
	case err != nil && j.ctx.Err() != nil:
		e.record(model.CatTimeout, model.SeverityError,
			fmt.Sprintf("validation budget %s exceeded during scoring", e.cfg.Budget), j.env.ID)
		d = fusion.Timeout(j.vr, "scoring")
	case err != nil:
		e.record(model.CatScore, model.SeverityError, fmt.Sprintf("trust scoring failed: %v", err), j.env.ID)
		d = fusion.Unscored(j.vr, err)
	default:
		ts := trust.EnforceHardLimits(vec, raw)
		e.scores.Push(ts.Value)
		sev := model.SeverityInfo
		msg := fmt.Sprintf("trust score %.2f", ts.Value)
		if ts.Value < 0 {
			sev = model.SeverityWarning
		}
		if ts.Dominant != "" {
			msg += " (dominant " + ts.Dominant + ")"
		}
		e.record(model.CatScore, sev, msg, j.env.ID)
		d = fusion.Decide(j.vr, ts)
	}
	e.finish(j, vec, d)
}

func (e *Engine) score(j *job, vec model.FeatureVector) (float64, error) {
	type result struct {
		v   float64
		err error
	}
	history := e.scores.Window()
	ch := make(chan result, 1)
	go func() {
		v, err := e.scorer.Score(j.ctx, vec, history)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return 0, r.err
		}
		return r.v, nil
	case <-j.ctx.Done():
		return 0, j.ctx.Err()
	}
}

// finish applies a decision's side effects and publishes it.
func (e *Engine) finish(j *job, vec model.FeatureVector, d model.Decision) {
	e.effectMu.Lock()
	defer e.effectMu.Unlock()

	now := e.clock.Now()
	d.EnvelopeID = j.env.ID
	d.DecidedAt = now

	next := model.StatusRejected
	if d.Accepted() {
		next = model.StatusAccepted
	}
	if err := e.advance(j, next); err != nil {
		return
	}

	if d.Accepted() {
		changed := e.vehicle.Apply(j.env)
		e.history.Accept(j.env.ReceivedAt, changed, vec)
	}

	sev := model.SeveritySuccess
	if !d.Accepted() {
		sev = model.SeverityError
	}
	e.record(model.CatDecision, sev, fmt.Sprintf("%s %s: %s", j.env.Kind, d.Verdict, d.Reason), j.env.ID)

	state, _ := e.safe.Observe(d)
	out := Outcome{
		Envelope: j.env,
		Features: vec,
		Decision: d,
		SafeMode: state,
		Latency:  now.Sub(j.env.ReceivedAt),
	}

	e.sinkMu.Lock()
	for _, s := range e.sinks {
		s.OnDecision(out)
	}
	e.sinkMu.Unlock()

	e.forget(j)
	j.pending.resolve(out)

	if d.Accepted() {
		e.logger.Info("command accepted", "envelope", j.env.ID, "kind", j.env.Kind, "trust", d.Trust.Value)
	} else {
		e.logger.Warn("command rejected", "envelope", j.env.ID, "kind", j.env.Kind, "code", d.Code, "reason", d.Reason)
	}
}

// onSafeMode runs under the safe-mode machine's lock.
func (e *Engine) onSafeMode(tr model.SafeModeTransition) {
	if tr.To == model.SafeNominal {
		e.vehicle.Release()
		e.logger.Info("safe mode cleared", "from", tr.From, "reason", tr.Reason)
	} else {
		e.vehicle.Override(tr.To.FlightMode())
		e.logger.Warn("safe mode engaged", "from", tr.From, "to", tr.To, "reason", tr.Reason)
	}

	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	for _, s := range e.sinks {
		s.OnSafeMode(tr)
	}
}

func (e *Engine) abandon(j *job) {
	if j.cancel != nil {
		j.cancel()
	}
	j.pending.fail(ErrClosed)
	e.forget(j)
}

func (e *Engine) forget(j *job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.jobs, j.env.ID)
}

func (e *Engine) record(category string, sev model.Severity, msg, envelopeID string) {
	e.events.Append(model.LogEvent{
		Timestamp:  e.clock.Now(),
		Category:   category,
		Message:    msg,
		Severity:   sev,
		EnvelopeID: envelopeID,
	})
}

// Events returns the last n log events in arrival order; n <= 0 returns all
// retained events.
func (e *Engine) Events(n int) []model.LogEvent {
	return e.events.Recent(n)
}

// SafeMode returns the current safe-mode state.
func (e *Engine) SafeMode() model.SafeModeState {
	return e.safe.State()
}

// Vehicle returns a snapshot of the vehicle.
func (e *Engine) Vehicle() model.VehicleState {
	return e.vehicle.Snapshot()
}

// Status returns the lifecycle status of a recent envelope.
func (e *Engine) Status(id string) (model.LifecycleStatus, bool) {
	return e.queue.Status(id)
}

// SessionID returns the session identifier keys are bound to.
func (e *Engine) SessionID() string {
	return e.cfg.SessionID
}

// Close stops intake, abandons undecided envelopes and resets all session
// state. It is safe to call more than once.
func (e *Engine) Close() error {
	e.submitMu.Lock()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.submitMu.Unlock()
		return nil
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.submitMu.Unlock()

	e.queue.Close()
	e.cancel()
	e.wg.Wait()

	e.mu.Lock()
	for _, j := range e.jobs {
		j.pending.fail(ErrClosed)
	}
	e.jobs = make(map[string]*job)
	e.mu.Unlock()

	e.safe.Reset()
	e.vehicle.Reset()
	e.scores.Reset()
	e.history.Reset(e.clock.Now())
	if e.session != nil {
		e.session.Reset()
	}
	e.logger.Info("session closed")
	return nil
}
