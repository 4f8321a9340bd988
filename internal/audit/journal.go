package audit

import (
	"log/slog"

	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/model"
)

// Journal records engine decisions and safe-mode transitions to a Log.
type Journal struct {
	log        *Log
	sessionID  string
	configHash string
	logger     *slog.Logger
}

// NewJournal returns an engine sink writing to l.
func NewJournal(l *Log, sessionID, configHash string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		log:        l,
		sessionID:  sessionID,
		configHash: configHash,
		logger:     logger.With("component", "audit"),
	}
}

// OnDecision implements engine.Sink.
func (j *Journal) OnDecision(o engine.Outcome) {
	d := o.Decision
	j.record(Entry{
		Timestamp:  d.DecidedAt.UTC().Format(TimestampFormat),
		Type:       TypeDecision,
		EnvelopeID: o.Envelope.ID,
		Command: Command{
			Kind:   string(o.Envelope.Kind),
			KeyID:  o.Envelope.KeyID,
			Nonce:  o.Envelope.Nonce,
			Source: string(o.Envelope.Source),
		},
		Verdict:  string(d.Verdict),
		Code:     string(d.Code),
		Reason:   d.Reason,
		Trust:    d.Trust.Value,
		Scored:   d.Scored,
		SafeMode: o.SafeMode.Mode.String(),
	})
}

// OnSafeMode implements engine.Sink.
func (j *Journal) OnSafeMode(tr model.SafeModeTransition) {
	j.record(Entry{
		Timestamp:  tr.At.UTC().Format(TimestampFormat),
		Type:       TypeSafeMode,
		EnvelopeID: tr.EnvelopeID,
		Reason:     tr.Reason,
		SafeMode:   tr.To.String(),
		FromMode:   tr.From.String(),
	})
}

func (j *Journal) record(e Entry) {
	e.SessionID = j.sessionID
	e.ConfigHash = j.configHash
	if err := j.log.Record(e); err != nil {
		j.logger.Error("journal write failed", "type", e.Type, "envelope", e.EnvelopeID, "error", err)
	}
}
