// Package intake feeds framed commands from a spool directory into the
// engine. It stands in for a link-layer transport.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/envelope"
	"github.com/ppiankov/aegis/internal/model"
)

// Subdirectories of the spool.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// resultWait bounds how long a decision record waits for its outcome.
const resultWait = 30 * time.Second

// Submitter accepts raw commands. *engine.Engine satisfies it.
type Submitter interface {
	Submit(ctx context.Context, raw model.RawCommand) (*engine.Pending, error)
}

// Spool watches a directory for command files. Each file holds one
// RawCommand as JSON. Files are submitted in filename order, then moved to
// processed/ (with a .decision.json record) or failed/ (with a .error note).
type Spool struct {
	dir    string
	submit Submitter
	logger *slog.Logger

	Debounce     time.Duration
	PollInterval time.Duration

	mu      sync.Mutex // serializes handling
	results sync.WaitGroup
}

// NewSpool creates a spool over dir.
func NewSpool(dir string, submit Submitter, logger *slog.Logger) *Spool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spool{
		dir:          dir,
		submit:       submit,
		logger:       logger.With("component", "intake", "dir", dir),
		Debounce:     debounceDefault,
		PollInterval: pollDefault,
	}
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// EnsureDirs creates the spool and its subdirectories.
func (s *Spool) EnsureDirs() error {
	for _, d := range []string{s.dir, filepath.Join(s.dir, ProcessedDir), filepath.Join(s.dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("intake: create %s: %w", d, err)
		}
	}
	return nil
}

// Run drains files already present, then watches for new ones. Falls back
// to polling if fsnotify is unavailable. Blocks until ctx is cancelled.
func (s *Spool) Run(ctx context.Context) error {
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	defer s.results.Wait()

	if _, err := s.Drain(ctx); err != nil {
		return err
	}

	err := watchDir(ctx, s.dir, s.Debounce, func(batch []string) {
		for _, p := range batch {
			if ctx.Err() != nil {
				return
			}
			s.handle(ctx, p)
		}
		// catch files whose events were coalesced away
		_, _ = s.Drain(ctx)
	})
	if err == nil {
		return nil
	}

	s.logger.Warn("fsnotify unavailable, polling", "error", err, "interval", s.PollInterval)
	return pollDir(ctx, s.dir, s.PollInterval, func() { _, _ = s.Drain(ctx) })
}

// Drain submits every command file currently in the spool, in filename
// order, and reports how many were handled.
func (s *Spool) Drain(ctx context.Context) (int, error) {
	paths, err := listCommands(s.dir)
	if err != nil {
		return 0, fmt.Errorf("intake: scan: %w", err)
	}
	n := 0
	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		if s.handle(ctx, p) {
			n++
		}
	}
	return n, nil
}

// Wait blocks until every pending decision record is written.
func (s *Spool) Wait() {
	s.results.Wait()
}

// handle submits one file. It reports false if the file was already gone
// or the engine is closed (the file stays for the next run).
func (s *Spool) handle(ctx context.Context, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("read command file", "file", path, "error", err)
		}
		return false
	}

	var raw model.RawCommand
	if err := json.Unmarshal(data, &raw); err != nil {
		s.reject(path, fmt.Errorf("parse: %w", err))
		return true
	}

	p, err := s.submit.Submit(ctx, raw)
	switch {
	case errors.Is(err, envelope.ErrInvalidCommand):
		s.reject(path, err)
		return true
	case err != nil:
		s.logger.Warn("submit deferred", "file", path, "error", err)
		return false
	}

	dest, err := s.move(path, ProcessedDir)
	if err != nil {
		s.logger.Error("move processed file", "file", path, "error", err)
		return true
	}
	s.logger.Debug("command submitted", "file", filepath.Base(path), "envelope_id", p.Envelope.ID)

	s.results.Add(1)
	go func() {
		defer s.results.Done()
		s.record(dest, p)
	}()
	return true
}

func (s *Spool) record(dest string, p *engine.Pending) {
	ctx, cancel := context.WithTimeout(context.Background(), resultWait)
	defer cancel()

	out, err := p.Wait(ctx)
	if err != nil {
		s.logger.Warn("no decision for spooled command", "envelope_id", p.Envelope.ID, "error", err)
		return
	}
	data, err := json.MarshalIndent(out.Decision, "", "  ")
	if err != nil {
		return
	}
	path := strings.TrimSuffix(dest, ".json") + ".decision.json"
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		s.logger.Error("write decision record", "file", path, "error", err)
	}
}

func (s *Spool) reject(path string, cause error) {
	s.logger.Warn("command file rejected", "file", filepath.Base(path), "error", cause)
	dest, err := s.move(path, FailedDir)
	if err != nil {
		s.logger.Error("move failed file", "file", path, "error", err)
		return
	}
	_ = os.WriteFile(dest+".error", []byte(cause.Error()+"\n"), 0o600)
}

func (s *Spool) move(path, sub string) (string, error) {
	dest := filepath.Join(s.dir, sub, filepath.Base(path))
	return dest, os.Rename(path, dest)
}
