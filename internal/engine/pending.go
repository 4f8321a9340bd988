package engine

import (
	"context"
	"sync"

	"github.com/ppiankov/aegis/internal/model"
)

// Pending is the handle for a submitted envelope.
type Pending struct {
	Envelope model.CommandEnvelope

	once sync.Once
	done chan struct{}
	out  Outcome
	err  error
}

func newPending(env model.CommandEnvelope) *Pending {
	return &Pending{Envelope: env, done: make(chan struct{})}
}

// Done is closed once the envelope has a decision or was abandoned.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the outcome is ready or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.out, p.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (p *Pending) resolve(o Outcome) {
	p.once.Do(func() {
		p.out = o
		close(p.done)
	})
}

func (p *Pending) fail(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}
