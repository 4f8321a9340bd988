// Package envelope turns framed commands into tracked envelopes and enforces
// their forward-only lifecycle.
package envelope

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ppiankov/aegis/internal/clock"
	"github.com/ppiankov/aegis/internal/model"
)

var (
	// ErrInvalidTransition is returned when a lifecycle step skips or
	// revisits a stage. It signals an integration bug, not an attack.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrUnknownEnvelope is returned for ids this queue never issued or has
	// already forgotten.
	ErrUnknownEnvelope = errors.New("unknown envelope")
	// ErrInvalidCommand is returned when a raw command cannot be framed.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("queue closed")
)

const (
	// DefaultDepth is the intake buffer size.
	DefaultDepth = 256
	// DefaultRetain bounds how many finished envelopes stay queryable.
	DefaultRetain = 4096
)

// Queue assigns identities to commands, keeps submission order, and tracks
// each envelope's lifecycle.
type Queue struct {
	clock  clock.Clock
	retain int

	submitMu sync.Mutex
	ch       chan model.CommandEnvelope

	mu       sync.Mutex
	status   map[string]model.LifecycleStatus
	finished []string
	closed   bool
	done     chan struct{}
}

// NewQueue creates a queue with the given buffer depth.
func NewQueue(clk clock.Clock, depth int) *Queue {
	if clk == nil {
		clk = clock.Real()
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Queue{
		clock:  clk,
		retain: DefaultRetain,
		ch:     make(chan model.CommandEnvelope, depth),
		status: make(map[string]model.LifecycleStatus),
		done:   make(chan struct{}),
	}
}

// Submit frames raw, stamps it CREATED with a fresh id and intake time, and
// enqueues it. Envelopes leave Next in the order Submit returned them.
// Submit waits for buffer space until ctx is done.
func (q *Queue) Submit(ctx context.Context, raw model.RawCommand) (model.CommandEnvelope, error) {
	env, err := Build(raw)
	if err != nil {
		return model.CommandEnvelope{}, err
	}

	q.submitMu.Lock()
	defer q.submitMu.Unlock()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return model.CommandEnvelope{}, ErrClosed
	}
	id := uuid.NewString()
	for _, taken := q.status[id]; taken; _, taken = q.status[id] {
		id = uuid.NewString()
	}
	env.ID = id
	env.ReceivedAt = q.clock.Now()
	env.Status = model.StatusCreated
	q.status[id] = model.StatusCreated
	q.mu.Unlock()

	select {
	case q.ch <- env:
		return env, nil
	case <-q.done:
		q.forget(id)
		return model.CommandEnvelope{}, ErrClosed
	case <-ctx.Done():
		q.forget(id)
		return model.CommandEnvelope{}, fmt.Errorf("envelope: enqueue: %w", ctx.Err())
	}
}

// Next blocks until an envelope is available, ctx is done, or the queue is
// closed and drained.
func (q *Queue) Next(ctx context.Context) (model.CommandEnvelope, error) {
	select {
	case env := <-q.ch:
		return env, nil
	default:
	}
	select {
	case env := <-q.ch:
		return env, nil
	case <-q.done:
		select {
		case env := <-q.ch:
			return env, nil
		default:
			return model.CommandEnvelope{}, ErrClosed
		}
	case <-ctx.Done():
		return model.CommandEnvelope{}, ctx.Err()
	}
}

// Advance moves id to next. It fails with ErrInvalidTransition unless next
// strictly follows the current status.
func (q *Queue) Advance(id string, next model.LifecycleStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.status[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEnvelope, id)
	}
	if !cur.CanAdvance(next) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, cur, next, id)
	}
	q.status[id] = next

	if next.Terminal() {
		q.finished = append(q.finished, id)
		for len(q.finished) > q.retain {
			delete(q.status, q.finished[0])
			q.finished = q.finished[1:]
		}
	}
	return nil
}

// Status returns the current lifecycle status of id.
func (q *Queue) Status(id string) (model.LifecycleStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.status[id]
	return s, ok
}

// Len returns the number of envelopes waiting to be dispatched.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops intake. Envelopes already queued can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) forget(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.status, id)
}
