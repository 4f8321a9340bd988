// Package eventlog holds the bounded in-memory record of pipeline stage
// transitions.
package eventlog

import (
	"sync"

	"github.com/ppiankov/aegis/internal/model"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 100

// Log is a fixed-capacity ring of LogEvents. When full, the oldest event is
// overwritten. Eviction is silent.
type Log struct {
	mu    sync.Mutex
	buf   []model.LogEvent
	start int
	n     int
	total uint64
}

// New creates a Log holding at most capacity events.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]model.LogEvent, capacity)}
}

// Append records an event. It never waits on readers beyond a short
// critical section.
func (l *Log) Append(ev model.LogEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.start + l.n) % len(l.buf)
	l.buf[idx] = ev
	if l.n < len(l.buf) {
		l.n++
	} else {
		l.start = (l.start + 1) % len(l.buf)
	}
	l.total++
}

// Recent returns up to n most recent events, oldest first.
// n <= 0 returns everything retained.
func (l *Log) Recent(n int) []model.LogEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.n {
		n = l.n
	}
	out := make([]model.LogEvent, n)
	first := l.start + (l.n - n)
	for i := 0; i < n; i++ {
		out[i] = l.buf[(first+i)%len(l.buf)]
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Capacity returns the ring size.
func (l *Log) Capacity() int {
	return len(l.buf)
}

// Total returns how many events were ever appended, including evicted ones.
func (l *Log) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
