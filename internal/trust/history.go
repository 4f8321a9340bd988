package trust

import "sync"

// History is a fixed-size ring of prior trust scores.
type History struct {
	mu   sync.Mutex
	buf  []float64
	next int
	full bool
}

// NewHistory returns a ring holding at most size scores.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultWeights().Window
	}
	return &History{buf: make([]float64, size)}
}

// Push records a score, evicting the oldest when full.
func (h *History) Push(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = v
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Window returns the retained scores, oldest first.
func (h *History) Window() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]float64(nil), h.buf[:h.next]...)
	}
	out := make([]float64, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// Reset empties the ring.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = 0
	h.full = false
}
