package trust

import (
	"context"
	"sync"

	"github.com/ppiankov/aegis/internal/model"
)

// Stub returns injected scores. It lets tests drive fusion and safe mode
// with arbitrary values.
type Stub struct {
	mu      sync.Mutex
	scores  []float64
	i       int
	err     error
	release <-chan struct{}
}

// Fixed returns v on every call.
func Fixed(v float64) *Stub {
	return &Stub{scores: []float64{v}}
}

// Sequence returns vs in order, repeating the last value once exhausted.
func Sequence(vs ...float64) *Stub {
	if len(vs) == 0 {
		vs = []float64{0}
	}
	return &Stub{scores: append([]float64(nil), vs...)}
}

// Failing returns err on every call.
func Failing(err error) *Stub {
	return &Stub{scores: []float64{0}, err: err}
}

// Blocking ignores its context and waits for release before scoring v.
func Blocking(v float64, release <-chan struct{}) *Stub {
	return &Stub{scores: []float64{v}, release: release}
}

// Score implements Scorer.
func (s *Stub) Score(_ context.Context, _ model.FeatureVector, _ []float64) (float64, error) {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	v := s.scores[s.i]
	if s.i < len(s.scores)-1 {
		s.i++
	}
	return v, nil
}
