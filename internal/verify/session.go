package verify

import (
	"sync"
)

// Session holds the freshness state bound to one active link session.
// Its nonce high-water mark is the only mutable crypto state.
type Session struct {
	ID string

	mu      sync.Mutex
	mark    uint64
	hasMark bool
	keys    map[string][]byte
	keyGen  uint64
}

// NewSession creates session state with no accepted nonce.
func NewSession(id string) *Session {
	return &Session{ID: id, keys: make(map[string][]byte)}
}

// Admit atomically checks nonce against the high-water mark and advances it.
// It reports false, leaving the mark untouched, for any nonce at or below it.
func (s *Session) Admit(nonce uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasMark && nonce <= s.mark {
		return false
	}
	s.mark = nonce
	s.hasMark = true
	return true
}

// HighWater returns the last admitted nonce.
func (s *Session) HighWater() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mark, s.hasMark
}

// Reset forgets the mark and cached keys. Called on session teardown.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mark = 0
	s.hasMark = false
	s.keys = make(map[string][]byte)
}

func (s *Session) key(keyring *Keyring, keyID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := keyring.Generation(); g != s.keyGen {
		s.keys = make(map[string][]byte)
		s.keyGen = g
	}
	if k, ok := s.keys[keyID]; ok {
		return k, nil
	}
	master, err := keyring.secret(keyID)
	if err != nil {
		return nil, err
	}
	k, err := deriveKey(master, s.ID, keyID)
	if err != nil {
		return nil, err
	}
	s.keys[keyID] = k
	return k, nil
}
