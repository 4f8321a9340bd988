package model

import "fmt"

// LifecycleStatus is the forward-only processing state of an envelope.
type LifecycleStatus int

const (
	StatusCreated LifecycleStatus = iota
	StatusDispatched
	StatusValidating
	StatusAccepted
	StatusRejected
)

func (s LifecycleStatus) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusDispatched:
		return "DISPATCHED"
	case StatusValidating:
		return "VALIDATING"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name.
func (s LifecycleStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *LifecycleStatus) UnmarshalText(b []byte) error {
	for v := StatusCreated; v <= StatusRejected; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown lifecycle status %q", b)
}

// Terminal reports whether no further transition is possible.
func (s LifecycleStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanAdvance reports whether next is the immediate successor of s.
// VALIDATING is the only fork: it may move to ACCEPTED or REJECTED.
func (s LifecycleStatus) CanAdvance(next LifecycleStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusDispatched
	case StatusDispatched:
		return next == StatusValidating
	case StatusValidating:
		return next == StatusAccepted || next == StatusRejected
	default:
		return false
	}
}
