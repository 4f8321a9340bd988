package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CommandKind identifies a control instruction.
type CommandKind string

const (
	KindArm            CommandKind = "ARM"
	KindDisarm         CommandKind = "DISARM"
	KindTakeoff        CommandKind = "TAKEOFF"
	KindLand           CommandKind = "LAND"
	KindReturnToLaunch CommandKind = "RTL"
	KindGotoPosition   CommandKind = "GOTO"
	KindSetMode        CommandKind = "SET_MODE"
	KindSetVelocity    CommandKind = "SET_VELOCITY"
)

// Kinds lists every supported command kind.
var Kinds = []CommandKind{
	KindArm, KindDisarm, KindTakeoff, KindLand,
	KindReturnToLaunch, KindGotoPosition, KindSetMode, KindSetVelocity,
}

// ParseKind maps a wire string to a CommandKind. Matching is case-insensitive
// and accepts the long aliases used by some ground stations.
func ParseKind(s string) (CommandKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ARM":
		return KindArm, nil
	case "DISARM":
		return KindDisarm, nil
	case "TAKEOFF":
		return KindTakeoff, nil
	case "LAND":
		return KindLand, nil
	case "RTL", "RETURN_TO_LAUNCH":
		return KindReturnToLaunch, nil
	case "GOTO", "GOTO_POSITION":
		return KindGotoPosition, nil
	case "SET_MODE":
		return KindSetMode, nil
	case "SET_VELOCITY":
		return KindSetVelocity, nil
	default:
		return "", fmt.Errorf("unknown command kind %q", s)
	}
}

// SourceTag is a provenance hint. It never grants trust.
type SourceTag string

const (
	SourceKnownGroundStation SourceTag = "known_ground_station"
	SourceUnverified         SourceTag = "unverified"
)

// ParseSource coerces a wire value; anything unrecognised is unverified.
func ParseSource(s string) SourceTag {
	if SourceTag(s) == SourceKnownGroundStation {
		return SourceKnownGroundStation
	}
	return SourceUnverified
}

// Params holds kind-specific command parameters. Values are float64 or string.
type Params map[string]any

// Float returns the named parameter as a float64.
func (p Params) Float(name string) (float64, bool) {
	switch v := p[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String returns the named parameter as a string.
func (p Params) String(name string) (string, bool) {
	s, ok := p[name].(string)
	return s, ok
}

// Clone returns a shallow copy so an envelope never aliases caller memory.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// RawCommand is a framed command as delivered by the transport layer.
type RawCommand struct {
	Kind    string         `json:"kind" yaml:"kind"`
	Params  map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Source  string         `json:"source,omitempty" yaml:"source,omitempty"`
	KeyID   string         `json:"key_id" yaml:"key_id"`
	Nonce   uint64         `json:"nonce" yaml:"nonce"`
	AuthTag string         `json:"auth_tag" yaml:"auth_tag"` // base64
}

// CommandEnvelope is one inbound control instruction plus its
// cryptographic and provenance metadata.
type CommandEnvelope struct {
	ID         string          `json:"id"`
	Kind       CommandKind     `json:"kind"`
	Params     Params          `json:"params"`
	Source     SourceTag       `json:"source"`
	KeyID      string          `json:"key_id"`
	Nonce      uint64          `json:"nonce"`
	AuthTag    []byte          `json:"auth_tag"`
	ReceivedAt time.Time       `json:"received_at"`
	Status     LifecycleStatus `json:"status"`
}
