package aegisv1

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/aegis/internal/model"
)

// CommandToStruct encodes raw for the wire. The nonce travels as a decimal
// string so uint64 values survive the float64 number type.
func CommandToStruct(raw model.RawCommand) (*structpb.Struct, error) {
	params := make(map[string]any, len(raw.Params))
	for k, v := range raw.Params {
		params[k] = v
	}
	return structpb.NewStruct(map[string]any{
		"kind":     raw.Kind,
		"params":   params,
		"source":   raw.Source,
		"key_id":   raw.KeyID,
		"nonce":    strconv.FormatUint(raw.Nonce, 10),
		"auth_tag": raw.AuthTag,
	})
}

// CommandFromStruct decodes a wire command. The nonce may be a number or a
// decimal string.
func CommandFromStruct(s *structpb.Struct) (model.RawCommand, error) {
	m := s.AsMap()
	switch n := m["nonce"].(type) {
	case nil:
	case string:
		v, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return model.RawCommand{}, fmt.Errorf("nonce: %w", err)
		}
		m["nonce"] = v
	case float64:
		if n < 0 || n != math.Trunc(n) || n > 1<<53 {
			return model.RawCommand{}, fmt.Errorf("nonce: %v is not an exact unsigned integer", n)
		}
		m["nonce"] = uint64(n)
	default:
		return model.RawCommand{}, fmt.Errorf("nonce: unsupported type %T", n)
	}

	var raw model.RawCommand
	data, err := json.Marshal(m)
	if err != nil {
		return raw, err
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return raw, fmt.Errorf("decode command: %w", err)
	}
	return raw, nil
}

// ToStruct converts any JSON-encodable value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("value is not a JSON object: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes s into v through its JSON form. A nil v is a no-op.
func FromStruct(s *structpb.Struct, v any) error {
	if v == nil {
		return nil
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SubmitResponse is the Submit reply.
type SubmitResponse struct {
	EnvelopeID string              `json:"envelope_id"`
	Decision   model.Decision      `json:"decision"`
	SafeMode   model.SafeModeState `json:"safe_mode"`
	LatencyMS  float64             `json:"latency_ms"`
}

// StatusResponse is the SafeMode reply.
type StatusResponse struct {
	SessionID string              `json:"session_id"`
	SafeMode  model.SafeModeState `json:"safe_mode"`
	Vehicle   model.VehicleState  `json:"vehicle"`
}

// EventsResponse is the RecentEvents reply.
type EventsResponse struct {
	Events []model.LogEvent `json:"events"`
}
