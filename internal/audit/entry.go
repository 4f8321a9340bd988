package audit

// Entry types.
const (
	TypeDecision = "decision"
	TypeSafeMode = "safe_mode"
)

// Command is the flattened envelope recorded in a decision entry.
type Command struct {
	Kind   string `json:"kind"`
	KeyID  string `json:"key_id"`
	Nonce  uint64 `json:"nonce"`
	Source string `json:"source"`
}

// Entry is one line in the hash-chained JSONL audit journal.
// All fields are structs (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp  string  `json:"ts"`
	Type       string  `json:"type"`
	SessionID  string  `json:"session_id"`
	EnvelopeID string  `json:"envelope_id,omitempty"`
	Command    Command `json:"command"`
	Verdict    string  `json:"verdict,omitempty"`
	Code       string  `json:"code,omitempty"`
	Reason     string  `json:"reason"`
	Trust      float64 `json:"trust"`
	Scored     bool    `json:"scored"`
	SafeMode   string  `json:"safe_mode"`
	FromMode   string  `json:"from_mode,omitempty"`
	ConfigHash string  `json:"config_hash"`
	PrevHash   string  `json:"prev_hash"`
}
