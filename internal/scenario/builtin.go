package scenario

import "time"

// Builtin returns the reference scenarios: a nominal arm, a replay, a
// tampered tag, a high-altitude GOTO and an unknown key.
func Builtin() []*Scenario {
	return []*Scenario{
		{
			Name:        "nominal-arm",
			Description: "signed ARM then TAKEOFF are accepted",
			Steps: []Step{
				{Kind: "ARM", Nonce: 1, Expect: "accepted", ExpectCode: "Authorized", ExpectSafeMode: "NOMINAL"},
				{Kind: "TAKEOFF", Params: map[string]any{"alt": 10}, Nonce: 2, After: 3 * time.Second, Expect: "accepted", ExpectSafeMode: "NOMINAL"},
			},
		},
		{
			Name:        "replay",
			Description: "a captured command re-sent with the same nonce holds the vehicle",
			Steps: []Step{
				{Kind: "ARM", Nonce: 7, Expect: "accepted"},
				{Kind: "ARM", Nonce: 7, Expect: "rejected", ExpectCode: "ReplayedNonce", ExpectSafeMode: "HOLD"},
			},
		},
		{
			Name:        "tampered-tag",
			Description: "a modified authentication tag forces return to launch",
			Steps: []Step{
				{Kind: "ARM", Nonce: 1, Tamper: true, Expect: "rejected", ExpectCode: "IntegrityFailure", ExpectSafeMode: "RTL"},
			},
		},
		{
			Name:        "high-altitude-goto",
			Description: "an authentic GOTO to 500 m breaches the altitude limit",
			Steps: []Step{
				{Kind: "ARM", Nonce: 1, Expect: "accepted"},
				{
					Kind:   "GOTO",
					Params: map[string]any{"lat": 37.7749, "lon": -122.4194, "alt": 500},
					Nonce:  2, After: 3 * time.Second,
					Expect: "rejected", ExpectCode: "PhysicalLimitExceeded", ExpectSafeMode: "RTL",
				},
			},
		},
		{
			Name:        "unknown-key",
			Description: "a command signed with an unprovisioned key forces return to launch",
			Steps: []Step{
				{Kind: "ARM", Nonce: 1, KeyID: RogueKeyID, Expect: "rejected", ExpectCode: "UnknownKey", ExpectSafeMode: "RTL"},
			},
		},
	}
}
