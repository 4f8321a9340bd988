// Package verify authenticates command envelopes and enforces nonce freshness.
// It never looks at what a command asks the vehicle to do.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/aegis/internal/model"
)

// Verifier decides whether an envelope is authentic and fresh.
// The error return is reserved for infrastructure failures such as a
// cancelled context; authentication failures are reported in the result.
type Verifier interface {
	Verify(ctx context.Context, env model.CommandEnvelope) (model.VerificationResult, error)
}

// AEADVerifier checks tags produced by Signer for the same suite, keyring
// and session.
type AEADVerifier struct {
	suite   Suite
	keyring *Keyring
	session *Session
}

// NewAEADVerifier creates a verifier bound to session.
func NewAEADVerifier(suite Suite, keyring *Keyring, session *Session) *AEADVerifier {
	return &AEADVerifier{suite: suite, keyring: keyring, session: session}
}

// Session returns the bound session.
func (v *AEADVerifier) Session() *Session {
	return v.session
}

// Verify checks, in order: key id known, tag authentic, nonce fresh.
// The nonce mark only advances when all three pass.
func (v *AEADVerifier) Verify(ctx context.Context, env model.CommandEnvelope) (model.VerificationResult, error) {
	if err := ctx.Err(); err != nil {
		return model.VerificationResult{}, err
	}

	key, err := v.session.key(v.keyring, env.KeyID)
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return model.Failed(model.FailureUnknown, fmt.Sprintf("key %q is not registered", env.KeyID)), nil
		}
		return model.VerificationResult{}, err
	}

	aead, err := v.suite.aead(key)
	if err != nil {
		return model.VerificationResult{}, fmt.Errorf("verify: init %s: %w", v.suite, err)
	}
	aad, err := AuthenticatedData(env)
	if err != nil {
		return model.VerificationResult{}, err
	}
	if len(env.AuthTag) != aead.Overhead() {
		return model.Failed(model.FailureIntegrity, "auth tag has wrong length"), nil
	}
	if _, err := aead.Open(nil, aeadNonce(env.Nonce), env.AuthTag, aad); err != nil {
		return model.Failed(model.FailureIntegrity, "auth tag mismatch"), nil
	}

	if !v.session.Admit(env.Nonce) {
		mark, _ := v.session.HighWater()
		return model.Failed(model.FailureReplay, fmt.Sprintf("nonce %d not above high-water mark %d", env.Nonce, mark)), nil
	}
	return model.Verified(), nil
}
