package verify

import (
	"encoding/base64"
	"fmt"

	"github.com/ppiankov/aegis/internal/envelope"
	"github.com/ppiankov/aegis/internal/model"
)

// Signer produces command tags on the ground-station side.
type Signer struct {
	suite   Suite
	keyring *Keyring
	session *Session
}

// NewSigner creates a signer for sessionID. It keeps its own key cache and
// never touches a verifier's nonce mark.
func NewSigner(suite Suite, keyring *Keyring, sessionID string) *Signer {
	return &Signer{suite: suite, keyring: keyring, session: NewSession(sessionID)}
}

// Tag computes the tag for env.
func (s *Signer) Tag(env model.CommandEnvelope) ([]byte, error) {
	key, err := s.session.key(s.keyring, env.KeyID)
	if err != nil {
		return nil, err
	}
	aead, err := s.suite.aead(key)
	if err != nil {
		return nil, fmt.Errorf("verify: init %s: %w", s.suite, err)
	}
	aad, err := AuthenticatedData(env)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, aeadNonce(env.Nonce), nil, aad), nil
}

// SignRaw frames raw exactly as the gate will and fills in AuthTag.
func (s *Signer) SignRaw(raw model.RawCommand) (model.RawCommand, error) {
	raw.AuthTag = ""
	env, err := envelope.Build(raw)
	if err != nil {
		return raw, err
	}
	tag, err := s.Tag(env)
	if err != nil {
		return raw, err
	}
	raw.AuthTag = base64.StdEncoding.EncodeToString(tag)
	return raw, nil
}
