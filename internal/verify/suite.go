package verify

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/ppiankov/aegis/internal/model"
)

// Suite names an AEAD construction used for command tags.
type Suite string

const (
	SuiteAESGCM   Suite = "aes-256-gcm"
	SuiteChaCha20 Suite = "chacha20-poly1305"
)

// ParseSuite maps a config value to a Suite. Empty selects AES-256-GCM.
func ParseSuite(s string) (Suite, error) {
	switch Suite(s) {
	case "", SuiteAESGCM:
		return SuiteAESGCM, nil
	case SuiteChaCha20:
		return SuiteChaCha20, nil
	default:
		return "", fmt.Errorf("verify: unsupported suite %q", s)
	}
}

const keyLen = 32

func (s Suite) aead(key []byte) (cipher.AEAD, error) {
	switch s {
	case SuiteChaCha20:
		return chacha20poly1305.New(key)
	default:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	}
}

// deriveKey binds a master secret to one session and key id.
func deriveKey(master []byte, sessionID, keyID string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, []byte(sessionID), []byte("aegis-command-auth/"+keyID))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("verify: derive session key: %w", err)
	}
	return key, nil
}

// aeadNonce widens the command nonce to the 96-bit AEAD nonce.
func aeadNonce(n uint64) []byte {
	b := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(b[4:], n)
	return b
}

// authBody is the authenticated portion of an envelope. The nonce is a
// string so canonicalisation cannot round it through float64.
type authBody struct {
	Kind   model.CommandKind `json:"kind"`
	Params model.Params      `json:"params"`
	Source model.SourceTag   `json:"source"`
	KeyID  string            `json:"key_id"`
	Nonce  string            `json:"nonce"`
}

// AuthenticatedData returns the RFC 8785 canonical encoding of the fields a
// tag covers.
func AuthenticatedData(env model.CommandEnvelope) ([]byte, error) {
	params := env.Params
	if params == nil {
		params = model.Params{}
	}
	raw, err := json.Marshal(authBody{
		Kind:   env.Kind,
		Params: params,
		Source: env.Source,
		KeyID:  env.KeyID,
		Nonce:  strconv.FormatUint(env.Nonce, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("verify: encode envelope: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("verify: canonicalise envelope: %w", err)
	}
	return canon, nil
}
