package verify

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// MinSecretLen is the shortest master secret the keyring accepts.
const MinSecretLen = 16

// ErrUnknownKey is returned when a key id is not in the keyring.
var ErrUnknownKey = errors.New("unknown key")

// Keyring maps key ids to master secrets shared with ground stations.
type Keyring struct {
	mu      sync.RWMutex
	secrets map[string][]byte
	// gen changes on every Add or Revoke so sessions drop derived keys.
	gen uint64
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{secrets: make(map[string][]byte)}
}

// Add registers a master secret under id, replacing any previous one.
func (k *Keyring) Add(id string, secret []byte) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("verify: key id must not be empty")
	}
	if len(secret) < MinSecretLen {
		return fmt.Errorf("verify: key %q: secret must be at least %d bytes", id, MinSecretLen)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.secrets[id] = append([]byte(nil), secret...)
	k.gen++
	return nil
}

// Revoke removes id from the keyring.
func (k *Keyring) Revoke(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.secrets[id]; ok {
		delete(k.secrets, id)
		k.gen++
	}
}

// Generation changes whenever the key set changes.
func (k *Keyring) Generation() uint64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.gen
}

// IDs returns the registered key ids in sorted order.
func (k *Keyring) IDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ids := make([]string, 0, len(k.secrets))
	for id := range k.secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (k *Keyring) secret(id string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.secrets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, id)
	}
	return s, nil
}

// DecodeSecret parses a configured secret. Accepted forms:
// "env:NAME" (read from the environment, then decoded), "hex:..",
// "base64:..", or a bare hex string.
func DecodeSecret(spec string) ([]byte, error) {
	spec = strings.TrimSpace(spec)
	if name, ok := strings.CutPrefix(spec, "env:"); ok {
		val := os.Getenv(name)
		if val == "" {
			return nil, fmt.Errorf("verify: environment variable %s is empty", name)
		}
		return DecodeSecret(val)
	}
	if b64, ok := strings.CutPrefix(spec, "base64:"); ok {
		return base64.StdEncoding.DecodeString(b64)
	}
	spec = strings.TrimPrefix(spec, "hex:")
	b, err := hex.DecodeString(spec)
	if err != nil {
		return nil, fmt.Errorf("verify: secret is not hex: %w", err)
	}
	return b, nil
}
