// internal/crypto/manager.go (secretbox variant)
package crypto

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"burnbox.dev/internal/settings"
)

const (
	KeySize   = 32
	NonceSize = 24 // secretbox standard nonce size
)

// ErrDecryptionFailed covers both malformed tokens and authentication-tag
// mismatches. Callers must surface it, never substitute empty plaintext.
var ErrDecryptionFailed = errors.New("decryption failed")

// Manager holds the process-wide symmetric key and performs authenticated
// encryption of secret payloads. The key is resolved once, in order:
// operator override, key stored in the settings store, key generated on
// first run and persisted. When no key resolves the manager runs in
// degraded mode: payloads pass through unencrypted and Available reports
// false so the host can warn the operator.
type Manager struct {
	store    settings.Store
	override string

	// key is written once during construction and read-only afterwards.
	key *[KeySize]byte
}

// NewManager resolves the key eagerly so degraded mode is known at
// startup. A non-nil error means the backing store failed or configured
// key material is malformed; degraded mode itself is not an error.
func NewManager(ctx context.Context, store settings.Store, overrideBase64 string) (*Manager, error) {
	m := &Manager{store: store, override: overrideBase64}
	if err := m.resolveKey(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Available reports whether a key resolved and payloads are actually
// encrypted at rest.
func (m *Manager) Available() bool {
	return m.key != nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// base64url-nopad(nonce‖ciphertext). In degraded mode the plaintext is
// returned unchanged.
func (m *Manager) Encrypt(plaintext []byte) (string, error) {
	if !m.Available() {
		return string(plaintext), nil
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, m.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. In degraded mode the token is returned
// unchanged.
func (m *Manager) Decrypt(token string) ([]byte, error) {
	if !m.Available() {
		return []byte(token), nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(decoded) < NonceSize+secretbox.Overhead {
		return nil, ErrDecryptionFailed
	}

	var nonce [NonceSize]byte
	copy(nonce[:], decoded[:NonceSize])

	plaintext, ok := secretbox.Open(nil, decoded[NonceSize:], &nonce, m.key)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func (m *Manager) resolveKey(ctx context.Context) error {
	if m.override != "" {
		key, err := decodeKey(m.override)
		if err != nil {
			return fmt.Errorf("encryption key override: %w", err)
		}
		m.key = key
		return nil
	}

	if key, err := m.storedKey(ctx); err != nil || key != nil {
		m.key = key
		return err
	}

	// No key anywhere. Generate one only on first run; afterwards a
	// missing key means the operator removed it, which must not be
	// silently papered over with a fresh one. The marker is written
	// after the key, so marker-set plus key-absent always means the
	// key was removed, never that a racing generator is mid-flight.
	done, err := m.firstRunCompleted(ctx)
	if err != nil {
		return err
	}
	if done {
		key, err := m.storedKey(ctx)
		if err != nil {
			return err
		}
		m.key = key // may stay nil: degraded mode
		return nil
	}

	// SetNX so that when several processes race first use, exactly one
	// generated key ends up persisted; everyone re-reads the winner.
	if _, err := m.store.SetNX(ctx, settings.KeyEncryptionKey, GenerateKey()); err != nil {
		return fmt.Errorf("storing encryption key: %w", err)
	}
	key, err := m.storedKey(ctx)
	if err != nil {
		return err
	}
	if _, err := m.store.SetNX(ctx, settings.KeyFirstRunCompleted, "1"); err != nil {
		return fmt.Errorf("marking first run: %w", err)
	}
	m.key = key
	return nil
}

// storedKey returns (nil, nil) when no key is stored.
func (m *Manager) storedKey(ctx context.Context) (*[KeySize]byte, error) {
	stored, err := m.store.Get(ctx, settings.KeyEncryptionKey)
	if err != nil {
		if errors.Is(err, settings.ErrNotSet) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading encryption key: %w", err)
	}
	key, err := decodeKey(stored)
	if err != nil {
		return nil, fmt.Errorf("stored encryption key: %w", err)
	}
	return key, nil
}

func (m *Manager) firstRunCompleted(ctx context.Context) (bool, error) {
	_, err := m.store.Get(ctx, settings.KeyFirstRunCompleted)
	if err != nil {
		if errors.Is(err, settings.ErrNotSet) {
			return false, nil
		}
		return false, fmt.Errorf("checking first run: %w", err)
	}
	return true, nil
}

// GenerateKey returns fresh random key material, base64-encoded for
// storage.
func GenerateKey() string {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.StdEncoding.EncodeToString(key[:])
}

func decodeKey(encoded string) (*[KeySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("key is not valid base64: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(raw))
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}
