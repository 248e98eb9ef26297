package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/kenneth/discord-file-vault/internal/errs"
)

// LocalKeyManager derives a per-version wrapping key from an operator
// supplied master secret via HKDF-SHA256, and seals DEKs with AES-256-GCM.
// It never talks to a network service, so it is the KeyManager used in
// tests and in environments with no KMIP endpoint configured.
type LocalKeyManager struct {
	mu           sync.RWMutex
	masterSecret []byte
	keyVersion   int
	wrappingKey  []byte
}

const localProviderName = "local"

// NewLocalKeyManager derives version 1's wrapping key immediately from
// masterSecret. masterSecret should be at least 32 bytes of real entropy;
// it is never logged or persisted.
func NewLocalKeyManager(masterSecret []byte) (*LocalKeyManager, error) {
	if len(masterSecret) < 16 {
		return nil, errs.New(errs.KindUsageError, "local key manager master secret must be at least 16 bytes")
	}
	m := &LocalKeyManager{masterSecret: append([]byte(nil), masterSecret...), keyVersion: 1}
	key, err := m.deriveWrappingKey(m.keyVersion)
	if err != nil {
		return nil, err
	}
	m.wrappingKey = key
	return m, nil
}

func (m *LocalKeyManager) deriveWrappingKey(version int) ([]byte, error) {
	info := []byte(fmt.Sprintf("discord-file-vault/key-wrap/v%d", version))
	reader := hkdf.New(sha256.New, m.masterSecret, nil, info)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "failed to derive local wrapping key", err)
	}
	return key, nil
}

func (m *LocalKeyManager) Provider() string { return localProviderName }

// WrapKey seals plaintext (a DEK) under the active wrapping key version
// using AES-256-GCM with a random 12-byte nonce prefixed to the ciphertext.
func (m *LocalKeyManager) WrapKey(ctx context.Context, plaintext []byte) (*KeyEnvelope, error) {
	m.mu.RLock()
	key, version := m.wrappingKey, m.keyVersion
	m.mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "failed to construct wrapping cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "failed to construct GCM mode", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "failed to generate wrap nonce", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	return &KeyEnvelope{Provider: localProviderName, KeyVersion: version, Ciphertext: sealed}, nil
}

// UnwrapKey reverses WrapKey. It re-derives the wrapping key for the
// envelope's stored KeyVersion, so rotating the active version does not
// break existing envelopes.
func (m *LocalKeyManager) UnwrapKey(ctx context.Context, envelope *KeyEnvelope) ([]byte, error) {
	if envelope == nil {
		return nil, errs.New(errs.KindUsageError, "nil key envelope")
	}
	if envelope.Provider != localProviderName {
		return nil, errs.New(errs.KindKeyManagerError, fmt.Sprintf("envelope provider %q does not match local key manager", envelope.Provider))
	}

	key, err := m.deriveWrappingKey(envelope.KeyVersion)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "failed to construct unwrap cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "failed to construct GCM mode", err)
	}
	if len(envelope.Ciphertext) < gcm.NonceSize() {
		return nil, errs.New(errs.KindKeyManagerError, "envelope ciphertext shorter than nonce")
	}
	nonce := envelope.Ciphertext[:gcm.NonceSize()]
	body := envelope.Ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "failed to unwrap key: authentication failed", err)
	}
	return plaintext, nil
}

func (m *LocalKeyManager) ActiveKeyVersion(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keyVersion, nil
}

// RotateMasterSecret moves to a new wrapping key version derived from a
// new master secret. Existing envelopes remain unwrappable because
// UnwrapKey re-derives by the envelope's own KeyVersion — but only if the
// old masterSecret bytes are still obtainable; callers that truly rotate
// the secret must keep prior secrets available out of band. Nothing in
// this module, tests included, calls it.
func (m *LocalKeyManager) RotateMasterSecret(masterSecret []byte) error {
	if len(masterSecret) < 16 {
		return errs.New(errs.KindUsageError, "local key manager master secret must be at least 16 bytes")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masterSecret = append([]byte(nil), masterSecret...)
	m.keyVersion++
	key, err := m.deriveWrappingKey(m.keyVersion)
	if err != nil {
		return err
	}
	m.wrappingKey = key
	return nil
}

func (m *LocalKeyManager) HealthCheck(ctx context.Context) error { return nil }
func (m *LocalKeyManager) Close(ctx context.Context) error       { return nil }
