package crypto

import "context"

// KeyManager abstracts the external key-management system that wraps and
// unwraps per-file data-encryption keys (DEKs). Implementations must never
// expose plaintext master keys and must ensure that wrapping happens inside
// the KMS boundary (KMIP, a cloud KMS, Vault Transit, or, for local/dev use,
// a key derived from an operator-supplied master secret).
//
// The Catalog only ever stores a KeyEnvelope; the raw 32-byte DEK exists in
// memory only for the lifetime of a single upload or download session.
//
// Current implementations:
//   - KMIP 1.x, via github.com/ovh/kmip-go
//   - local: HKDF-SHA256 + AES-256-GCM over an operator-supplied master
//     secret, for tests and environments without a KMS
type KeyManager interface {
	// Provider returns a short identifier (e.g. "kmip", "local") used for
	// diagnostics and stored on the KeyEnvelope.
	Provider() string

	// WrapKey encrypts the plaintext DEK and returns an envelope suitable
	// for persisting in the Catalog.
	WrapKey(ctx context.Context, plaintext []byte) (*KeyEnvelope, error)

	// UnwrapKey decrypts the ciphertext in the given envelope and returns
	// the plaintext DEK.
	UnwrapKey(ctx context.Context, envelope *KeyEnvelope) ([]byte, error)

	// ActiveKeyVersion returns the version identifier of the primary
	// wrapping key.
	ActiveKeyVersion(ctx context.Context) (int, error)

	// HealthCheck verifies that the KMS is reachable and operational. It
	// must be lightweight — no actual wrap/unwrap.
	HealthCheck(ctx context.Context) error

	// Close releases any underlying resources (connections, clients).
	Close(ctx context.Context) error
}

// KeyEnvelope captures everything needed to unwrap a DEK later. It is the
// only form of a LogicalFile's key that the Catalog is allowed to persist.
type KeyEnvelope struct {
	Provider   string `json:"provider"`
	KeyVersion int    `json:"key_version"`
	Ciphertext []byte `json:"ciphertext"`
}
