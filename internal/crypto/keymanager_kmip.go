package crypto

import (
	"context"
	"fmt"

	"github.com/ovh/kmip-go"
	"github.com/ovh/kmip-go/kmipclient"
	"github.com/ovh/kmip-go/payloads"

	"github.com/kenneth/discord-file-vault/internal/errs"
)

const kmipProviderName = "kmip"

// KMIPKeyManager wraps and unwraps DEKs through a KMIP 1.x server using
// the server-side Encrypt/Decrypt operations against one long-lived
// symmetric wrapping key, identified by keyID. The server never releases
// the wrapping key's plaintext to this process.
type KMIPKeyManager struct {
	client kmipclient.Client
	keyID  string
	// keyVersion is a locally tracked label for the active wrapping key;
	// KMIP itself has no notion of "version" distinct from key identity,
	// so rotating means registering a new key and updating keyID+version.
	keyVersion int
}

// DialKMIPKeyManager connects to a KMIP server at addr and uses wrapKeyID
// (or, if it is empty, a newly created key) as the symmetric wrapping key
// for all subsequent WrapKey/UnwrapKey calls. A given wrapKeyID is not
// looked up on the server here.
func DialKMIPKeyManager(ctx context.Context, addr string, tlsOpts kmipclient.Option, wrapKeyID string) (*KMIPKeyManager, error) {
	client, err := kmipclient.Dial(addr, tlsOpts)
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "failed to connect to KMIP server", err)
	}

	keyID := wrapKeyID
	if keyID == "" {
		resp, err := client.Create(ctx, payloads.CreateRequestPayload{
			ObjectType: kmip.ObjectTypeSymmetricKey,
			TemplateAttribute: kmip.TemplateAttribute{
				Attributes: []kmip.Attribute{
					{AttributeName: "Cryptographic Algorithm", AttributeValue: kmip.CryptographicAlgorithmAES},
					{AttributeName: "Cryptographic Length", AttributeValue: int32(256)},
					{AttributeName: "Cryptographic Usage Mask", AttributeValue: kmip.CryptographicUsageMaskEncrypt | kmip.CryptographicUsageMaskDecrypt},
				},
			},
		})
		if err != nil {
			return nil, errs.Wrap(errs.KindKeyManagerError, "failed to create KMIP wrapping key", err)
		}
		keyID = resp.UniqueIdentifier
	}

	return &KMIPKeyManager{client: client, keyID: keyID, keyVersion: 1}, nil
}

func (m *KMIPKeyManager) Provider() string { return kmipProviderName }

// WrapKey asks the KMIP server to encrypt plaintext (a DEK) under the
// wrapping key. The server-chosen IV, if any, is returned alongside the
// ciphertext and both are stored in the envelope.
func (m *KMIPKeyManager) WrapKey(ctx context.Context, plaintext []byte) (*KeyEnvelope, error) {
	resp, err := m.client.Encrypt(ctx, payloads.EncryptRequestPayload{
		UniqueIdentifier: m.keyID,
		Data:             plaintext,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "KMIP encrypt failed", err)
	}

	ciphertext := resp.Data
	if len(resp.IVCounterNonce) > 0 {
		ciphertext = append(append([]byte(nil), resp.IVCounterNonce...), ciphertext...)
	}

	return &KeyEnvelope{Provider: kmipProviderName, KeyVersion: m.keyVersion, Ciphertext: ciphertext}, nil
}

// UnwrapKey asks the KMIP server to decrypt the envelope's ciphertext
// under the wrapping key that produced it.
func (m *KMIPKeyManager) UnwrapKey(ctx context.Context, envelope *KeyEnvelope) ([]byte, error) {
	if envelope == nil {
		return nil, errs.New(errs.KindUsageError, "nil key envelope")
	}
	if envelope.Provider != kmipProviderName {
		return nil, errs.New(errs.KindKeyManagerError, fmt.Sprintf("envelope provider %q does not match KMIP key manager", envelope.Provider))
	}
	if envelope.KeyVersion != m.keyVersion {
		return nil, errs.New(errs.KindKeyManagerError, fmt.Sprintf("envelope key version %d does not match active version %d; key rotation support is not implemented", envelope.KeyVersion, m.keyVersion))
	}

	resp, err := m.client.Decrypt(ctx, payloads.DecryptRequestPayload{
		UniqueIdentifier: m.keyID,
		Data:             envelope.Ciphertext,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "KMIP decrypt failed", err)
	}
	return resp.Data, nil
}

func (m *KMIPKeyManager) ActiveKeyVersion(ctx context.Context) (int, error) {
	return m.keyVersion, nil
}

// HealthCheck issues a lightweight KMIP Get on the wrapping key's
// attributes to confirm the server is reachable and the key still exists.
func (m *KMIPKeyManager) HealthCheck(ctx context.Context) error {
	if _, err := m.client.GetAttributes(ctx, payloads.GetAttributesRequestPayload{UniqueIdentifier: m.keyID}); err != nil {
		return errs.Wrap(errs.KindKeyManagerError, "KMIP health check failed", err)
	}
	return nil
}

func (m *KMIPKeyManager) Close(ctx context.Context) error {
	return m.client.Close()
}
