// Package crypto implements the per-chunk symmetric cipher (C1) and the
// per-file data-encryption-key (DEK) envelope machinery (C9) used by the
// vault core.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/kenneth/discord-file-vault/internal/errs"
)

// KeySize is the length in bytes of a LogicalFile's data-encryption key.
// AES-256 requires exactly this many bytes.
const KeySize = 32

// BlockSize is the AES block size. Every ciphertext chunk is prefixed with
// exactly one block's worth of IV.
const BlockSize = aes.BlockSize // 16

// Cipher encrypts and decrypts chunks for a single LogicalFile. It is bound
// to one 32-byte key at construction, so a Cipher instance can never be
// used to accidentally mix keys between files.
//
// Each output chunk is self-contained: IV(16) ‖ AES-256-CBC(PKCS#7(plaintext)).
// Chunks are independently decryptable and may be fetched in any order.
type Cipher struct {
	block cipher.Block
	pool  *BufferPool
}

// New binds a Cipher to the given 32-byte key.
func New(key []byte) (*Cipher, error) {
	return NewWithPool(key, nil)
}

// NewWithPool binds a Cipher to key, drawing its working buffers from pool
// instead of allocating fresh ones per chunk. A nil pool behaves exactly
// like New.
func NewWithPool(key []byte, pool *BufferPool) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, errs.New(errs.KindUsageError, fmt.Sprintf("encryption key must be %d bytes, got %d", KeySize, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.KindUsageError, "failed to construct AES cipher", err)
	}
	return &Cipher{block: block, pool: pool}, nil
}

// NewRandomKey returns a cryptographically strong random 32-byte key,
// suitable for a new LogicalFile.
func NewRandomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errs.Wrap(errs.KindUsageError, "failed to generate random key", err)
	}
	return key, nil
}

// Encrypt encrypts plaintext with a freshly random IV and PKCS#7 padding.
// Encrypting the same plaintext twice produces different ciphertexts with
// overwhelming probability, since the IV is random per call. Empty
// plaintext is legal and yields 16 bytes of IV plus one padded block.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	iv := make([]byte, BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errs.Wrap(errs.KindUsageError, "failed to generate IV", err)
	}

	padLen := BlockSize - (len(plaintext) % BlockSize)
	paddedLen := len(plaintext) + padLen

	padded := c.getBuf(paddedLen)
	defer c.putBuf(padded)
	copy(padded, plaintext)
	for i := len(plaintext); i < paddedLen; i++ {
		padded[i] = byte(padLen)
	}

	out := make([]byte, BlockSize+paddedLen)
	copy(out, iv)

	mode := cipher.NewCBCEncrypter(c.block, iv)
	mode.CryptBlocks(out[BlockSize:], padded)

	return out, nil
}

// Decrypt is the inverse of Encrypt. ciphertext must be at least 16 bytes
// (the IV) or this fails with KindMalformedChunk. Decryption with the wrong
// key either fails here (bad padding) or silently returns plaintext that
// does not match the original — callers must not rely on which.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < BlockSize {
		return nil, errs.New(errs.KindMalformedChunk, fmt.Sprintf("ciphertext must be at least %d bytes, got %d", BlockSize, len(ciphertext)))
	}

	iv := ciphertext[:BlockSize]
	body := ciphertext[BlockSize:]

	if len(body)%BlockSize != 0 {
		return nil, errs.New(errs.KindMalformedChunk, "ciphertext body is not a multiple of the block size")
	}
	if len(body) == 0 {
		return nil, errs.New(errs.KindMalformedChunk, "ciphertext carries no encrypted blocks")
	}

	padded := c.getBuf(len(body))
	defer c.putBuf(padded)
	mode := cipher.NewCBCDecrypter(c.block, iv)
	mode.CryptBlocks(padded, body)

	unpaddedLen, err := pkcs7UnpadLen(padded, BlockSize)
	if err != nil {
		return nil, errs.Wrap(errs.KindMalformedChunk, "invalid PKCS#7 padding", err)
	}
	if unpaddedLen == 0 {
		return nil, nil
	}
	// Copy out: padded is returned to the pool and zeroized on this
	// function's return, so the caller must never hold a view into it.
	plaintext := make([]byte, unpaddedLen)
	copy(plaintext, padded[:unpaddedLen])
	return plaintext, nil
}

// getBuf draws a size-n scratch buffer from the Cipher's pool, or allocates
// one directly when no pool is attached.
func (c *Cipher) getBuf(n int) []byte {
	if c.pool == nil {
		return make([]byte, n)
	}
	return c.pool.Get(n)
}

func (c *Cipher) putBuf(buf []byte) {
	if c.pool == nil {
		return
	}
	c.pool.Put(buf)
}

func pkcs7UnpadLen(data []byte, blockSize int) (int, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return 0, fmt.Errorf("padded data length %d is not a multiple of block size %d", len(data), blockSize)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return 0, fmt.Errorf("invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return 0, fmt.Errorf("invalid padding byte")
		}
	}
	return len(data) - padLen, nil
}
