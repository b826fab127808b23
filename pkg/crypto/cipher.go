package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the required key length for AES-256.
const KeySize = 32

// ErrIntegrity is returned when an envelope fails authentication:
// tampered ciphertext, wrong key, or corruption. Decrypt never returns
// plaintext in that case.
var ErrIntegrity = errors.New("envelope integrity check failed")

// SecretCipher provides authenticated encryption for secrets at rest
// (AES-256-GCM), plus one-way hashing and display masking.
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher creates a cipher from a 32-byte key. There is no
// default key: callers must fail startup when the key is absent.
func NewSecretCipher(key []byte) (*SecretCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher key must be exactly %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretCipher{aead: aead}, nil
}

// Encrypt seals plaintext into an opaque envelope string containing a
// fresh random nonce, the ciphertext, and the authentication tag.
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt. Any authentication
// failure is reported as ErrIntegrity.
func (c *SecretCipher) Decrypt(envelope string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", ErrIntegrity
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", ErrIntegrity
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrIntegrity
	}

	return string(plaintext), nil
}

// Rotate re-encrypts an envelope under a new cipher. Used by the key
// rotation procedure so stored secrets survive a key change.
func (c *SecretCipher) Rotate(envelope string, next *SecretCipher) (string, error) {
	plaintext, err := c.Decrypt(envelope)
	if err != nil {
		return "", err
	}
	return next.Encrypt(plaintext)
}

// Hash returns a hex-encoded SHA-256 digest, for indexing or lookup
// without storing the raw value.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Mask obscures a secret for display, keeping the last four characters.
func Mask(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
