package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewSecretCipher_InvalidKeyLength(t *testing.T) {
	for _, length := range []int{0, 16, 24, 31, 33, 64} {
		c, err := NewSecretCipher(make([]byte, length))
		assert.Error(t, err)
		assert.Nil(t, c)
		assert.Contains(t, err.Error(), "must be exactly 32 bytes")
	}
}

func TestSecretCipher_RoundTrip(t *testing.T) {
	c, err := NewSecretCipher(newTestKey(t))
	require.NoError(t, err)

	for _, plaintext := range []string{"", "x", "totp-seed-value", "longer plaintext with spaces and unicode ñé"} {
		envelope, err := c.Encrypt(plaintext)
		require.NoError(t, err)

		got, err := c.Decrypt(envelope)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestSecretCipher_Encrypt_FreshNonce(t *testing.T) {
	c, err := NewSecretCipher(newTestKey(t))
	require.NoError(t, err)

	first, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestSecretCipher_Decrypt_TamperedEnvelope(t *testing.T) {
	c, err := NewSecretCipher(newTestKey(t))
	require.NoError(t, err)

	envelope, err := c.Encrypt("totp-seed-value")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(envelope)
	require.NoError(t, err)

	// Flipping any single byte must fail authentication, never yield a
	// plausible-looking wrong plaintext.
	for i := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01

		_, err := c.Decrypt(base64.StdEncoding.EncodeToString(mutated))
		assert.ErrorIs(t, err, ErrIntegrity, "byte %d", i)
	}
}

func TestSecretCipher_Decrypt_WrongKey(t *testing.T) {
	c1, err := NewSecretCipher(newTestKey(t))
	require.NoError(t, err)
	c2, err := NewSecretCipher(newTestKey(t))
	require.NoError(t, err)

	envelope, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(envelope)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestSecretCipher_Decrypt_Garbage(t *testing.T) {
	c, err := NewSecretCipher(newTestKey(t))
	require.NoError(t, err)

	for _, envelope := range []string{"", "not-base64!!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		_, err := c.Decrypt(envelope)
		assert.ErrorIs(t, err, ErrIntegrity)
	}
}

func TestSecretCipher_Rotate(t *testing.T) {
	oldCipher, err := NewSecretCipher(newTestKey(t))
	require.NoError(t, err)
	newCipher, err := NewSecretCipher(newTestKey(t))
	require.NoError(t, err)

	envelope, err := oldCipher.Encrypt("rotate-me")
	require.NoError(t, err)

	rotated, err := oldCipher.Rotate(envelope, newCipher)
	require.NoError(t, err)

	// Old key can no longer open it, new key can.
	_, err = oldCipher.Decrypt(rotated)
	assert.ErrorIs(t, err, ErrIntegrity)

	got, err := newCipher.Decrypt(rotated)
	require.NoError(t, err)
	assert.Equal(t, "rotate-me", got)
}

func TestHash_Deterministic(t *testing.T) {
	assert.Equal(t, Hash("value"), Hash("value"))
	assert.NotEqual(t, Hash("value"), Hash("other"))
	assert.Len(t, Hash("value"), 64)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", Mask("abcd"))
	assert.Equal(t, "********3456", Mask("123456783456"))
	assert.Equal(t, "", Mask(""))
}
