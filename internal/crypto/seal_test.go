package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-encryption-key-32-bytes-ok!"

func TestEncryptorRoundTrip(t *testing.T) {
	enc, err := NewEncryptor([]byte(testKey))
	require.NoError(t, err)

	sealed, err := enc.Encrypt(`{"email":"ada@example.com"}`)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "ada@example.com")

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"email":"ada@example.com"}`, plain)

	// fresh nonce per call
	again, err := enc.Encrypt(`{"email":"ada@example.com"}`)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestEncryptorRejects(t *testing.T) {
	enc, err := NewEncryptor([]byte(testKey))
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		sealed, err := enc.Encrypt("secret")
		require.NoError(t, err)

		other, err := NewEncryptor([]byte("another-encryption-key-32-bytes!"))
		require.NoError(t, err)
		_, err = other.Decrypt(sealed)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := enc.Decrypt("%%%")
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := enc.Decrypt("YWJj")
		assert.ErrorIs(t, err, ErrDecrypt)
	})
}

func TestNewEncryptorKeyLength(t *testing.T) {
	_, err := NewEncryptor([]byte("short"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "key must be 32 bytes")
}

func TestDecodeKey(t *testing.T) {
	raw, err := DecodeKey(testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte(testKey), raw)

	_, err = DecodeKey("c2hvcnQ=")
	assert.Error(t, err)

	_, err = DecodeKey("not a key at all")
	assert.Error(t, err)
}
