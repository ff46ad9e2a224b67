package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("ab", 32) // 32 bytes, hex encoded

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	for _, plaintext := range []string{"", "hello", "emoji 🎉 and unicode ñ", strings.Repeat("x", 4096)} {
		opaque, err := cipher.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, opaque)

		got, err := cipher.Decrypt(opaque)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	first, err := cipher.Encrypt("same body")
	require.NoError(t, err)
	second, err := cipher.Encrypt("same body")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "fresh nonce per message")
}

func TestNewCipherAcceptsBase64Key(t *testing.T) {
	raw, err := hex.DecodeString(testKey)
	require.NoError(t, err)

	cipher, err := NewCipher(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)

	opaque, err := cipher.Encrypt("body")
	require.NoError(t, err)

	// Both encodings of the same key decrypt each other's output.
	hexCipher, err := NewCipher(testKey)
	require.NoError(t, err)
	got, err := hexCipher.Decrypt(opaque)
	require.NoError(t, err)
	assert.Equal(t, "body", got)
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	for _, encoded := range []string{"", "abcd", strings.Repeat("ab", 16), "not a key at all"} {
		_, err := NewCipher(encoded)
		assert.Error(t, err, "key %q", encoded)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	for _, opaque := range []string{
		"%%% not base64 %%%",
		base64.StdEncoding.EncodeToString([]byte("short")),
		base64.StdEncoding.EncodeToString(make([]byte, 64)), // valid length, bad auth tag
	} {
		_, err := cipher.Decrypt(opaque)
		assert.Error(t, err, "payload %q", opaque)
	}
}

func TestDecryptFailsWithWrongKey(t *testing.T) {
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)
	other, err := NewCipher(strings.Repeat("cd", 32))
	require.NoError(t, err)

	opaque, err := cipher.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(opaque)
	assert.Error(t, err)
}

func TestNoopCipherPassesThrough(t *testing.T) {
	var c NoopCipher
	opaque, err := c.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", opaque)

	got, err := c.Decrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}
