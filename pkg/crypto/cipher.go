package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher is the encrypt/decrypt pair applied to private-conversation message
// bodies. Implementations must never panic on bad input: a failed Decrypt
// returns an error and the caller falls back to showing the opaque payload.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(opaque string) (string, error)
}

type chachaCipher struct {
	key []byte
}

// NewCipher builds a ChaCha20-Poly1305 cipher from a 32-byte key given as
// hex or base64. Key provisioning and rotation live outside this package.
func NewCipher(encodedKey string) (Cipher, error) {
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return &chachaCipher{key: key}, nil
}

func decodeKey(encoded string) ([]byte, error) {
	if raw, err := hex.DecodeString(encoded); err == nil && len(raw) == chacha20poly1305.KeySize {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(raw) == chacha20poly1305.KeySize {
		return raw, nil
	}
	return nil, fmt.Errorf("encryption key must be %d bytes, hex or base64 encoded", chacha20poly1305.KeySize)
}

func (c *chachaCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *chachaCipher) Decrypt(opaque string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil {
		return "", fmt.Errorf("payload is not base64: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("payload shorter than nonce")
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt failed: %w", err)
	}
	return string(plain), nil
}

// NoopCipher passes bodies through unchanged. Used when no key is configured
// and for conversations that are never encrypted.
type NoopCipher struct{}

func (NoopCipher) Encrypt(plaintext string) (string, error) { return plaintext, nil }
func (NoopCipher) Decrypt(opaque string) (string, error)    { return opaque, nil }
