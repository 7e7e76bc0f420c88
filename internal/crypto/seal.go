package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// KeySize is the secretbox key length in bytes.
	KeySize = 32
	// NonceSize is the secretbox nonce length in bytes.
	NonceSize = 24
)

// ErrDecrypt is returned when a ciphertext fails authentication.
var ErrDecrypt = errors.New("decryption failed")

// Encryptor seals short strings for at-rest storage.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type secretboxEncryptor struct {
	key [KeySize]byte
}

// NewEncryptor returns an Encryptor backed by NaCl secretbox.
// Output is base64url(nonce || box).
func NewEncryptor(key []byte) (Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	e := &secretboxEncryptor{}
	copy(e.key[:], key)
	return e, nil
}

// DecodeKey accepts either a raw 32 byte key or the base64url form produced by
// GenerateSecureToken.
func DecodeKey(s string) ([]byte, error) {
	if len(s) == KeySize {
		return []byte(s), nil
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key is neither %d raw bytes nor base64url: %w", KeySize, err)
	}
	if len(b) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(b))
	}
	return b, nil
}

func (e *secretboxEncryptor) Encrypt(plaintext string) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), nonce, &e.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (e *secretboxEncryptor) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < NonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	var nonce [NonceSize]byte
	copy(nonce[:], raw[:NonceSize])
	plain, ok := secretbox.Open(nil, raw[NonceSize:], &nonce, &e.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
