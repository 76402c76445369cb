// Package crypto seals sensitive message fields at rest.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 100_000
	prefix     = "v1:"
)

var (
	ErrEmptyKey   = errors.New("encryption key is empty")
	ErrCiphertext = errors.New("malformed ciphertext")
)

// Box encrypts strings with XChaCha20-Poly1305 under a key derived from a
// passphrase with PBKDF2-SHA256.
type Box struct {
	key []byte
}

func NewBox(passphrase, salt string) (*Box, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, chacha20poly1305.KeySize, sha256.New)
	return &Box{key: key}, nil
}

func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (b *Box) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, ok := strings.CutPrefix(ciphertext, prefix)
	if !ok {
		return "", ErrCiphertext
	}
	sealed, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}

	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return "", ErrCiphertext
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return string(plain), nil
}
