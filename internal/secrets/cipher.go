// Package secrets seals platform tokens at rest with XChaCha20-Poly1305.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealed values carry this prefix; anything else is treated as plaintext so
// rows written before a key was configured keep working.
const prefix = "enc:v1:"

var ErrMalformed = errors.New("secrets: malformed sealed value")

type Cipher struct {
	aead cipher.AEAD
}

// New builds a cipher from a hex encoded 32 byte key. An empty key yields a
// passthrough cipher.
func New(hexKey string) (*Cipher, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return &Cipher{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode credentials key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credentials key: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Enabled() bool { return c != nil && c.aead != nil }

// Seal encrypts plain. Empty strings stay empty.
func (c *Cipher) Seal(plain string) (string, error) {
	if !c.Enabled() || plain == "" {
		return plain, nil
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return prefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is.
func (c *Cipher) Open(v string) (string, error) {
	if !strings.HasPrefix(v, prefix) {
		return v, nil
	}
	if !c.Enabled() {
		return "", errors.New("secrets: sealed value but no credentials key configured")
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(v, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(plain), nil
}
