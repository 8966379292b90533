// Package cryptox encrypts platform credentials before they are stored.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"golang.org/x/crypto/hkdf"
)

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// DeriveKey expands an operator secret into a 32-byte AES-256 key bound to
// the given purpose label.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Cipher seals short strings (OAuth tokens) with AES-GCM.
//
// The output is base64(nonce || ciphertext) so it fits a TEXT column.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 16, 24 or 32 byte key.
func NewCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// NewTokenCipher derives the token key from secret and builds a Cipher.
func NewTokenCipher(secret string) (*Cipher, error) {
	key, err := DeriveKey([]byte(secret), "mediaflow oauth tokens")
	if err != nil {
		return nil, err
	}
	defer common.Wipe(key)
	return NewCipher(key)
}

func (c *Cipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce, err := common.RandomBytes(c.aead.NonceSize())
	if err != nil {
		return "", err
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Cipher) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrMalformedCiphertext
	}
	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
