package store

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// tokenCipher seals token strings with a process-provided secretbox key.
// The nonce is random per call and prefixed to the ciphertext.
type tokenCipher struct {
	key [keySize]byte
}

func newTokenCipher(key []byte) (*tokenCipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("store: encryption key must be %d bytes, got %d", keySize, len(key))
	}
	c := &tokenCipher{}
	copy(c.key[:], key)
	return c, nil
}

func (c *tokenCipher) seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("store: generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *tokenCipher) open(ciphertext string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("store: decode sealed token: %w", err)
	}
	if len(raw) < nonceSize {
		return "", fmt.Errorf("store: sealed token too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", fmt.Errorf("store: sealed token failed authentication")
	}

	return string(plaintext), nil
}
