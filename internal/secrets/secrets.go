// Package secrets seals credentials with a per-installation key before
// they are persisted.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	// ErrDecrypt is returned for ciphertext that was not sealed with this key
	// or has been tampered with.
	ErrDecrypt = errors.New("secret could not be decrypted")
	// ErrBadKeyFile is returned when the key file exists but is malformed.
	ErrBadKeyFile = errors.New("malformed secret key file")
)

// Box seals and opens short secrets with NaCl secretbox.
type Box struct {
	key [keySize]byte
}

func NewBox(key [keySize]byte) *Box {
	return &Box{key: key}
}

// LoadOrCreateBox reads the key at path, generating and saving a new one
// (mode 0600) when the file does not exist.
func LoadOrCreateBox(path string) (*Box, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != keySize {
			return nil, fmt.Errorf("%w: %s", ErrBadKeyFile, path)
		}
		var key [keySize]byte
		copy(key[:], data)
		return NewBox(key), nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read secret key: %w", err)
	}

	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		return nil, fmt.Errorf("write secret key: %w", err)
	}
	return NewBox(key), nil
}

// Seal encrypts plaintext under a fresh random nonce and returns
// base64(nonce || box).
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
