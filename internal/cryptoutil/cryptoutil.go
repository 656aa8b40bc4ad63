// Package cryptoutil seals short-lived credential material before it leaves the process.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sealer encrypts and authenticates payloads bound to associated data.
// Open fails when the associated data differs from the one used by Seal.
type Sealer interface {
	Seal(plaintext, aad []byte) (string, error)
	Open(sealed string, aad []byte) ([]byte, error)
}

const (
	// Versioned prefix to allow key/algorithm rotation.
	sealedPrefixV1 = "v1:"
	noopPrefix     = "noop:"
)

// ErrUnknownVersion is returned by Open for payloads not produced by this sealer.
var ErrUnknownVersion = errors.New("unknown sealed payload version")

// AESGCMSealer implements Sealer using AES-256-GCM.
type AESGCMSealer struct {
	aead   cipher.AEAD
	random io.Reader
}

// NewAESGCMSealer constructs a sealer. Key must be 32 bytes (AES-256).
func NewAESGCMSealer(key []byte) (*AESGCMSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMSealer{aead: gcm, random: rand.Reader}, nil
}

// DeriveKey turns a configured key string into 32 key bytes.
// A 64-char hex string is decoded as-is; anything else is hashed with SHA-256.
func DeriveKey(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("encryption key is required")
	}
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:], nil
}

// Seal encrypts plaintext with a random nonce and returns a versioned base64 string.
func (s *AESGCMSealer) Seal(plaintext, aad []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	// nonce||ciphertext
	buf := s.aead.Seal(nonce, nonce, plaintext, aad)
	return sealedPrefixV1 + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Open decrypts a payload produced by Seal with the same associated data.
func (s *AESGCMSealer) Open(sealed string, aad []byte) ([]byte, error) {
	if !strings.HasPrefix(sealed, sealedPrefixV1) {
		return nil, ErrUnknownVersion
	}
	data, err := base64.RawURLEncoding.DecodeString(sealed[len(sealedPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode sealed payload: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("sealed payload too short")
	}
	return s.aead.Open(nil, data[:nonceSize], data[nonceSize:], aad)
}

// NoopSealer is useful for tests; it stores plaintext with a prefix marker and ignores aad.
type NoopSealer struct{}

// Seal implements Sealer.
func (NoopSealer) Seal(plaintext, _ []byte) (string, error) {
	return noopPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

// Open implements Sealer.
func (NoopSealer) Open(sealed string, _ []byte) ([]byte, error) {
	if !strings.HasPrefix(sealed, noopPrefix) {
		return nil, ErrUnknownVersion
	}
	return base64.StdEncoding.DecodeString(sealed[len(noopPrefix):])
}
