// Package crypto protects Strava tokens at rest.
package crypto

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24

	secretboxPrefix = "sb1:"
	plainPrefix     = "plain:"
)

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Encryptor defines the interface for encryption and decryption.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// SecretboxEncryptor implements Encryptor with NaCl secretbox
// (XSalsa20-Poly1305) under a single static key.
type SecretboxEncryptor struct {
	key [keySize]byte
}

// NewSecretboxEncryptor accepts a base64 encoded 32 byte key.
func NewSecretboxEncryptor(encodedKey string) (*SecretboxEncryptor, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keySize, len(raw))
	}

	e := &SecretboxEncryptor{}
	copy(e.key[:], raw)
	return e, nil
}

// Encrypt returns "sb1:" followed by base64(nonce || box).
func (e *SecretboxEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &e.key)
	return secretboxPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *SecretboxEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, secretboxPrefix)
	if !ok {
		return "", ErrMalformedCiphertext
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrMalformedCiphertext
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &e.key)
	if !ok {
		return "", errors.New("failed to decrypt data: authentication failed")
	}
	return string(plain), nil
}

// PlainEncryptor implements Encryptor for local development. Values are only
// tagged, not encrypted.
type PlainEncryptor struct{}

func NewPlainEncryptor() *PlainEncryptor {
	return &PlainEncryptor{}
}

func (p *PlainEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return plainPrefix + plaintext, nil
}

func (p *PlainEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if v, ok := strings.CutPrefix(ciphertext, plainPrefix); ok {
		return v, nil
	}
	return ciphertext, nil
}

// New picks the secretbox encryptor when a key is configured and the plain
// encryptor otherwise.
func New(encodedKey string) (Encryptor, error) {
	if encodedKey == "" {
		return NewPlainEncryptor(), nil
	}
	return NewSecretboxEncryptor(encodedKey)
}
