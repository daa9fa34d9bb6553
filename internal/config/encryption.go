// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SSO tokens are stored as base64(nonce || ciphertext || tag) under
// AES-256-GCM, keyed by HKDF-SHA256 over the configured token secret.
const (
	tokenEncryptionSalt = "thessia-sso-tokens"
	tokenEncryptionInfo = "token-encryption-v1"
	aesKeySize          = 32
	gcmNonceSize        = 12
)

var (
	// ErrEmptySecret is returned when no token secret is configured.
	ErrEmptySecret = errors.New("token secret cannot be empty")

	// ErrEmptyCiphertext is returned when decrypting an empty value.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrDecryptionFailed is returned for tampered data or a wrong key.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrCiphertextTooShort is returned when the payload cannot hold a nonce and tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// TokenEncryptor encrypts SSO tokens before they reach the database.
type TokenEncryptor struct {
	aead cipher.AEAD
}

// NewTokenEncryptor derives an AES-256 key from secret.
func NewTokenEncryptor(secret string) (*TokenEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, aesKeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(tokenEncryptionSalt), []byte(tokenEncryptionInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenEncryptor{aead: gcm}, nil
}

// Encrypt returns the base64 ciphertext of plaintext. Empty input stays empty.
func (e *TokenEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *TokenEncryptor) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", ErrEmptyCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	if len(data) < gcmNonceSize+e.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}
	plain, err := e.aead.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
