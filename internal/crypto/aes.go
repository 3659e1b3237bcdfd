// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package crypto provides shared encryption utilities for the application.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")
	// ErrMalformedCiphertext is returned when the ciphertext does not have the
	// expected iv:tag:cipher segment structure.
	ErrMalformedCiphertext = errors.New("malformed ciphertext: expected iv:tag:cipher hex segments")
)

// GenerateSecureToken generates a cryptographically secure random token
// of the specified byte length, returned as a hex-encoded string.
// For example, length=32 produces a 64-character hex string.
func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// Encryptor provides AES-256-GCM encryption for credentials stored at rest.
// The wire format is "ivHex:authTagHex:cipherHex", three colon-separated hex
// segments, so stored values can be inspected and validated without decoding.
type Encryptor struct {
	key []byte
}

// NewEncryptor creates a new Encryptor with the given 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}
	return &Encryptor{key: key}, nil
}

// Encrypt encrypts a plaintext string and returns "ivHex:authTagHex:cipherHex".
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	// Seal appends the auth tag to the ciphertext; split it back out so the
	// stored value carries the tag as its own segment.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagOffset := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagOffset], sealed[tagOffset:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt decrypts a value produced by Encrypt. Inputs that do not have
// exactly three colon-separated hex segments fail with ErrMalformedCiphertext.
func (e *Encryptor) Decrypt(value string) (string, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return "", ErrMalformedCiphertext
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad iv segment", ErrMalformedCiphertext)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad tag segment", ErrMalformedCiphertext)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad cipher segment", ErrMalformedCiphertext)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(iv) != gcm.NonceSize() || len(tag) != gcm.Overhead() {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
