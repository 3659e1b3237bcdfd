// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestGenerateSecureToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		length  int
		wantLen int // expected hex string length (2 chars per byte)
	}{
		{
			name:    "16 bytes produces 32 char hex",
			length:  16,
			wantLen: 32,
		},
		{
			name:    "32 bytes produces 64 char hex",
			length:  32,
			wantLen: 64,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, err := GenerateSecureToken(tt.length)
			require.NoError(t, err)
			assert.Len(t, token, tt.wantLen)

			_, err = hex.DecodeString(token)
			assert.NoError(t, err, "token should be valid hex")
		})
	}
}

func TestNewEncryptor_KeySize(t *testing.T) {
	t.Parallel()

	_, err := NewEncryptor([]byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewEncryptor(testKey(t))
	assert.NoError(t, err)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "simple token", plaintext: "Atna|abc123refresh"},
		{name: "empty string", plaintext: ""},
		{name: "unicode", plaintext: "pässwörd-日本語"},
		{name: "contains colons", plaintext: "a:b:c:d"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			value, err := enc.Encrypt(tt.plaintext)
			require.NoError(t, err)

			parts := strings.Split(value, ":")
			require.Len(t, parts, 3, "encrypted value should have iv:tag:cipher segments")
			assert.Len(t, parts[0], 24, "12-byte iv as hex")
			assert.Len(t, parts[1], 32, "16-byte auth tag as hex")

			plaintext, err := enc.Decrypt(value)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, plaintext)
		})
	}
}

func TestEncryptor_EncryptIsNotDeterministic(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	first, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "fresh iv per encryption")
}

func TestEncryptor_DecryptMalformed(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{name: "no segments", value: "deadbeef"},
		{name: "two segments", value: "deadbeef:deadbeef"},
		{name: "four segments", value: "aa:bb:cc:dd"},
		{name: "non-hex iv", value: "zz:" + strings.Repeat("ab", 16) + ":cafe"},
		{name: "short iv", value: "abcd:" + strings.Repeat("ab", 16) + ":cafe"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := enc.Decrypt(tt.value)
			assert.ErrorIs(t, err, ErrMalformedCiphertext)
		})
	}
}

func TestEncryptor_DecryptTampered(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	value, err := enc.Encrypt("audible refresh token")
	require.NoError(t, err)

	parts := strings.Split(value, ":")
	require.Len(t, parts, 3)

	// flip a byte in the ciphertext segment
	cipherBytes, err := hex.DecodeString(parts[2])
	require.NoError(t, err)
	cipherBytes[0] ^= 0xff
	parts[2] = hex.EncodeToString(cipherBytes)

	_, err = enc.Decrypt(strings.Join(parts, ":"))
	assert.Error(t, err, "auth tag must reject tampered ciphertext")
}

func TestEncryptor_DecryptWrongKey(t *testing.T) {
	t.Parallel()

	enc1, err := NewEncryptor(testKey(t))
	require.NoError(t, err)
	enc2, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	value, err := enc1.Encrypt("secret")
	require.NoError(t, err)

	_, err = enc2.Decrypt(value)
	assert.Error(t, err)
}
