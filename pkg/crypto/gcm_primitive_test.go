// SPDX-License-Identifier: AGPL-3.0-or-later
package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCMPrimitive_EncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	p, err := NewGCMPrimitive(key)
	require.NoError(t, err)

	ciphertext, iv, tag, err := p.Encrypt([]byte("hunter2"))
	require.NoError(t, err)
	assert.NotEmpty(t, ciphertext)
	assert.Len(t, iv, 12)
	assert.Len(t, tag, 16)

	plaintext, err := p.Decrypt(ciphertext, iv, tag)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(plaintext))
}

func TestGCMPrimitive_RejectsTamperedTag(t *testing.T) {
	key := make([]byte, 32)
	p, err := NewGCMPrimitive(key)
	require.NoError(t, err)

	ciphertext, iv, tag, err := p.Encrypt([]byte("data"))
	require.NoError(t, err)

	tag[0] ^= 0xFF
	_, err = p.Decrypt(ciphertext, iv, tag)
	assert.Error(t, err)
}

func TestNewGCMPrimitive_RejectsWrongKeySize(t *testing.T) {
	_, err := NewGCMPrimitive([]byte("too-short"))
	assert.Error(t, err)
}
