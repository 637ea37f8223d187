// SPDX-License-Identifier: AGPL-3.0-or-later
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// GCMPrimitive implements providers.EncryptionPrimitive with AES-256-GCM,
// storing ciphertext, nonce (as IV) and authentication tag as three
// separate byte slices, matching the secrets table's ciphertext/iv/auth_tag
// columns.
type GCMPrimitive struct {
	gcm cipher.AEAD
}

func NewGCMPrimitive(key []byte) (*GCMPrimitive, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &GCMPrimitive{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce, returning the
// ciphertext and authentication tag as distinct slices and the nonce as iv.
func (p *GCMPrimitive) Encrypt(plaintext []byte) (ciphertext, iv, tag []byte, err error) {
	nonce := make([]byte, p.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := p.gcm.Seal(nil, nonce, plaintext, nil)
	tagSize := p.gcm.Overhead()
	split := len(sealed) - tagSize

	return sealed[:split], nonce, sealed[split:], nil
}

// Decrypt reassembles ciphertext and tag and verifies/decrypts under iv.
func (p *GCMPrimitive) Decrypt(ciphertext, iv, tag []byte) ([]byte, error) {
	if len(iv) != p.gcm.NonceSize() {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", p.gcm.NonceSize(), len(iv))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := p.gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
