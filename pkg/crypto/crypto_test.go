// SPDX-License-Identifier: AGPL-3.0-or-later
package crypto

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSnapshotSigning covers the snapshot signer's sign/verify round trip
// and its rejection of tampered input and of a different key.
func TestSnapshotSigning(t *testing.T) {
	t.Run("signature round-trips through verification", func(t *testing.T) {
		signer, err := NewEd25519Signer()
		require.NoError(t, err)

		archivedAt := time.Now().UTC()
		snapshot := []byte(`{"request":{},"response":{}}`)

		digest, sig, err := signer.SignSnapshot(context.Background(), "exec-1", archivedAt, snapshot)
		require.NoError(t, err)
		assert.NotEmpty(t, digest)
		assert.NotEmpty(t, sig)

		ok, err := signer.VerifySnapshot("exec-1", archivedAt, snapshot, sig)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("different snapshots produce different signatures", func(t *testing.T) {
		signer, err := NewEd25519Signer()
		require.NoError(t, err)

		archivedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		_, sig1, err := signer.SignSnapshot(context.Background(), "exec-1", archivedAt, []byte("a"))
		require.NoError(t, err)
		_, sig2, err := signer.SignSnapshot(context.Background(), "exec-1", archivedAt, []byte("b"))
		require.NoError(t, err)

		assert.NotEqual(t, sig1, sig2)
	})

	t.Run("verification fails on tampered snapshot", func(t *testing.T) {
		signer, err := NewEd25519Signer()
		require.NoError(t, err)

		archivedAt := time.Now().UTC()
		_, sig, err := signer.SignSnapshot(context.Background(), "exec-1", archivedAt, []byte("original"))
		require.NoError(t, err)

		ok, err := signer.VerifySnapshot("exec-1", archivedAt, []byte("tampered"), sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("verification fails with a different signer's key", func(t *testing.T) {
		signer, err := NewEd25519Signer()
		require.NoError(t, err)
		other, err := NewEd25519Signer()
		require.NoError(t, err)

		archivedAt := time.Now().UTC()
		snapshot := []byte("payload")
		_, sig, err := signer.SignSnapshot(context.Background(), "exec-1", archivedAt, snapshot)
		require.NoError(t, err)

		ok, err := other.VerifySnapshot("exec-1", archivedAt, snapshot, sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestEd25519Signer_GetPublicKeyIsStableBase64(t *testing.T) {
	signer, err := NewEd25519Signer()
	require.NoError(t, err)

	pub := signer.GetPublicKey()
	decoded, err := base64.StdEncoding.DecodeString(pub)
	require.NoError(t, err)
	assert.Len(t, decoded, 32, "Ed25519 public key should be 32 bytes")
	assert.Equal(t, pub, signer.GetPublicKey(), "public key encoding should be stable")
}
