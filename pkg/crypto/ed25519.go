// SPDX-License-Identifier: AGPL-3.0-or-later
package crypto

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/triops/actioncore/pkg/logger"
)

// Ed25519Signer provides cryptographic signature operations using Ed25519
// elliptic curve algorithm. Used to tamper-evidently sign the request/
// response snapshot of Execution Records too large to store inline, once
// they've been archived to object storage (spec §4.6 supplemented
// features: snapshot archival).
type Ed25519Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewEd25519Signer initializes signer with persistent or ephemeral keypair from environment
func NewEd25519Signer() (*Ed25519Signer, error) {
	privKey, pubKey, err := loadOrGenerateKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to load or generate keys: %w", err)
	}

	return &Ed25519Signer{
		privateKey: privKey,
		publicKey:  pubKey,
	}, nil
}

// SignSnapshot generates a SHA-256 digest and Ed25519 signature over an
// archived Execution Record snapshot, so a reader fetching it back from
// object storage can detect any tampering independent of storage-provider
// trust. The context is used for tracing and cancellation propagation.
func (s *Ed25519Signer) SignSnapshot(ctx context.Context, executionID string, archivedAt time.Time, snapshot []byte) (digestB64, signatureB64 string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", fmt.Errorf("context cancelled before signature creation: %w", err)
	}

	payload := canonicalSnapshotPayload(executionID, archivedAt, snapshot)
	hash := sha256.Sum256(payload)
	signature := ed25519.Sign(s.privateKey, hash[:])

	return base64.StdEncoding.EncodeToString(hash[:]), base64.StdEncoding.EncodeToString(signature), nil
}

// VerifySnapshot reports whether signatureB64 is a valid Ed25519 signature
// of executionID/archivedAt/snapshot under this signer's public key.
func (s *Ed25519Signer) VerifySnapshot(executionID string, archivedAt time.Time, snapshot []byte, signatureB64 string) (bool, error) {
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding: %w", err)
	}
	payload := canonicalSnapshotPayload(executionID, archivedAt, snapshot)
	hash := sha256.Sum256(payload)
	return ed25519.Verify(s.publicKey, hash[:], signature), nil
}

// GetPublicKey exports the base64-encoded public key for signature verification by external parties
func (s *Ed25519Signer) GetPublicKey() string {
	return base64.StdEncoding.EncodeToString(s.publicKey)
}

func canonicalSnapshotPayload(executionID string, archivedAt time.Time, snapshot []byte) []byte {
	header := fmt.Sprintf(
		"execution_id=%s\narchived_at=%s\n",
		executionID,
		archivedAt.UTC().Format(time.RFC3339Nano),
	)
	return append([]byte(header), snapshot...)
}

func loadOrGenerateKeys() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	b64Key := strings.TrimSpace(os.Getenv("ACTIONCORE_ED25519_PRIVATE_KEY"))

	if b64Key != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(b64Key)
		if err != nil || len(keyBytes) != ed25519.PrivateKeySize {
			return nil, nil, fmt.Errorf("invalid ACTIONCORE_ED25519_PRIVATE_KEY: %v", err)
		}

		privateKey := ed25519.PrivateKey(keyBytes)
		publicKey := privateKey.Public().(ed25519.PublicKey)

		return privateKey, publicKey, nil
	}

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate keys: %w", err)
	}

	logger.Logger.Warn("Ed25519 private key not set, snapshot signatures will change across restarts")

	return privateKey, publicKey, nil
}
