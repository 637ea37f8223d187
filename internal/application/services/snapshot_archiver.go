// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/triops/actioncore/pkg/logger"
	"github.com/triops/actioncore/pkg/storage"
)

// snapshotSigner is the subset of crypto.Ed25519Signer the archiver needs,
// kept as an interface so tests can supply a fake signer.
type snapshotSigner interface {
	SignSnapshot(ctx context.Context, executionID string, archivedAt time.Time, snapshot []byte) (digestB64, signatureB64 string, err error)
}

// SnapshotArchiver spills an Execution Record's untruncated request/response
// snapshot to object storage once it exceeds the inline threshold, signing
// the archived bytes so a reader can detect tampering independent of the
// storage provider (spec §9 supplemented features: snapshot archival).
type SnapshotArchiver struct {
	provider storage.Provider
	signer   snapshotSigner
	now      func() time.Time
}

func NewSnapshotArchiver(provider storage.Provider, signer snapshotSigner) *SnapshotArchiver {
	return &SnapshotArchiver{provider: provider, signer: signer, now: time.Now}
}

// Archive uploads snapshot under a key derived from executionID and returns
// the storage key plus its digest/signature for persistence on the
// ExecutionRecord. A failure here is the caller's to decide how to handle;
// the Execution Recorder treats it as best-effort and logs rather than
// fails the dispatch.
func (a *SnapshotArchiver) Archive(ctx context.Context, executionID string, snapshot []byte) (uri, digest, signature string, err error) {
	archivedAt := a.now()

	digest, signature, err = a.signer.SignSnapshot(ctx, executionID, archivedAt, snapshot)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to sign snapshot: %w", err)
	}

	key := fmt.Sprintf("executions/%s/%d.json", executionID, archivedAt.UnixNano())
	if err := a.provider.Upload(ctx, key, bytes.NewReader(snapshot), int64(len(snapshot)), "application/json"); err != nil {
		return "", "", "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	logger.Logger.Info("execution snapshot archived", "execution_id", executionID, "key", key, "bytes", len(snapshot))
	return key, digest, signature, nil
}
