// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triops/actioncore/internal/domain/models"
)

type fakeExecutionStore struct {
	inserted     []models.ExecutionRecord
	upserted     []models.UsageDelta
	insertErr    error
	upsertErr    error
}

func (f *fakeExecutionStore) InsertExecution(ctx context.Context, rec models.ExecutionRecord) error {
	f.inserted = append(f.inserted, rec)
	return f.insertErr
}

func (f *fakeExecutionStore) UpsertUsage(ctx context.Context, tenantID uuid.UUID, day string, delta models.UsageDelta) error {
	f.upserted = append(f.upserted, delta)
	return f.upsertErr
}

func TestExecutionRecorder_WritesOneRecordAndOneUsageDelta(t *testing.T) {
	store := &fakeExecutionStore{}
	recorder := NewExecutionRecorder(store)

	recorder.Record(context.Background(), uuid.New(), models.ActionKindWebhook, "wf-1", "contact:42",
		models.Success(map[string]interface{}{"status_code": 200}), "POST /hook\nAuthorization: Bearer secret\n", "{}")

	require.Len(t, store.inserted, 1)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, store.inserted[0].Status)
	assert.NotContains(t, store.inserted[0].RequestSnapshot, "Bearer secret")
}

func TestExecutionRecorder_BestEffortOnStoreFailure(t *testing.T) {
	store := &fakeExecutionStore{insertErr: assert.AnError, upsertErr: assert.AnError}
	recorder := NewExecutionRecorder(store)

	assert.NotPanics(t, func() {
		recorder.Record(context.Background(), uuid.New(), models.ActionKindCode, "wf-2", "deal:7", models.Timeout(), "", "")
	})
}

func TestExecutionRecorder_ArchivesOversizedSnapshot(t *testing.T) {
	store := &fakeExecutionStore{}
	provider := &fakeStorageProvider{}
	archiver := NewSnapshotArchiver(provider, fakeSnapshotSigner{})
	recorder := NewExecutionRecorder(store).WithArchiver(archiver)

	bigResponse := string(bytes.Repeat([]byte("a"), archiveThreshold+1))
	recorder.Record(context.Background(), uuid.New(), models.ActionKindWebhook, "wf-3", "contact:1",
		models.Success(nil), "", bigResponse)

	require.Len(t, store.inserted, 1)
	assert.NotEmpty(t, store.inserted[0].ArchiveURI)
	assert.NotEmpty(t, store.inserted[0].ArchiveDigest)
	assert.NotEmpty(t, store.inserted[0].ArchiveSignature)
	assert.Len(t, store.inserted[0].ResponseSnapshot, maxAuditResponseSnapshot)
}

func TestRedact_StripsAuthorizationHeader(t *testing.T) {
	out := redact("POST /hook\nAuthorization: Bearer abc123\nContent-Type: application/json")
	assert.Contains(t, out, "[redacted]")
	assert.NotContains(t, out, "abc123")
}
