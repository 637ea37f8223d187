// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/pkg/logger"
	"github.com/triops/actioncore/pkg/providers"
)

const (
	maxAuditRequestSnapshot  = 10 * 1024
	maxAuditResponseSnapshot = 10 * 1024

	// archiveThreshold is the combined redacted request + response snapshot size
	// past which the Execution Recorder spills the full snapshot to object
	// storage instead of silently discarding everything past the inline
	// truncation limit.
	archiveThreshold = maxAuditRequestSnapshot + maxAuditResponseSnapshot
)

// ExecutionRecorder performs the Execution Recorder's two writes per
// dispatch: exactly one Execution Record insert and one atomic Usage
// Counter upsert, both best-effort (spec §4.6, invariant I2/I4). A failure
// here is logged but never alters the caller's response.
type ExecutionRecorder struct {
	store    providers.ExecutionStore
	archiver *SnapshotArchiver
	now      func() time.Time
	metrics  providers.MetricsRecorder
}

func NewExecutionRecorder(store providers.ExecutionStore) *ExecutionRecorder {
	return &ExecutionRecorder{store: store, now: time.Now}
}

// WithMetrics attaches a MetricsRecorder for usage-counter upsert latency.
func (r *ExecutionRecorder) WithMetrics(m providers.MetricsRecorder) *ExecutionRecorder {
	r.metrics = m
	return r
}

// WithArchiver attaches the collaborator that spills oversized snapshots to
// object storage. Without it, snapshots past the inline threshold are
// simply truncated.
func (r *ExecutionRecorder) WithArchiver(a *SnapshotArchiver) *ExecutionRecorder {
	r.archiver = a
	return r
}

// Record builds and persists the Execution Record plus the day's Usage
// Counter delta for one completed dispatch.
func (r *ExecutionRecorder) Record(ctx context.Context, tenantID models.TenantID, kind models.ActionKind, workflowID, objectRef string, result models.ActionResult, requestSnapshot, responseSnapshot string) {
	now := r.now()
	status := resultStatus(result)

	redactedRequest := redact(requestSnapshot)
	rec := models.ExecutionRecord{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ActionKind:       kind,
		WorkflowID:       workflowID,
		ObjectRef:        objectRef,
		Status:           status,
		Duration:         time.Duration(result.Duration),
		RequestSnapshot:  truncate(redactedRequest, maxAuditRequestSnapshot),
		ResponseSnapshot: truncate(responseSnapshot, maxAuditResponseSnapshot),
		Attempts:         result.Attempts,
		Error:            SanitizeError(result.Message),
		CreatedAt:        now,
	}

	if r.archiver != nil && len(redactedRequest)+len(responseSnapshot) > archiveThreshold {
		full := []byte(redactedRequest + "\n---\n" + responseSnapshot)
		uri, digest, signature, err := r.archiver.Archive(ctx, rec.ID.String(), full)
		if err != nil {
			logger.Logger.Error("execution snapshot archive failed", "tenant_id", tenantID, "workflow_id", workflowID, "error", err.Error())
		} else {
			rec.ArchiveURI, rec.ArchiveDigest, rec.ArchiveSignature = uri, digest, signature
		}
	}

	if err := r.store.InsertExecution(ctx, rec); err != nil {
		logger.Logger.Error("execution record write failed", "tenant_id", tenantID, "workflow_id", workflowID, "error", err.Error())
	}

	delta := models.UsageDelta{Kind: kind, Status: status, Duration: rec.Duration, WorkflowID: workflowID}
	day := now.UTC().Format("2006-01-02")
	upsertStart := time.Now()
	err := r.store.UpsertUsage(ctx, tenantID, day, delta)
	if r.metrics != nil {
		r.metrics.ObserveUsageUpsertLatency(time.Since(upsertStart).Seconds())
	}
	if err != nil {
		logger.Logger.Error("usage counter upsert failed", "tenant_id", tenantID, "day", day, "error", err.Error())
	}
}

func resultStatus(r models.ActionResult) models.ExecutionStatus {
	switch r.Kind {
	case models.ActionResultSuccess:
		return models.ExecutionStatusSuccess
	case models.ActionResultTimeout:
		return models.ExecutionStatusTimeout
	default:
		return models.ExecutionStatusError
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var redactedHeaderPrefixes = []string{"authorization:", "proxy-authorization:", "cookie:"}

// redact strips Authorization-bearing headers from a raw request snapshot
// before it is persisted (spec §4.3.3).
func redact(snapshot string) string {
	lines := strings.Split(snapshot, "\n")
	for i, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		for _, prefix := range redactedHeaderPrefixes {
			if strings.HasPrefix(lower, prefix) {
				lines[i] = line[:strings.Index(line, ":")+1] + " [redacted]"
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}
