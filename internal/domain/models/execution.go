// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the terminal status of one action dispatch.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusError   ExecutionStatus = "error"
	ExecutionStatusTimeout ExecutionStatus = "timeout"
)

// ActionKind selects the handler the Dispatcher routes to.
type ActionKind string

const (
	ActionKindWebhook ActionKind = "webhook"
	ActionKindCode    ActionKind = "code"
	ActionKindFormat  ActionKind = "format"
)

// Attempt records one outbound HTTP attempt made by the Retry Engine.
type Attempt struct {
	Index      int
	Status     string // "success" | "retryable_failure" | "failure" | "timeout"
	StatusCode int
	Duration   time.Duration
	Error      string
}

// ExecutionRecord is the audit trail the Execution Recorder writes after
// every dispatch, best-effort (I2: exactly one record per execution, even on
// internal failure).
type ExecutionRecord struct {
	ID               uuid.UUID
	TenantID         TenantID
	ActionKind       ActionKind
	WorkflowID       string
	ObjectRef        string
	Status           ExecutionStatus
	Duration         time.Duration
	RequestSnapshot  string // truncated, secrets/Authorization redacted
	ResponseSnapshot string // truncated
	Attempts         []Attempt
	Error            string
	CreatedAt        time.Time

	// ArchiveURI, when set, is the storage key of the untruncated,
	// tamper-evidently signed request/response snapshot (spec §9
	// supplemented features: oversized snapshots spill to object storage
	// instead of being silently truncated in the database row).
	ArchiveURI       string
	ArchiveDigest    string // base64 SHA-256 digest of the archived snapshot
	ArchiveSignature string // base64 Ed25519 signature over the digest
}

// ExecutionRecordTTL is the retention window for Execution Records (spec §3).
const ExecutionRecordTTL = 30 * 24 * time.Hour

// UsageCounter aggregates per-tenant, per-day execution statistics. Upserted
// atomically (I4): the running count, sum (for average), max, and the set of
// distinct workflow-ids are all recomputed inside the same update so
// concurrent executions never lose an update.
type UsageCounter struct {
	TenantID        TenantID
	Day             time.Time // truncated to yyyy-mm-dd, UTC
	CountByKind     map[ActionKind]int64
	CountByStatus   map[ExecutionStatus]int64
	TotalDuration   time.Duration
	AverageDuration time.Duration
	MaxDuration     time.Duration
	WorkflowIDs     map[string]struct{}
}

// UsageCounterTTL is the retention window for Usage Counters (spec §3).
const UsageCounterTTL = 90 * 24 * time.Hour

// UsageDelta is the single execution's contribution to a day's UsageCounter,
// passed to the store's atomic upsert so the aggregation happens server-side
// in one statement rather than via a Go-side read-modify-write.
type UsageDelta struct {
	Kind       ActionKind
	Status     ExecutionStatus
	Duration   time.Duration
	WorkflowID string
}
