// SPDX-License-Identifier: AGPL-3.0-or-later
// Package providers defines capability interfaces for dependency injection.
// These interfaces are in a separate package to avoid import cycles.
package providers

import (
	"context"

	"github.com/triops/actioncore/internal/domain/models"
)

// Common errors for capability providers.
// Defined as strings to avoid import cycles - implementations can wrap these.
const (
	ErrNotAuthenticatedMsg = "tenant not authenticated"
	ErrQuotaExceededMsg    = "quota exceeded"
	ErrProviderDisabledMsg = "provider is disabled"
)

// TenantStore is the excluded collaborator backing Tenant lookups and OAuth
// token refresh (spec §6.5).
type TenantStore interface {
	Find(ctx context.Context, tenantID models.TenantID) (*models.Tenant, error)
	// FindByPortalID resolves the platform's own portal numbering to a
	// tenant, the lookup the action HTTP boundary performs once per request
	// before a TenantID is available to route on (spec §6.1).
	FindByPortalID(ctx context.Context, portalID int64) (*models.Tenant, error)
	UpdateTokens(ctx context.Context, tenantID models.TenantID, encryptedTokens, iv []byte) error
	// TouchActivity best-effort updates LastActivityAt, throttled by the
	// caller per models.Tenant.ShouldRecordActivity.
	TouchActivity(ctx context.Context, tenantID models.TenantID) error
}

// SnippetStore is the excluded collaborator backing Code Action source
// lookup and usage accounting (spec §6.5).
type SnippetStore interface {
	Get(ctx context.Context, tenantID models.TenantID, snippetID models.SnippetID) (*models.Snippet, error)
	IncrementUsage(ctx context.Context, snippetID models.SnippetID) error
}

// ResolvedSecret is one decrypted-at-rest secret entry returned by
// SecretStore.List; decryption itself is performed by EncryptionPrimitive.
type ResolvedSecret struct {
	ID         string
	Name       string
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// SecretStore is the excluded collaborator backing per-tenant secret
// listing and bulk usage accounting (spec §6.5). List always returns
// ciphertext; the Secret Resolver decrypts only the subset referenced by a
// given source (spec §4.4.3).
type SecretStore interface {
	List(ctx context.Context, tenantID models.TenantID) ([]ResolvedSecret, error)
	BulkIncrementUsage(ctx context.Context, secretIDs []string) error
}

// ExecutionStore is the excluded collaborator backing the Execution
// Recorder's two best-effort writes (spec §4.6, §6.5).
type ExecutionStore interface {
	InsertExecution(ctx context.Context, rec models.ExecutionRecord) error
	UpsertUsage(ctx context.Context, tenantID models.TenantID, day string, delta models.UsageDelta) error
}

// ExecutionQueryStore is the excluded collaborator backing the admin API's
// read-only execution history and usage-counter views (spec §9 supplemented
// features). Implemented by the same repository as ExecutionStore, kept as
// a separate interface since the Dispatcher/Execution Recorder never need
// to read these rows back.
type ExecutionQueryStore interface {
	ListExecutions(ctx context.Context, tenantID models.TenantID, limit, offset int) ([]models.ExecutionRecord, int, error)
	ListUsage(ctx context.Context, tenantID models.TenantID, fromDay, toDay string) ([]models.UsageCounter, error)
}

// EncryptionPrimitive is the excluded AES-256-GCM collaborator used to
// decrypt Secret ciphertext and Tenant OAuth tokens (spec §6.5).
type EncryptionPrimitive interface {
	Encrypt(plaintext []byte) (ciphertext, iv, tag []byte, err error)
	Decrypt(ciphertext, iv, tag []byte) ([]byte, error)
}

// QuotaEnforcer is consulted by the Dispatcher on every dispatch: Check
// before the action runs and Record after it. The CE default never
// denies (pkg/web.NoLimitQuotaEnforcer); a SaaS tier can plug in metered
// enforcement without changing the dispatcher.
type QuotaEnforcer interface {
	Check(ctx context.Context, tenantID models.TenantID, kind models.ActionKind) error
	Record(ctx context.Context, tenantID models.TenantID, kind models.ActionKind) error
}

// AuditLogger records a dispatch decision for operator visibility,
// independent of the best-effort Execution Record (spec §9 supplemented
// features: audit trail separate from execution history).
type AuditLogger interface {
	Log(ctx context.Context, tenantID models.TenantID, action string, metadata map[string]interface{})
}

// TxRunner scopes a function's downstream store calls to a single RLS
// transaction for tenantID. The admin API gets this for free from
// RequireAdminJWT+RLSMiddleware.Handler, since the tenant is known from the
// JWT before the handler runs; action-dispatch routes only learn tenantID
// after parsing the envelope body, so the Dispatcher opens its own
// transaction via this collaborator instead (spec §6.1).
type TxRunner interface {
	RunInTenantTx(ctx context.Context, tenantID models.TenantID, fn func(ctx context.Context) error) error
}

// MetricsRecorder is the excluded collaborator backing the Prometheus
// counters and histograms the dispatcher and webhook executor update. Nil is
// a valid Dispatcher/WebhookExecutor collaborator; observations are skipped.
type MetricsRecorder interface {
	ObserveDispatch(kind, result string)
	ObserveAttempt(status string)
	ObserveSandboxDuration(seconds float64)
	ObserveUsageUpsertLatency(seconds float64)
}
