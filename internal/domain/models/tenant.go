// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantID is an alias for uuid.UUID representing a tenant identifier.
type TenantID = uuid.UUID

// TenantStatus reflects whether a tenant installation may still invoke the core.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// TenantCaps holds the per-tenant limits the dispatcher and quota enforcer honor.
// WebhookTimeout/CodeTimeout cap the per-action deadline the caller may request;
// MaxSnippets/MaxSecrets are loaded with the tenant but the core does not
// check them anywhere.
type TenantCaps struct {
	WebhookTimeout time.Duration
	CodeTimeout    time.Duration
	MaxSnippets    int
	MaxSecrets     int
}

// DefaultTenantCaps returns in-code default caps (30s webhook, 10s code, 50
// snippets, 50 secrets). The tenants table's own column defaults differ
// (10000ms webhook, 5000ms code timeout).
func DefaultTenantCaps() TenantCaps {
	return TenantCaps{
		WebhookTimeout: 30 * time.Second,
		CodeTimeout:    10 * time.Second,
		MaxSnippets:    50,
		MaxSecrets:     50,
	}
}

// Tenant is one installation of the integration for a customer account
// (called "portal" by the automation platform). The core reads it on every
// dispatch and mutates only the OAuth token material (on refresh) and
// LastActivityAt (throttled, see the tenant store's TouchActivity).
type Tenant struct {
	ID                TenantID
	PortalID          int64
	Status            TenantStatus
	EncryptedTokens   []byte // AES-256-GCM ciphertext+tag, see pkg/crypto.GCMPrimitive
	TokenIV           []byte
	TokenRefreshedAt  time.Time
	Caps              TenantCaps
	LastActivityAt    time.Time
	CreatedAt         time.Time
}

// IsActive reports whether the core may still dispatch actions for this tenant.
func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == TenantStatusActive
}

// EffectiveTimeout returns min(requested, cap) for the given action kind, falling
// back to the cap alone when the caller did not request a specific timeout.
func (t *Tenant) EffectiveTimeout(kind ActionKind, requested time.Duration) time.Duration {
	cap := t.Caps.WebhookTimeout
	if kind == ActionKindCode {
		cap = t.Caps.CodeTimeout
	}
	if requested <= 0 || requested > cap {
		return cap
	}
	return requested
}

// ActivityThrottle is the minimum interval between LastActivityAt writes,
// chosen to avoid write amplification under hot-tenant traffic (spec's
// last-activity throttle).
const ActivityThrottle = 5 * time.Minute

// ShouldRecordActivity reports whether enough time elapsed since the last
// recorded activity to justify another write.
func (t *Tenant) ShouldRecordActivity(now time.Time) bool {
	return now.Sub(t.LastActivityAt) >= ActivityThrottle
}
