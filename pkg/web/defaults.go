// SPDX-License-Identifier: AGPL-3.0-or-later
package web

import (
	"context"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/pkg/logger"
	"github.com/triops/actioncore/pkg/providers"
)

// NoLimitQuotaEnforcer is the Community Edition default: caps are enforced
// at tenant creation time (spec §3 invariant I3), never here, so dispatch
// never denies. A SaaS tier plugs in metered enforcement by implementing
// providers.QuotaEnforcer without the dispatcher needing to change.
type NoLimitQuotaEnforcer struct{}

func NewNoLimitQuotaEnforcer() *NoLimitQuotaEnforcer {
	return &NoLimitQuotaEnforcer{}
}

func (e *NoLimitQuotaEnforcer) Check(_ context.Context, _ models.TenantID, _ models.ActionKind) error {
	return nil
}

func (e *NoLimitQuotaEnforcer) Record(_ context.Context, _ models.TenantID, _ models.ActionKind) error {
	return nil
}

var _ providers.QuotaEnforcer = (*NoLimitQuotaEnforcer)(nil)

// LogOnlyAuditLogger writes dispatch decisions to the structured logger
// instead of a queryable audit store. This is the Community Edition
// default; a SaaS tier swaps in a database-backed AuditLogger.
type LogOnlyAuditLogger struct{}

func NewLogOnlyAuditLogger() *LogOnlyAuditLogger {
	return &LogOnlyAuditLogger{}
}

func (l *LogOnlyAuditLogger) Log(_ context.Context, tenantID models.TenantID, action string, metadata map[string]interface{}) {
	fields := []interface{}{"action", action, "tenant_id", tenantID}
	for k, v := range metadata {
		fields = append(fields, k, v)
	}
	logger.Logger.Info("audit", fields...)
}

var _ providers.AuditLogger = (*LogOnlyAuditLogger)(nil)
