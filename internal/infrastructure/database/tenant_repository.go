// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/dbctx"
)

// TenantRepository satisfies providers.TenantStore. Every query runs through
// dbctx.GetQuerier so it transparently joins whatever RLS transaction the
// caller set up with tenant.WithTenantContext, falling back to the raw pool
// for the unscoped lookups the dispatcher itself needs.
type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Find(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	q := dbctx.GetQuerier(ctx, r.db)
	query := `
        SELECT id, portal_id, status, encrypted_tokens, token_iv, token_refreshed_at,
               webhook_timeout_ms, code_timeout_ms, max_snippets, max_secrets,
               last_activity_at, created_at
        FROM tenants
        WHERE id = $1
    `
	t := &models.Tenant{}
	var webhookTimeoutMs, codeTimeoutMs int64
	err := q.QueryRowContext(ctx, query, tenantID).Scan(
		&t.ID, &t.PortalID, &t.Status, &t.EncryptedTokens, &t.TokenIV, &t.TokenRefreshedAt,
		&webhookTimeoutMs, &codeTimeoutMs, &t.Caps.MaxSnippets, &t.Caps.MaxSecrets,
		&t.LastActivityAt, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}
	t.Caps.WebhookTimeout = time.Duration(webhookTimeoutMs) * time.Millisecond
	t.Caps.CodeTimeout = time.Duration(codeTimeoutMs) * time.Millisecond
	return t, nil
}

func (r *TenantRepository) FindByPortalID(ctx context.Context, portalID int64) (*models.Tenant, error) {
	q := dbctx.GetQuerier(ctx, r.db)
	query := `
        SELECT id, portal_id, status, encrypted_tokens, token_iv, token_refreshed_at,
               webhook_timeout_ms, code_timeout_ms, max_snippets, max_secrets,
               last_activity_at, created_at
        FROM tenants
        WHERE portal_id = $1
    `
	t := &models.Tenant{}
	var webhookTimeoutMs, codeTimeoutMs int64
	err := q.QueryRowContext(ctx, query, portalID).Scan(
		&t.ID, &t.PortalID, &t.Status, &t.EncryptedTokens, &t.TokenIV, &t.TokenRefreshedAt,
		&webhookTimeoutMs, &codeTimeoutMs, &t.Caps.MaxSnippets, &t.Caps.MaxSecrets,
		&t.LastActivityAt, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant by portal id: %w", err)
	}
	t.Caps.WebhookTimeout = time.Duration(webhookTimeoutMs) * time.Millisecond
	t.Caps.CodeTimeout = time.Duration(codeTimeoutMs) * time.Millisecond
	return t, nil
}

func (r *TenantRepository) UpdateTokens(ctx context.Context, tenantID uuid.UUID, encryptedTokens, iv []byte) error {
	q := dbctx.GetQuerier(ctx, r.db)
	res, err := q.ExecContext(ctx, `
        UPDATE tenants SET encrypted_tokens = $1, token_iv = $2, token_refreshed_at = now()
        WHERE id = $3
    `, encryptedTokens, iv, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchActivity writes LastActivityAt unconditionally; callers throttle via
// Tenant.ShouldRecordActivity before calling this so hot tenants don't cause
// write amplification.
func (r *TenantRepository) TouchActivity(ctx context.Context, tenantID uuid.UUID) error {
	q := dbctx.GetQuerier(ctx, r.db)
	_, err := q.ExecContext(ctx, `UPDATE tenants SET last_activity_at = now() WHERE id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to touch tenant activity: %w", err)
	}
	return nil
}
