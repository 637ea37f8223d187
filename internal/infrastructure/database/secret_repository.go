// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/dbctx"
	"github.com/triops/actioncore/pkg/providers"
)

// SecretRepository satisfies providers.SecretStore. It never selects the
// secret's plaintext, only the ciphertext/iv/auth_tag the encryption
// primitive needs to decrypt it on demand (spec I1: plaintext never persisted
// or logged by the core).
type SecretRepository struct {
	db *sql.DB
}

func NewSecretRepository(db *sql.DB) *SecretRepository {
	return &SecretRepository{db: db}
}

func (r *SecretRepository) List(ctx context.Context, tenantID models.TenantID) ([]providers.ResolvedSecret, error) {
	q := dbctx.GetQuerier(ctx, r.db)
	rows, err := q.QueryContext(ctx, `
        SELECT id, name, ciphertext, iv, auth_tag
        FROM secrets
        WHERE tenant_id = $1
    `, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	defer rows.Close()

	var out []providers.ResolvedSecret
	for rows.Next() {
		var s providers.ResolvedSecret
		if err := rows.Scan(&s.ID, &s.Name, &s.Ciphertext, &s.IV, &s.AuthTag); err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// BulkIncrementUsage increments usage_count and last_used_at for exactly the
// secrets a dispatched Code Action actually referenced, in one statement, so
// unreferenced secrets in the same tenant are left untouched.
func (r *SecretRepository) BulkIncrementUsage(ctx context.Context, secretIDs []string) error {
	if len(secretIDs) == 0 {
		return nil
	}
	q := dbctx.GetQuerier(ctx, r.db)
	_, err := q.ExecContext(ctx, `
        UPDATE secrets
        SET usage_count = usage_count + 1, last_used_at = now()
        WHERE id = ANY($1)
    `, pq.Array(secretIDs))
	if err != nil {
		return fmt.Errorf("failed to bulk increment secret usage: %w", err)
	}
	return nil
}
