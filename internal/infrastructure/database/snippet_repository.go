// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/dbctx"
)

// SnippetRepository satisfies providers.SnippetStore. The core only ever
// reads a snippet by (tenant-id, snippet-id) and increments its execution
// counter; creation and editing belong to the excluded settings collaborator.
type SnippetRepository struct {
	db *sql.DB
}

func NewSnippetRepository(db *sql.DB) *SnippetRepository {
	return &SnippetRepository{db: db}
}

func (r *SnippetRepository) Get(ctx context.Context, tenantID models.TenantID, snippetID models.SnippetID) (*models.Snippet, error) {
	q := dbctx.GetQuerier(ctx, r.db)
	s := &models.Snippet{}
	err := q.QueryRowContext(ctx, `
        SELECT id, tenant_id, source, execution_count, last_executed_at, created_at
        FROM snippets
        WHERE tenant_id = $1 AND id = $2
    `, tenantID, snippetID).Scan(&s.ID, &s.TenantID, &s.Source, &s.ExecutionCount, &s.LastExecutedAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snippet: %w", err)
	}
	return s, nil
}

func (r *SnippetRepository) IncrementUsage(ctx context.Context, snippetID models.SnippetID) error {
	q := dbctx.GetQuerier(ctx, r.db)
	_, err := q.ExecContext(ctx, `
        UPDATE snippets SET execution_count = execution_count + 1, last_executed_at = now()
        WHERE id = $1
    `, snippetID)
	if err != nil {
		return fmt.Errorf("failed to increment snippet usage: %w", err)
	}
	return nil
}
