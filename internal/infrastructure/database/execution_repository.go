// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/dbctx"
)

// ExecutionRepository satisfies providers.ExecutionStore: one insert per
// dispatch into execution_records, and one atomic jsonb-merging upsert per
// dispatch into usage_counters (spec I2/I4).
type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *ExecutionRepository) InsertExecution(ctx context.Context, rec models.ExecutionRecord) error {
	q := dbctx.GetQuerier(ctx, r.db)
	attemptsJSON, err := json.Marshal(rec.Attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}
	_, err = q.ExecContext(ctx, `
        INSERT INTO execution_records
            (id, tenant_id, action_kind, workflow_id, object_ref, status, duration_ms,
             request_snapshot, response_snapshot, attempts, error, created_at,
             archive_uri, archive_digest, archive_signature)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    `,
		rec.ID, rec.TenantID, rec.ActionKind, rec.WorkflowID, rec.ObjectRef, rec.Status,
		rec.Duration.Milliseconds(), rec.RequestSnapshot, rec.ResponseSnapshot, attemptsJSON, rec.Error, rec.CreatedAt,
		nullableString(rec.ArchiveURI), nullableString(rec.ArchiveDigest), nullableString(rec.ArchiveSignature),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// UpsertUsage folds one UsageDelta into the day's counter row in a single
// statement: count_by_kind/count_by_status are jsonb objects incremented via
// the || merge plus a COALESCE-to-zero read, duration aggregates update in
// the same UPDATE, and workflow_ids is a text[] the delta's id is appended to
// only if not already present. This keeps the whole aggregation inside
// Postgres so concurrent dispatches for the same tenant/day never race a
// Go-side read-modify-write.
func (r *ExecutionRepository) UpsertUsage(ctx context.Context, tenantID models.TenantID, day string, delta models.UsageDelta) error {
	q := dbctx.GetQuerier(ctx, r.db)
	durationMs := delta.Duration.Milliseconds()
	_, err := q.ExecContext(ctx, `
        INSERT INTO usage_counters
            (tenant_id, day, count_by_kind, count_by_status, total_duration_ms, max_duration_ms, workflow_ids)
        VALUES (
            $1, $2,
            jsonb_build_object($3::text, 1),
            jsonb_build_object($4::text, 1),
            $5, $5,
            CASE WHEN $6 = '' THEN ARRAY[]::text[] ELSE ARRAY[$6] END
        )
        ON CONFLICT (tenant_id, day) DO UPDATE SET
            count_by_kind = usage_counters.count_by_kind
                || jsonb_build_object($3::text, COALESCE((usage_counters.count_by_kind->>$3)::bigint, 0) + 1),
            count_by_status = usage_counters.count_by_status
                || jsonb_build_object($4::text, COALESCE((usage_counters.count_by_status->>$4)::bigint, 0) + 1),
            total_duration_ms = usage_counters.total_duration_ms + $5,
            max_duration_ms = GREATEST(usage_counters.max_duration_ms, $5),
            workflow_ids = CASE
                WHEN $6 = '' OR $6 = ANY(usage_counters.workflow_ids) THEN usage_counters.workflow_ids
                ELSE usage_counters.workflow_ids || $6
            END
    `, tenantID, day, string(delta.Kind), string(delta.Status), durationMs, delta.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to upsert usage counter: %w", err)
	}
	return nil
}

// ListExecutions satisfies providers.ExecutionQueryStore for the admin
// API's execution history view, newest first. Request/response snapshots
// are omitted to keep the listing light; this repository offers no
// single-record lookup that returns them.
func (r *ExecutionRepository) ListExecutions(ctx context.Context, tenantID models.TenantID, limit, offset int) ([]models.ExecutionRecord, int, error) {
	q := dbctx.GetQuerier(ctx, r.db)

	var total int
	if err := q.QueryRowContext(ctx, `SELECT count(*) FROM execution_records WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count execution records: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
        SELECT id, tenant_id, action_kind, workflow_id, object_ref, status, duration_ms, attempts, error, created_at,
               archive_uri, archive_digest, archive_signature
        FROM execution_records
        WHERE tenant_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3
    `, tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list execution records: %w", err)
	}
	defer rows.Close()

	var records []models.ExecutionRecord
	for rows.Next() {
		var rec models.ExecutionRecord
		var durationMs int64
		var attemptsJSON []byte
		var archiveURI, archiveDigest, archiveSignature sql.NullString
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.ActionKind, &rec.WorkflowID, &rec.ObjectRef,
			&rec.Status, &durationMs, &attemptsJSON, &rec.Error, &rec.CreatedAt,
			&archiveURI, &archiveDigest, &archiveSignature); err != nil {
			return nil, 0, fmt.Errorf("failed to scan execution record: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if len(attemptsJSON) > 0 {
			_ = json.Unmarshal(attemptsJSON, &rec.Attempts)
		}
		rec.ArchiveURI, rec.ArchiveDigest, rec.ArchiveSignature = archiveURI.String, archiveDigest.String, archiveSignature.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate execution records: %w", err)
	}
	return records, total, nil
}

// ListUsage satisfies providers.ExecutionQueryStore for the admin API's
// usage-counter view over an inclusive [fromDay, toDay] range (yyyy-mm-dd).
func (r *ExecutionRepository) ListUsage(ctx context.Context, tenantID models.TenantID, fromDay, toDay string) ([]models.UsageCounter, error) {
	q := dbctx.GetQuerier(ctx, r.db)
	rows, err := q.QueryContext(ctx, `
        SELECT day, count_by_kind, count_by_status, total_duration_ms, max_duration_ms, workflow_ids
        FROM usage_counters
        WHERE tenant_id = $1 AND day BETWEEN $2 AND $3
        ORDER BY day ASC
    `, tenantID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage counters: %w", err)
	}
	defer rows.Close()

	var counters []models.UsageCounter
	for rows.Next() {
		var day time.Time
		var countByKindJSON, countByStatusJSON []byte
		var totalMs, maxMs int64
		var workflowIDs []string
		if err := rows.Scan(&day, &countByKindJSON, &countByStatusJSON, &totalMs, &maxMs, pq.Array(&workflowIDs)); err != nil {
			return nil, fmt.Errorf("failed to scan usage counter: %w", err)
		}

		var byKind map[models.ActionKind]int64
		_ = json.Unmarshal(countByKindJSON, &byKind)
		var byStatus map[models.ExecutionStatus]int64
		_ = json.Unmarshal(countByStatusJSON, &byStatus)

		ids := map[string]struct{}{}
		for _, id := range workflowIDs {
			ids[id] = struct{}{}
		}

		counter := models.UsageCounter{
			TenantID:      tenantID,
			Day:           day,
			CountByKind:   byKind,
			CountByStatus: byStatus,
			TotalDuration: time.Duration(totalMs) * time.Millisecond,
			MaxDuration:   time.Duration(maxMs) * time.Millisecond,
			WorkflowIDs:   ids,
		}
		var n int64
		for _, c := range byStatus {
			n += c
		}
		if n > 0 {
			counter.AverageDuration = counter.TotalDuration / time.Duration(n)
		}
		counters = append(counters, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage counters: %w", err)
	}
	return counters, nil
}

