// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import (
	"time"

	"github.com/google/uuid"
)

// SnippetID identifies a stored, named piece of user source code.
type SnippetID = uuid.UUID

// Snippet is a tenant-scoped piece of user-authored source the Code Executor
// runs inside the sandbox. Created via the settings collaborator; the core
// only reads it by (tenant-id, snippet-id) and increments its usage counter.
type Snippet struct {
	ID                SnippetID
	TenantID          TenantID
	Source            string
	ExecutionCount    int64
	LastExecutedAt    time.Time
	CreatedAt         time.Time
}

// MaxSnippetSourceBytes bounds snippet source size (spec §3: ≤ 50 KiB).
const MaxSnippetSourceBytes = 50 * 1024

func (s *Snippet) ExceedsSizeLimit() bool {
	return len(s.Source) > MaxSnippetSourceBytes
}
