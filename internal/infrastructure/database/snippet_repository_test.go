//go:build integration

// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnippetRepository_GetAndIncrementUsage(t *testing.T) {
	tdb := SetupTestDB(t)
	repo := NewSnippetRepository(tdb.DB)
	tenant := NewTenantFactory(tdb.DB).CreateActiveTenant(t)
	snippet := NewSnippetFactory(tdb.DB).CreateSnippet(t, tenant.ID, "output.result = 'ok'")

	ctx := context.Background()

	got, err := repo.Get(ctx, tenant.ID, snippet.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snippet.Source, got.Source)
	assert.Equal(t, int64(0), got.ExecutionCount)

	require.NoError(t, repo.IncrementUsage(ctx, snippet.ID))
	got, err = repo.Get(ctx, tenant.ID, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ExecutionCount)
}

func TestSnippetRepository_GetWrongTenantReturnsNil(t *testing.T) {
	tdb := SetupTestDB(t)
	repo := NewSnippetRepository(tdb.DB)
	tenant := NewTenantFactory(tdb.DB).CreateActiveTenant(t)
	snippet := NewSnippetFactory(tdb.DB).CreateSnippet(t, tenant.ID, "output.result = 'ok'")

	got, err := repo.Get(context.Background(), uuid.New(), snippet.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
