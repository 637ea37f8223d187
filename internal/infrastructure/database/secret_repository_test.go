//go:build integration

// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRepository_ListAndBulkIncrementUsage(t *testing.T) {
	tdb := SetupTestDB(t)
	repo := NewSecretRepository(tdb.DB)
	tenant := NewTenantFactory(tdb.DB).CreateActiveTenant(t)
	secrets := NewSecretFactory(tdb.DB)
	id1 := secrets.CreateSecret(t, tenant.ID, "API_KEY")
	id2 := secrets.CreateSecret(t, tenant.ID, "API_SECRET")

	ctx := context.Background()

	list, err := repo.List(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, repo.BulkIncrementUsage(ctx, []string{id1}))

	var usageCount int64
	require.NoError(t, tdb.DB.QueryRow(`SELECT usage_count FROM secrets WHERE id = $1`, id1).Scan(&usageCount))
	assert.Equal(t, int64(1), usageCount)
	require.NoError(t, tdb.DB.QueryRow(`SELECT usage_count FROM secrets WHERE id = $1`, id2).Scan(&usageCount))
	assert.Equal(t, int64(0), usageCount)
}

func TestSecretRepository_BulkIncrementUsageNoopOnEmpty(t *testing.T) {
	tdb := SetupTestDB(t)
	repo := NewSecretRepository(tdb.DB)
	require.NoError(t, repo.BulkIncrementUsage(context.Background(), nil))
}
