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

func TestTenantRepository_FindUpdateTokensTouchActivity(t *testing.T) {
	tdb := SetupTestDB(t)
	repo := NewTenantRepository(tdb.DB)
	tenant := NewTenantFactory(tdb.DB).CreateActiveTenant(t)

	ctx := context.Background()

	got, err := repo.Find(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tenant.PortalID, got.PortalID)
	assert.True(t, got.IsActive())

	require.NoError(t, repo.UpdateTokens(ctx, tenant.ID, []byte("ciphertext"), []byte("iv")))
	got, err = repo.Find(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), got.EncryptedTokens)

	require.NoError(t, repo.TouchActivity(ctx, tenant.ID))
	got, err = repo.Find(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, got.LastActivityAt.IsZero())
}

func TestTenantRepository_FindByPortalID(t *testing.T) {
	tdb := SetupTestDB(t)
	repo := NewTenantRepository(tdb.DB)
	tenant := NewTenantFactory(tdb.DB).CreateActiveTenant(t)

	got, err := repo.FindByPortalID(context.Background(), tenant.PortalID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tenant.ID, got.ID)
}

func TestTenantRepository_FindUnknownReturnsNil(t *testing.T) {
	tdb := SetupTestDB(t)
	repo := NewTenantRepository(tdb.DB)

	got, err := repo.Find(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}
