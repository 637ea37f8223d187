// SPDX-License-Identifier: AGPL-3.0-or-later
package web

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"

	"github.com/triops/actioncore/pkg/config"
	"github.com/triops/actioncore/pkg/crypto"
)

func baseTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			ExternalBaseURL:  "https://actioncore.example.com",
			GeneralRateLimit: 100,
		},
		Server: config.ServerConfig{ListenAddr: ":0"},
		Signing: config.SigningConfig{
			ClientSecret:  "test-client-secret",
			JWTSigningKey: []byte("test-jwt-signing-key"),
		},
	}
}

func TestServerBuilder_ValidateRequiresDB(t *testing.T) {
	b := NewServerBuilder(baseTestConfig())
	_, err := b.Build(context.Background())
	assert.ErrorContains(t, err, "database is required")
}

func TestServerBuilder_ValidateRequiresStores(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://localhost/nonexistent")
	require.NoError(t, err)
	defer db.Close()

	b := NewServerBuilder(baseTestConfig()).WithDB(db)
	_, err = b.Build(context.Background())
	assert.ErrorContains(t, err, "tenant store is required")
}

func TestServerBuilder_DefaultsAppliedWhenUnset(t *testing.T) {
	b := NewServerBuilder(baseTestConfig())
	b.setDefaultProviders()

	assert.NotNil(t, b.quotaEnforcer)
	assert.NotNil(t, b.auditLogger)
}

func TestServerBuilder_RespectsInjectedProviders(t *testing.T) {
	cfg := baseTestConfig()
	b := NewServerBuilder(cfg).
		WithQuotaEnforcer(NewNoLimitQuotaEnforcer()).
		WithAuditLogger(NewLogOnlyAuditLogger())

	assert.NotNil(t, b.quotaEnforcer)
	assert.NotNil(t, b.auditLogger)
}

func TestNewEd25519Signer_Smoke(t *testing.T) {
	signer, err := crypto.NewEd25519Signer()
	require.NoError(t, err)
	assert.NotNil(t, signer)
}
