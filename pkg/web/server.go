// SPDX-License-Identifier: AGPL-3.0-or-later
package web

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/triops/actioncore/internal/application/services"
	"github.com/triops/actioncore/internal/infrastructure/cache"
	"github.com/triops/actioncore/internal/infrastructure/sandbox"
	"github.com/triops/actioncore/internal/infrastructure/ssrf"
	"github.com/triops/actioncore/internal/infrastructure/tenant"
	"github.com/triops/actioncore/internal/presentation/actions"
	"github.com/triops/actioncore/internal/presentation/admin"
	"github.com/triops/actioncore/internal/presentation/api"
	"github.com/triops/actioncore/pkg/config"
	"github.com/triops/actioncore/pkg/logger"
	"github.com/triops/actioncore/pkg/providers"
)

// Server wraps the listening HTTP server plus the collaborators that need
// an orderly Shutdown.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	router     *chi.Mux

	quotaEnforcer providers.QuotaEnforcer
	auditLogger   providers.AuditLogger
}

// ServerBuilder assembles a Server from the action-execution domain's
// excluded collaborators. DB and the four store providers are REQUIRED;
// QuotaEnforcer and AuditLogger fall back to the CE defaults
// (NoLimitQuotaEnforcer, LogOnlyAuditLogger) when left unset (spec §6.5).
type ServerBuilder struct {
	cfg *config.Config

	db         *sql.DB
	tenants    providers.TenantStore
	snippets   providers.SnippetStore
	secrets    providers.SecretStore
	executions *executionStores

	encryptor providers.EncryptionPrimitive
	metrics   providers.MetricsRecorder
	archiver  *services.SnapshotArchiver

	quotaEnforcer providers.QuotaEnforcer
	auditLogger   providers.AuditLogger
}

// executionStores bundles the write (ExecutionStore) and read
// (ExecutionQueryStore) sides of execution-record persistence; in
// production both are satisfied by the same *database.ExecutionRepository,
// but the Dispatcher and the admin API never need each other's half.
type executionStores struct {
	writer providers.ExecutionStore
	reader providers.ExecutionQueryStore
}

func NewServerBuilder(cfg *config.Config) *ServerBuilder {
	return &ServerBuilder{cfg: cfg}
}

// WithDB injects the database connection (REQUIRED): used both for
// repository access and to open the per-request RLS transaction the
// Dispatcher needs once a tenant is resolved (spec §6.1).
func (b *ServerBuilder) WithDB(db *sql.DB) *ServerBuilder {
	b.db = db
	return b
}

// WithTenants injects the Tenant Store (REQUIRED).
func (b *ServerBuilder) WithTenants(store providers.TenantStore) *ServerBuilder {
	b.tenants = store
	return b
}

// WithSnippets injects the Snippet Store (REQUIRED).
func (b *ServerBuilder) WithSnippets(store providers.SnippetStore) *ServerBuilder {
	b.snippets = store
	return b
}

// WithSecrets injects the Secret Store (REQUIRED).
func (b *ServerBuilder) WithSecrets(store providers.SecretStore) *ServerBuilder {
	b.secrets = store
	return b
}

// WithExecutions injects the execution-record read/write collaborator
// (REQUIRED). A single repository satisfying both interfaces is the normal
// case; store is accepted as `any` so callers can pass one concrete value
// satisfying both ExecutionStore and ExecutionQueryStore.
func (b *ServerBuilder) WithExecutions(store interface {
	providers.ExecutionStore
	providers.ExecutionQueryStore
}) *ServerBuilder {
	b.executions = &executionStores{writer: store, reader: store}
	return b
}

// WithEncryptor injects the AES-256-GCM primitive used to decrypt Secret
// ciphertext and Tenant OAuth tokens (REQUIRED).
func (b *ServerBuilder) WithEncryptor(encryptor providers.EncryptionPrimitive) *ServerBuilder {
	b.encryptor = encryptor
	return b
}

// WithMetrics injects the Prometheus recorder (optional; nil skips
// observations).
func (b *ServerBuilder) WithMetrics(metrics providers.MetricsRecorder) *ServerBuilder {
	b.metrics = metrics
	return b
}

// WithArchiver injects the snapshot archiver (optional; nil leaves oversized
// snapshots truncated instead of spilled to object storage).
func (b *ServerBuilder) WithArchiver(archiver *services.SnapshotArchiver) *ServerBuilder {
	b.archiver = archiver
	return b
}

// WithQuotaEnforcer overrides the CE default NoLimitQuotaEnforcer.
func (b *ServerBuilder) WithQuotaEnforcer(enforcer providers.QuotaEnforcer) *ServerBuilder {
	b.quotaEnforcer = enforcer
	return b
}

// WithAuditLogger overrides the CE default LogOnlyAuditLogger.
func (b *ServerBuilder) WithAuditLogger(auditLogger providers.AuditLogger) *ServerBuilder {
	b.auditLogger = auditLogger
	return b
}

func (b *ServerBuilder) validate() error {
	if b.db == nil {
		return errors.New("database is required: use WithDB()")
	}
	if b.tenants == nil {
		return errors.New("tenant store is required: use WithTenants()")
	}
	if b.snippets == nil {
		return errors.New("snippet store is required: use WithSnippets()")
	}
	if b.secrets == nil {
		return errors.New("secret store is required: use WithSecrets()")
	}
	if b.executions == nil {
		return errors.New("execution store is required: use WithExecutions()")
	}
	if b.encryptor == nil {
		return errors.New("encryption primitive is required: use WithEncryptor()")
	}
	return nil
}

func (b *ServerBuilder) setDefaultProviders() {
	if b.quotaEnforcer == nil {
		b.quotaEnforcer = NewNoLimitQuotaEnforcer()
	}
	if b.auditLogger == nil {
		b.auditLogger = NewLogOnlyAuditLogger()
	}
}

// Build wires every Dispatcher collaborator from the injected providers and
// mounts the action-dispatch and admin routers.
func (b *ServerBuilder) Build(ctx context.Context) (*Server, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	b.setDefaultProviders()

	secretCache, err := cache.NewFromURL(b.cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	secretResolver := services.NewSecretResolver(b.secrets, b.encryptor).WithCache(secretCache)

	webhookGuard := ssrf.NewGuard(nil)
	webhookExecutor := services.NewWebhookExecutor(webhookGuard).WithMetrics(b.metrics)

	codeExecutor := services.NewCodeExecutor(secretResolver, sandbox.NewWorker()).WithMetrics(b.metrics)

	formulaEvaluator := services.NewFormulaEvaluator()

	recorder := services.NewExecutionRecorder(b.executions.writer).WithMetrics(b.metrics).WithArchiver(b.archiver)

	dispatcher := services.NewDispatcher(
		b.tenants, webhookExecutor, codeExecutor, formulaEvaluator, recorder,
		b.quotaEnforcer, b.auditLogger, b.metrics,
	).WithRLS(tenant.NewRLSRunner(b.db))

	actionsHandler := actions.NewHandler(dispatcher, b.tenants, "hs")
	adminHandler := admin.NewHandler(b.executions.reader)

	router := api.NewRouter(api.RouterConfig{
		DB:               b.db,
		ClientSecret:     b.cfg.Signing.ClientSecret,
		JWTSigningKey:    b.cfg.Signing.JWTSigningKey,
		ExternalBaseURL:  b.cfg.App.ExternalBaseURL,
		ActionsHandler:   actionsHandler,
		AdminHandler:     adminHandler,
		GeneralRateLimit: b.cfg.App.GeneralRateLimit,
	})

	httpServer := &http.Server{
		Addr:    b.cfg.Server.ListenAddr,
		Handler: router,
	}

	logger.Logger.Info("server built", "listen_addr", b.cfg.Server.ListenAddr)

	return &Server{
		httpServer:    httpServer,
		db:            b.db,
		router:        router,
		quotaEnforcer: b.quotaEnforcer,
		auditLogger:   b.auditLogger,
	}, nil
}

// === Server methods ===

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) GetAddr() string {
	return s.httpServer.Addr
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) GetDB() *sql.DB {
	return s.db
}

func (s *Server) GetQuotaEnforcer() providers.QuotaEnforcer {
	return s.quotaEnforcer
}

func (s *Server) GetAuditLogger() providers.AuditLogger {
	return s.auditLogger
}
