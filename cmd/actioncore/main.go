package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/triops/actioncore/internal/application/services"
	"github.com/triops/actioncore/internal/infrastructure/database"
	"github.com/triops/actioncore/internal/infrastructure/metrics"
	"github.com/triops/actioncore/pkg/config"
	"github.com/triops/actioncore/pkg/crypto"
	"github.com/triops/actioncore/pkg/logger"
	"github.com/triops/actioncore/pkg/storage"
	"github.com/triops/actioncore/pkg/web"
)

// Build-time variables set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "health" {
		os.Exit(runHealthCheck())
	}

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logger.Level))
	logger.Logger.Info("starting actioncore", "version", Version, "commit", Commit)

	db, err := database.InitDB(ctx, database.Config{DSN: cfg.Database.DSN})
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	tenants := database.NewTenantRepository(db)
	snippets := database.NewSnippetRepository(db)
	secrets := database.NewSecretRepository(db)
	executions := database.NewExecutionRepository(db)

	encryptor, err := crypto.NewGCMPrimitive(cfg.Signing.EncryptionKey)
	if err != nil {
		log.Fatalf("failed to initialize encryption primitive: %v", err)
	}

	registry := metrics.New()

	storageProvider, err := storage.NewProvider(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize storage provider: %v", err)
	}

	signer, err := crypto.NewEd25519Signer()
	if err != nil {
		log.Fatalf("failed to initialize snapshot signer: %v", err)
	}
	archiver := services.NewSnapshotArchiver(storageProvider, signer)

	server, err := web.NewServerBuilder(cfg).
		WithDB(db).
		WithTenants(tenants).
		WithSnippets(snippets).
		WithSecrets(secrets).
		WithExecutions(executions).
		WithEncryptor(encryptor).
		WithMetrics(registry).
		WithArchiver(archiver).
		Build(ctx)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: registry.Handler()}
	go func() {
		logger.Logger.Info("metrics server starting", "addr", cfg.Server.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("metrics server error", "error", err.Error())
		}
	}()

	go func() {
		logger.Logger.Info("actioncore server starting", "addr", server.GetAddr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("shutting down actioncore server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warn("metrics server forced to shutdown", "error", err.Error())
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warn("server forced to shutdown", "error", err.Error())
	}

	logger.Logger.Info("actioncore server exited")
}

// runHealthCheck performs a health check against the local server, for use
// as a Docker HEALTHCHECK command. Returns 0 on success, 1 on failure.
func runHealthCheck() int {
	addr := os.Getenv("ACTIONCORE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	host := "localhost"
	port := addr
	if addr[0] != ':' {
		for i := len(addr) - 1; i >= 0; i-- {
			if addr[i] == ':' {
				port = addr[i:]
				break
			}
		}
	}

	url := fmt.Sprintf("http://%s%s/health", host, port)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	return 0
}
