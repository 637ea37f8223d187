// SPDX-License-Identifier: AGPL-3.0-or-later
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Signing  SigningConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Logger   LoggerConfig
}

// AppConfig carries the deployment's externally-visible identity, required
// so the signature verifier can build FullURI from a value that isn't
// attacker-controlled (spec §4.1: never trust the request Host header).
type AppConfig struct {
	ExternalBaseURL  string
	GeneralRateLimit int // requests per minute per client IP, default 100
}

type DatabaseConfig struct {
	DSN string
}

// SigningConfig holds the three secrets the dispatch boundary depends on:
// the app-level client secret every inbound action request is HMAC-signed
// with, the admin API's JWT signing key, and the AES-256-GCM key used to
// decrypt Secret/Tenant-token ciphertext at rest.
type SigningConfig struct {
	ClientSecret  string
	JWTSigningKey []byte
	EncryptionKey []byte // 32 raw bytes, decoded from a 64-hex env var
}

type ServerConfig struct {
	ListenAddr     string
	MetricsAddr    string
	ShutdownGrace  time.Duration
	WebhookTimeout time.Duration
	CodeTimeout    time.Duration
}

type RedisConfig struct {
	URL string // empty disables shared cache, falling back to an in-process one
}

type StorageConfig struct {
	Provider string // "local" or "s3"
	Local    LocalStorageConfig
	S3       S3StorageConfig
}

type LocalStorageConfig struct {
	BaseDir string
}

type S3StorageConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

type LoggerConfig struct {
	Level string
}

// Load loads configuration from ACTIONCORE_* environment variables.
func Load() (*Config, error) {
	config := &Config{}

	baseURL, err := getRequiredEnv("ACTIONCORE_EXTERNAL_BASE_URL")
	if err != nil {
		return nil, err
	}
	config.App.ExternalBaseURL = strings.TrimRight(baseURL, "/")
	config.App.GeneralRateLimit = getEnvInt("ACTIONCORE_GENERAL_RATE_LIMIT", 100)

	dsn, err := getRequiredEnv("ACTIONCORE_DB_DSN")
	if err != nil {
		return nil, err
	}
	config.Database.DSN = dsn

	clientSecret, err := getRequiredEnv("ACTIONCORE_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}
	config.Signing.ClientSecret = clientSecret

	jwtKey, err := getRequiredEnv("ACTIONCORE_JWT_SIGNING_KEY")
	if err != nil {
		return nil, err
	}
	config.Signing.JWTSigningKey = []byte(jwtKey)

	encKeyHex, err := getRequiredEnv("ACTIONCORE_ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}
	encKey, err := hex.DecodeString(encKeyHex)
	if err != nil || len(encKey) != 32 {
		return nil, fmt.Errorf("ACTIONCORE_ENCRYPTION_KEY must be 64 hex characters (32 bytes), got %d bytes", len(encKey))
	}
	config.Signing.EncryptionKey = encKey

	config.Server.ListenAddr = getEnv("ACTIONCORE_LISTEN_ADDR", ":8080")
	config.Server.MetricsAddr = getEnv("ACTIONCORE_METRICS_ADDR", ":9090")
	config.Server.ShutdownGrace = getEnvDuration("ACTIONCORE_SHUTDOWN_GRACE", 15*time.Second)
	config.Server.WebhookTimeout = getEnvDuration("ACTIONCORE_DEFAULT_WEBHOOK_TIMEOUT", 10*time.Second)
	config.Server.CodeTimeout = getEnvDuration("ACTIONCORE_DEFAULT_CODE_TIMEOUT", 5*time.Second)

	config.Redis.URL = getEnv("ACTIONCORE_REDIS_URL", "")

	config.Storage.Provider = getEnv("ACTIONCORE_STORAGE_PROVIDER", "local")
	config.Storage.Local.BaseDir = getEnv("ACTIONCORE_STORAGE_LOCAL_DIR", "./data/executions")
	config.Storage.S3.Bucket = getEnv("ACTIONCORE_STORAGE_S3_BUCKET", "")
	config.Storage.S3.Region = getEnv("ACTIONCORE_STORAGE_S3_REGION", "")
	config.Storage.S3.Endpoint = getEnv("ACTIONCORE_STORAGE_S3_ENDPOINT", "")
	config.Storage.S3.Prefix = getEnv("ACTIONCORE_STORAGE_S3_PREFIX", "")
	if config.Storage.Provider == "s3" && config.Storage.S3.Bucket == "" {
		return nil, fmt.Errorf("ACTIONCORE_STORAGE_PROVIDER=s3 requires ACTIONCORE_STORAGE_S3_BUCKET")
	}

	config.Logger.Level = getEnv("ACTIONCORE_LOG_LEVEL", "info")

	return config, nil
}

func getRequiredEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", fmt.Errorf("missing required environment variable: %s", key)
	}
	return value, nil
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
		return result
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
