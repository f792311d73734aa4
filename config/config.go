// Package config provides environment-driven configuration for a
// graph-store partition process, following the donor's env-plus-fluent
// registration style but sourced from the environment the way a deployed
// service expects.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything needed to stand up one partition's Store.
type Config struct {
	// PartitionID addresses the isolated KV namespace this process serves.
	PartitionID string

	// Postgres DSN backing the KV table.
	PostgresDSN string

	// CacheBackend selects the Read Cache implementation: "memory" (default)
	// or "redis".
	CacheBackend string
	RedisAddr    string
	RedisPassword string
	RedisDB      int

	// BackupDir is the filesystem root the blob store writes backups under.
	BackupDir string

	// HTTPAddr is the address the transport listens on.
	HTTPAddr string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, optionally loading a
// .env file first (ignored if absent) the way the donor's examples assume
// a local dev DSN is available.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PartitionID:   getenv("GRAPHSTORE_PARTITION_ID", "default"),
		PostgresDSN:   getenv("GRAPHSTORE_POSTGRES_DSN", ""),
		CacheBackend:  strings.ToLower(getenv("GRAPHSTORE_CACHE_BACKEND", "memory")),
		RedisAddr:     getenv("GRAPHSTORE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("GRAPHSTORE_REDIS_PASSWORD", ""),
		BackupDir:     getenv("GRAPHSTORE_BACKUP_DIR", "./backups"),
		HTTPAddr:      getenv("GRAPHSTORE_HTTP_ADDR", ":8080"),
		LogLevel:      getenv("GRAPHSTORE_LOG_LEVEL", "info"),
		LogFormat:     getenv("GRAPHSTORE_LOG_FORMAT", "text"),
	}

	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("config: GRAPHSTORE_POSTGRES_DSN is required")
	}

	if raw := os.Getenv("GRAPHSTORE_REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("config: invalid GRAPHSTORE_REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	if cfg.CacheBackend != "memory" && cfg.CacheBackend != "redis" {
		return nil, fmt.Errorf("config: unknown cache backend %q", cfg.CacheBackend)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
