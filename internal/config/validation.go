package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel errors for configuration validation, checked with errors.Is.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidHistorySize indicates the session history size is out of range.
	ErrInvalidHistorySize = errors.New("invalid history size")

	// ErrInvalidSessionIdle indicates the session idle threshold is out of range.
	ErrInvalidSessionIdle = errors.New("invalid session idle threshold")

	// ErrInvalidCacheTTL indicates the cache TTL is out of range.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidRateQuota indicates the per-caller quota is out of range.
	ErrInvalidRateQuota = errors.New("invalid rate quota")

	// ErrInvalidToolTimeout indicates the tool timeout is out of range.
	ErrInvalidToolTimeout = errors.New("invalid tool timeout")

	// ErrInvalidExportLimit indicates the export row cap is out of range.
	ErrInvalidExportLimit = errors.New("invalid export row limit")
)

// validSSLModes are the PostgreSQL sslmode values accepted by pgx.
var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Validate checks the configuration for obvious misconfiguration.
// It is called by Load immediately after unmarshalling (fail-fast).
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q (must be one of %s)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, strings.Join(validSSLModes, ", "))
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.HistorySize < 1 || c.HistorySize > 1000 {
		return fmt.Errorf("%w: %d (must be 1-1000)", ErrInvalidHistorySize, c.HistorySize)
	}
	if c.SessionIdleMinutes < 1 || c.SessionIdleMinutes > 24*60 {
		return fmt.Errorf("%w: %d minutes (must be 1-1440)", ErrInvalidSessionIdle, c.SessionIdleMinutes)
	}
	if c.CacheTTLSeconds < 1 || c.CacheTTLSeconds > 24*3600 {
		return fmt.Errorf("%w: %d seconds (must be 1-86400)", ErrInvalidCacheTTL, c.CacheTTLSeconds)
	}
	if c.RatePerMinute < 1 || c.RatePerMinute > 100000 {
		return fmt.Errorf("%w: %d per minute (must be 1-100000)", ErrInvalidRateQuota, c.RatePerMinute)
	}
	if c.ToolTimeoutSeconds < 1 || c.ToolTimeoutSeconds > 600 {
		return fmt.Errorf("%w: %d seconds (must be 1-600)", ErrInvalidToolTimeout, c.ToolTimeoutSeconds)
	}
	if c.ExportMaxRows < 1 || c.ExportMaxRows > 1_000_000 {
		return fmt.Errorf("%w: %d rows (must be 1-1000000)", ErrInvalidExportLimit, c.ExportMaxRows)
	}

	return nil
}
