// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.conductor/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Storage: PostgreSQL connection (see storage.go)
//   - Engine: session lifetime, history depth, cache TTL, quotas, timeouts
//   - Search: embedder model for the document index
//   - Telemetry: OTLP trace export
//
// Security: the database password is never logged; it is masked in
// MarshalJSON. Validation is fail-fast with sentinel errors checked via
// errors.Is (see validation.go).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultEmbedderModel is the Gemini embedding model used for document
	// search. gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the document_chunks schema stores vector(768).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultHistorySize is the number of (tool call, result) turns kept per
	// session.
	DefaultHistorySize = 10

	// DefaultSessionIdleMinutes is the idle threshold after which a session
	// is evicted by the background sweep.
	DefaultSessionIdleMinutes = 30

	// DefaultRatePerMinute is the per-caller tool call quota.
	DefaultRatePerMinute = 20

	// DefaultCacheTTLSeconds is the aggregation cache entry lifetime.
	DefaultCacheTTLSeconds = 300

	// DefaultToolTimeoutSeconds bounds a single execution step (cache fetch,
	// document search, export assembly).
	DefaultToolTimeoutSeconds = 10

	// DefaultExportMaxRows caps a single export payload.
	DefaultExportMaxRows = 10000

	// DefaultExportTTLMinutes is how long a finished export stays
	// downloadable before the spool sweep removes it.
	DefaultExportTTLMinutes = 60
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Document search configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Engine configuration
	HistorySize        int      `mapstructure:"history_size" json:"history_size"`
	SessionIdleMinutes int      `mapstructure:"session_idle_minutes" json:"session_idle_minutes"`
	CacheTTLSeconds    int      `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	RatePerMinute      int      `mapstructure:"rate_per_minute" json:"rate_per_minute"`
	ToolTimeoutSeconds int      `mapstructure:"tool_timeout_seconds" json:"tool_timeout_seconds"`
	AdminCallers       []string `mapstructure:"admin_callers" json:"admin_callers"`

	// Export configuration
	ExportDir        string `mapstructure:"export_dir" json:"export_dir"`
	ExportMaxRows    int    `mapstructure:"export_max_rows" json:"export_max_rows"`
	ExportTTLMinutes int    `mapstructure:"export_ttl_minutes" json:"export_ttl_minutes"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	// Enabled turns on trace export. Default: false.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// AgentHost is the OTLP HTTP endpoint (default: localhost:4318).
	AgentHost string `mapstructure:"agent_host" json:"agent_host"`
	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName is the service name reported on spans.
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".conductor")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL takes precedence over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(configDir string) {
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "conductor")
	viper.SetDefault("postgres_password", "conductor_dev_password")
	viper.SetDefault("postgres_db_name", "conductor")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	viper.SetDefault("history_size", DefaultHistorySize)
	viper.SetDefault("session_idle_minutes", DefaultSessionIdleMinutes)
	viper.SetDefault("cache_ttl_seconds", DefaultCacheTTLSeconds)
	viper.SetDefault("rate_per_minute", DefaultRatePerMinute)
	viper.SetDefault("tool_timeout_seconds", DefaultToolTimeoutSeconds)
	viper.SetDefault("admin_callers", []string{})

	viper.SetDefault("export_dir", filepath.Join(configDir, "exports"))
	viper.SetDefault("export_max_rows", DefaultExportMaxRows)
	viper.SetDefault("export_ttl_minutes", DefaultExportTTLMinutes)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.agent_host", "localhost:4318")
	viper.SetDefault("telemetry.environment", "dev")
	viper.SetDefault("telemetry.service_name", "conductor")
}

// bindEnvVariables binds environment variables to configuration keys.
// Environment variables use the CONDUCTOR_ prefix, e.g. CONDUCTOR_POSTGRES_HOST.
func bindEnvVariables() {
	viper.SetEnvPrefix("CONDUCTOR")
	viper.AutomaticEnv()

	keys := []string{
		"postgres_host", "postgres_port", "postgres_user",
		"postgres_password", "postgres_db_name", "postgres_ssl_mode",
		"embedder_model",
		"history_size", "session_idle_minutes", "cache_ttl_seconds",
		"rate_per_minute", "tool_timeout_seconds",
		"export_dir", "export_max_rows", "export_ttl_minutes",
	}
	for _, key := range keys {
		_ = viper.BindEnv(key)
	}
}

// MarshalJSON masks sensitive fields so the config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "********"
	}
	return json.Marshal(masked)
}
