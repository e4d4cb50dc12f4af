// Package config loads and validates harvest configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Sink        SinkConfig        `mapstructure:"sink"`
	Identifiers IdentifiersConfig `mapstructure:"identifiers"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CatalogConfig identifies the catalog site and how to browse it.
type CatalogConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	EntryPath          string `mapstructure:"entry_path"`
	DisplayPath        string `mapstructure:"display_path"`
	TitleField         string `mapstructure:"title_field"`
	ExternalPrefix     string `mapstructure:"external_prefix"`
	UserAgent          string `mapstructure:"user_agent"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	SettleDelaySeconds int    `mapstructure:"settle_delay_seconds"`
	Headless           bool   `mapstructure:"headless"`

	// Extensions lists the direct-artifact suffixes, lowercase with dot.
	Extensions []string `mapstructure:"extensions"`
}

// FetchConfig configures detail-page and artifact HTTP retry behavior.
type FetchConfig struct {
	PageTimeoutSeconds     int `mapstructure:"page_timeout_seconds"`
	ArtifactTimeoutSeconds int `mapstructure:"artifact_timeout_seconds"`
	Attempts               int `mapstructure:"attempts"`
	RetryDelaySeconds      int `mapstructure:"retry_delay_seconds"`
}

// SinkConfig selects and configures the artifact destination.
type SinkConfig struct {
	Backend      string   `mapstructure:"backend"`
	GCSBucket    string   `mapstructure:"gcs_bucket"`
	LocalDir     string   `mapstructure:"local_dir"`
	Prefix       string   `mapstructure:"prefix"`
	SkipKeywords []string `mapstructure:"skip_keywords"`
}

// IdentifiersConfig points at the allowlist source file.
type IdentifiersConfig struct {
	Path string `mapstructure:"path"`
}

// ProgressConfig sets the cursor and missing-log file locations.
type ProgressConfig struct {
	CursorPath  string `mapstructure:"cursor_path"`
	MissingPath string `mapstructure:"missing_path"`
}

// LedgerConfig controls the optional Postgres transfer ledger.
type LedgerConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for the optional completion signal.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GEOHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("catalog.entry_path", "default.asp")
	v.SetDefault("catalog.display_path", "display.asp")
	v.SetDefault("catalog.user_agent", "geoharvest/1.0")
	v.SetDefault("catalog.nav_timeout_seconds", 30)
	v.SetDefault("catalog.settle_delay_seconds", 2)
	v.SetDefault("catalog.headless", true)
	v.SetDefault("catalog.extensions", []string{".pdf", ".zip"})
	v.SetDefault("fetch.page_timeout_seconds", 30)
	v.SetDefault("fetch.artifact_timeout_seconds", 0)
	v.SetDefault("fetch.attempts", 3)
	v.SetDefault("fetch.retry_delay_seconds", 2)
	v.SetDefault("sink.backend", "gcs")
	v.SetDefault("sink.prefix", "geofiles")
	v.SetDefault("sink.skip_keywords", []string{})
	v.SetDefault("identifiers.path", "identifiers.txt")
	v.SetDefault("progress.cursor_path", "progress.txt")
	v.SetDefault("progress.missing_path", "missing.txt")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if c.Catalog.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("catalog.nav_timeout_seconds must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Fetch.Attempts <= 0 {
		return fmt.Errorf("fetch.attempts must be > 0")
	}
	switch c.Sink.Backend {
	case "gcs":
		if c.Sink.GCSBucket == "" {
			return fmt.Errorf("sink.gcs_bucket is required for the gcs backend")
		}
	case "local":
		if c.Sink.LocalDir == "" {
			return fmt.Errorf("sink.local_dir is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown sink.backend %q", c.Sink.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic is set")
	}
	return nil
}

// NavTimeout converts the catalog navigation timeout to a duration.
func (c CatalogConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// SettleDelay converts the post-navigation settle delay to a duration.
func (c CatalogConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelaySeconds) * time.Second
}

// PageTimeout converts the detail-page timeout to a duration.
func (c FetchConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// ArtifactTimeout converts the artifact timeout to a duration; zero means
// unbounded, the context governs.
func (c FetchConfig) ArtifactTimeout() time.Duration {
	return time.Duration(c.ArtifactTimeoutSeconds) * time.Second
}

// RetryDelay converts the fetch retry delay to a duration.
func (c FetchConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}
