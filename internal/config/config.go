package config

import (
	"time"

	"github.com/paperscope/paperscope/internal/ailink"
)

// Config represents the complete application configuration.
//
// Values are layered by viper: built-in defaults, then the YAML config file,
// then PAPERSCOPE_* environment variables (and a handful of legacy names).
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	AILink     ailink.Config    `mapstructure:"ailink"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Source     SourceConfig     `mapstructure:"source"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Workers    int              `mapstructure:"workers"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects where classified papers are kept.
//
// Driver "libsql" (default) uses a local file or Turso URL; "qdrant" writes
// papers as points into the collection configured under qdrant.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// QdrantConfig addresses the vector database over gRPC.
type QdrantConfig struct {
	// URL is the REST-style endpoint (e.g. https://xyz.cloud.qdrant.io:6333);
	// Host and UseTLS are derived from it when Host is empty.
	URL        string `mapstructure:"url"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	UseTLS     bool   `mapstructure:"use_tls"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
	VectorSize int    `mapstructure:"vector_size"`
}

// EmbeddingConfig configures the text embedding backend.
type EmbeddingConfig struct {
	// Provider is "ollama" or "none".
	Provider string `mapstructure:"provider"`
	URL      string `mapstructure:"url"`
	Model    string `mapstructure:"model"`
}

// GovernanceConfig bounds outbound LLM traffic.
type GovernanceConfig struct {
	WindowLimit    int           `mapstructure:"window_limit"`
	WindowDuration time.Duration `mapstructure:"window_duration"`
	// SafetyMargin is added to window waits; zero means 10% of the window.
	SafetyMargin   time.Duration `mapstructure:"safety_margin"`
	DailyLimit     int           `mapstructure:"daily_limit"`
	PaidTier       bool          `mapstructure:"paid_tier"`
	PaidDailyLimit int           `mapstructure:"paid_daily_limit"`
	MaxQuotaWait   time.Duration `mapstructure:"max_quota_wait"`
	CourtesyDelay  time.Duration `mapstructure:"courtesy_delay"`
}

// FeedConfig selects the subject matter of a run.
type FeedConfig struct {
	Type string `mapstructure:"type"`
}

// SourceConfig configures where candidate papers come from.
//
// Kind "arxiv" queries the arXiv API by category, "rss" polls Feeds, and
// "file" reads a JSON or JSON-lines batch.
type SourceConfig struct {
	Kind       string        `mapstructure:"kind"`
	BaseURL    string        `mapstructure:"base_url"`
	Categories []string      `mapstructure:"categories"`
	Feeds      []string      `mapstructure:"feeds"`
	MaxResults int           `mapstructure:"max_results"`
	Since      time.Duration `mapstructure:"since"`
	File       string        `mapstructure:"file"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}
