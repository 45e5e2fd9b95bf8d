// Package config provides centralized configuration management for paperscope.
// It layers built-in defaults, a YAML config file, and environment variables
// through viper, then decodes the merged tree with mapstructure.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/paperscope/paperscope/internal/ailink"
	"github.com/paperscope/paperscope/internal/core"
)

const (
	// AppName names config, data, and binary paths.
	AppName = "paperscope"
	// EnvPrefix prefixes every environment override (PAPERSCOPE_AILINK_API_KEY, ...).
	EnvPrefix = "PAPERSCOPE"

	defaultQdrantPort = 6334
	defaultVectorSize = 384
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// legacyEnv maps config keys onto the environment names earlier digest
// scripts used, checked after the prefixed name.
var legacyEnv = map[string][]string{
	"ailink.api_key":         {"OPENROUTER_API_KEY"},
	"ailink.models.quick":    {"QUICK_ASSESSMENT_MODEL"},
	"ailink.models.detailed": {"DETAILED_ASSESSMENT_MODEL"},
	"ailink.models.quality":  {"AI_MODEL"},
	"ailink.temperature":     {"TEMPERATURE"},
	"qdrant.url":             {"QDRANT_API_URL"},
	"qdrant.api_key":         {"QDRANT_API_KEY"},
	"feed.type":              {"FEED_TYPE"},
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Qdrant defaults
	v.SetDefault("qdrant.url", "")
	v.SetDefault("qdrant.host", "")
	v.SetDefault("qdrant.port", defaultQdrantPort)
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.api_key", "")
	v.SetDefault("qdrant.collection", "")
	v.SetDefault("qdrant.vector_size", defaultVectorSize)

	// Embedding defaults
	v.SetDefault("embedding.provider", "none")
	v.SetDefault("embedding.url", "http://localhost:11434")
	v.SetDefault("embedding.model", "all-minilm")

	// AILink defaults
	v.SetDefault("ailink.provider", "openrouter")
	v.SetDefault("ailink.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("ailink.api_key", "")
	v.SetDefault("ailink.temperature", ailink.DefaultTemperature)
	v.SetDefault("ailink.timeout", "30s")
	v.SetDefault("ailink.models.quick", ailink.DefaultQuickModel)
	v.SetDefault("ailink.models.detailed", ailink.DefaultDetailedModel)
	v.SetDefault("ailink.models.quality", ailink.DefaultQualityModel)
	v.SetDefault("ailink.models.keywords", ailink.DefaultKeywordsModel)
	v.SetDefault("ailink.models.probe", ailink.DefaultProbeModel)
	v.SetDefault("ailink.retry.max_attempts", 3)
	v.SetDefault("ailink.retry.base_delay", "1s")
	v.SetDefault("ailink.retry.max_delay", "10s")
	v.SetDefault("ailink.retry.max_rate_limit_retries", 2)
	v.SetDefault("ailink.referer", "https://github.com/paperscope/paperscope")
	v.SetDefault("ailink.title", "paperscope")
	v.SetDefault("ailink.structured_output", false)
	v.SetDefault("ailink.prompts_dir", "")
	v.SetDefault("ailink.trace_file", "")
	v.SetDefault("ailink.debug.capture_raw_enabled", false)
	v.SetDefault("ailink.debug.capture_raw_max_bytes", 4096)

	// Governance defaults
	v.SetDefault("governance.window_limit", 20)
	v.SetDefault("governance.window_duration", "60s")
	v.SetDefault("governance.safety_margin", "0s")
	v.SetDefault("governance.daily_limit", 50)
	v.SetDefault("governance.paid_tier", false)
	v.SetDefault("governance.paid_daily_limit", 1000)
	v.SetDefault("governance.max_quota_wait", "1h")
	v.SetDefault("governance.courtesy_delay", "1500ms")

	// Feed and source defaults
	v.SetDefault("feed.type", string(core.FeedAISecurity))
	v.SetDefault("source.kind", "arxiv")
	v.SetDefault("source.base_url", "https://export.arxiv.org/api/query")
	v.SetDefault("source.categories", []string{"cs.CR", "cs.AI", "cs.LG", "cs.CL"})
	v.SetDefault("source.feeds", []string{
		"https://export.arxiv.org/rss/cs.AI",
		"https://export.arxiv.org/rss/cs.LG",
		"https://export.arxiv.org/rss/cs.CL",
		"https://export.arxiv.org/rss/cs.CV",
		"https://aclanthology.org/papers/index.xml",
	})
	v.SetDefault("source.max_results", 100)
	v.SetDefault("source.since", "24h")
	v.SetDefault("source.file", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("workers", 1)
}

// BindEnv enables PAPERSCOPE_* overrides (dots become underscores) plus the legacy names.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, prefixed}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and environment bindings applied.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load decodes the merged settings of v into a Config, fills derived values
// and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// FeedType returns the parsed feed selector.
func (c *Config) FeedType() core.FeedType {
	feed, ok := core.ParseFeedType(c.Feed.Type)
	if !ok {
		return core.FeedAISecurity
	}
	return feed
}

// Collection returns the vector collection for the active feed.
func (c *Config) Collection() string {
	if strings.TrimSpace(c.Qdrant.Collection) != "" {
		return c.Qdrant.Collection
	}
	return c.FeedType().Collection()
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if _, ok := core.ParseFeedType(c.Feed.Type); !ok {
		return fmt.Errorf("invalid feed.type %q (want one of %s)", c.Feed.Type, feedNames())
	}
	if c.Governance.WindowLimit <= 0 {
		return fmt.Errorf("governance.window_limit must be positive, got %d", c.Governance.WindowLimit)
	}
	if c.Governance.WindowDuration <= 0 {
		return fmt.Errorf("governance.window_duration must be positive, got %s", c.Governance.WindowDuration)
	}
	if c.Governance.DailyLimit <= 0 {
		return fmt.Errorf("governance.daily_limit must be positive, got %d", c.Governance.DailyLimit)
	}
	if c.AILink.Temperature < 0 || c.AILink.Temperature > 2 {
		return fmt.Errorf("ailink.temperature must be within [0, 2], got %g", c.AILink.Temperature)
	}
	switch strings.ToLower(c.Store.Driver) {
	case "libsql", "qdrant":
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "ollama", "none", "":
	default:
		return fmt.Errorf("unsupported embedding.provider %q", c.Embedding.Provider)
	}
	if strings.EqualFold(c.Store.Driver, "qdrant") && !strings.EqualFold(c.Embedding.Provider, "ollama") {
		return fmt.Errorf("store.driver qdrant needs vectors; set embedding.provider to ollama")
	}
	switch strings.ToLower(c.Source.Kind) {
	case "arxiv", "rss", "file", "":
	default:
		return fmt.Errorf("unsupported source.kind %q", c.Source.Kind)
	}
	return nil
}

func (c *Config) finalize() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = "libsql"
	}
	if strings.TrimSpace(c.Store.URL) == "" && strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = DefaultStorePath()
	}

	if feed, ok := core.ParseFeedType(c.Feed.Type); ok {
		c.Feed.Type = string(feed)
	}

	if c.Qdrant.VectorSize <= 0 {
		c.Qdrant.VectorSize = defaultVectorSize
	}
	if c.Qdrant.Port <= 0 {
		c.Qdrant.Port = defaultQdrantPort
	}
	if strings.TrimSpace(c.Qdrant.Host) == "" && strings.TrimSpace(c.Qdrant.URL) != "" {
		host, useTLS, err := parseQdrantURL(c.Qdrant.URL)
		if err != nil {
			return err
		}
		c.Qdrant.Host = host
		c.Qdrant.UseTLS = c.Qdrant.UseTLS || useTLS
	}
	return nil
}

// parseQdrantURL extracts the gRPC host from a REST endpoint URL.
// The REST port (6333) is ignored; gRPC listens on qdrant.port.
func parseQdrantURL(raw string) (string, bool, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false, fmt.Errorf("invalid qdrant.url: %w", err)
	}
	if parsed.Hostname() == "" {
		return "", false, fmt.Errorf("invalid qdrant.url %q: missing host", raw)
	}
	return parsed.Hostname(), parsed.Scheme == "https", nil
}

func feedNames() string {
	names := make([]string, 0, len(core.FeedTypes))
	for _, f := range core.FeedTypes {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// PersistSetting writes a single key into the YAML config file at path,
// leaving other file contents intact. Environment values are never written.
func PersistSetting(path, key string, value any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("config path is required")
	}

	fv := viper.New()
	fv.SetConfigFile(path)
	fv.SetConfigType("yaml")
	if _, err := os.Stat(path); err == nil {
		if err := fv.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config %s: %w", path, err)
	}

	fv.Set(key, value)

	// #nosec G301 -- config directories use 0755 like other XDG dirs
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := fv.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultConfigDirs lists directories searched for config.yaml, in order.
func DefaultConfigDirs() []string {
	dirs := []string{"."}
	if dir := gfconfig.GetAppConfigDir(AppName); strings.TrimSpace(dir) != "" {
		dirs = append(dirs, dir)
	}
	return dirs
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
