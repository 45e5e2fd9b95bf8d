package ailink

import (
	"strings"
	"time"
)

// Model defaults mirror the OpenRouter identifiers the digest runs with.
const (
	DefaultQuickModel    = "openai/gpt-4.1-nano"
	DefaultDetailedModel = "openai/gpt-4.1-mini"
	DefaultQualityModel  = "openai/gpt-4o"
	DefaultKeywordsModel = "openai/gpt-4o-mini"
	DefaultProbeModel    = "openai/gpt-4o-mini"
	DefaultTemperature   = 0.1
)

// Config defines provider configuration for AILink.
//
// This is intentionally self-contained so it can be decoded straight from the
// "ailink" configuration subtree.
type Config struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Models      ModelConfig   `mapstructure:"models"`
	Retry       RetryConfig   `mapstructure:"retry"`

	// Referer and Title are sent as OpenRouter attribution headers.
	Referer string `mapstructure:"referer"`
	Title   string `mapstructure:"title"`

	// StructuredOutput sends the prompt's response_schema as a json_schema
	// response format instead of plain json_object.
	StructuredOutput bool `mapstructure:"structured_output"`

	// PromptsDir allows applications to override the built-in prompt set.
	PromptsDir string `mapstructure:"prompts_dir"`
	// TraceFile, when set, receives one NDJSON line per completion attempt.
	TraceFile string `mapstructure:"trace_file"`

	// Debug controls optional diagnostics like raw payload capture.
	Debug DebugConfig `mapstructure:"debug"`
}

// ModelConfig maps prompt roles onto model identifiers.
type ModelConfig struct {
	Quick    string `mapstructure:"quick"`
	Detailed string `mapstructure:"detailed"`
	Quality  string `mapstructure:"quality"`
	Keywords string `mapstructure:"keywords"`
	Probe    string `mapstructure:"probe"`
}

// RetryConfig bounds transport retries and 429 pauses.
type RetryConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BaseDelay           time.Duration `mapstructure:"base_delay"`
	MaxDelay            time.Duration `mapstructure:"max_delay"`
	MaxRateLimitRetries int           `mapstructure:"max_rate_limit_retries"`
}

type DebugConfig struct {
	CaptureRawEnabled  bool `mapstructure:"capture_raw_enabled"`
	CaptureRawMaxBytes int  `mapstructure:"capture_raw_max_bytes"`
}

// ModelFor returns the configured model for a prompt role, falling back to defaults.
func (c Config) ModelFor(role string) string {
	var configured, fallback string
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "quick":
		configured, fallback = c.Models.Quick, DefaultQuickModel
	case "detailed":
		configured, fallback = c.Models.Detailed, DefaultDetailedModel
	case "quality":
		configured, fallback = c.Models.Quality, DefaultQualityModel
	case "keywords":
		configured, fallback = c.Models.Keywords, DefaultKeywordsModel
	case "probe":
		configured, fallback = c.Models.Probe, DefaultProbeModel
	default:
		fallback = DefaultDetailedModel
	}
	if m := strings.TrimSpace(configured); m != "" {
		return m
	}
	return fallback
}
