package ailink

import (
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/ailink/driver/openai"
	"github.com/paperscope/paperscope/internal/core/engine"
	"github.com/paperscope/paperscope/internal/metrics"
)

// NewClient builds the OpenAI-compatible driver from configuration and, when
// gov is non-nil, routes every attempt through it.
func NewClient(cfg Config, gov *engine.Governor) *openai.Client {
	client := openai.NewClient(cfg.BaseURL, cfg.APIKey)
	if p := strings.TrimSpace(cfg.Provider); p != "" {
		client.Provider = p
	}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	if cfg.Retry.MaxAttempts > 0 {
		client.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay > 0 {
		client.RetryBaseDelay = cfg.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		client.RetryMaxDelay = cfg.Retry.MaxDelay
	}
	if cfg.Retry.MaxRateLimitRetries != 0 {
		client.MaxRateLimitPauses = cfg.Retry.MaxRateLimitRetries
	}

	headers := map[string]string{}
	if cfg.Referer != "" {
		headers["HTTP-Referer"] = cfg.Referer
	}
	if cfg.Title != "" {
		headers["X-Title"] = cfg.Title
	}
	client.Headers = headers

	if gov != nil {
		client.Gate = gov.Admit
	}
	client.On429 = func(retryAfter time.Duration) {
		metrics.RecordThrottled()
		gov.Throttled(retryAfter)
	}
	return client
}
