package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/ailink/content"
	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/output"
)

const probeTimeout = 30 * time.Second

// probeResult is the outcome of a single provider probe.
type probeResult struct {
	Endpoint    string `json:"endpoint"`
	Model       string `json:"model"`
	Status      string `json:"status"`
	StatusCode  int    `json:"status_code,omitempty"`
	RetryAfter  string `json:"retry_after,omitempty"`
	Message     string `json:"message,omitempty"`
	LatencyMS   int64  `json:"latency_ms"`
	RateLimited bool   `json:"rate_limited"`

	retryAfter time.Duration
}

var checkRateLimitCmd = &cobra.Command{
	Use:   "check-rate-limit",
	Short: "Send a one-token request to see whether the provider is throttling",
	Long: `check-rate-limit sends a single one-token completion to the probe model,
bypassing the local rate limiter and daily quota. A 429 answer is reported as
rate_limited and recorded as provider backoff.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{withModels: true})
		if err != nil {
			return err
		}
		defer a.close()

		result := probe(cmd.Context(), a.client, a.client.Name(), a.cfg.AILink.ModelFor("probe"))
		if result.RateLimited && a.client.On429 != nil {
			a.client.On429(result.retryAfter)
		}
		a.logger.Debug("Probe complete", zap.String("status", result.Status), zap.Int64("latency_ms", result.LatencyMS))

		doc := output.Document{
			Title:   "Provider Probe",
			Header:  []string{"Field", "Value"},
			Rows: [][]string{
				{"endpoint", result.Endpoint},
				{"model", result.Model},
				{"status", result.Status},
				{"latency", (time.Duration(result.LatencyMS) * time.Millisecond).String()},
			},
		}
		if result.RetryAfter != "" {
			doc.Rows = append(doc.Rows, []string{"retry after", result.RetryAfter})
		}
		if result.Message != "" {
			doc.Notes = append(doc.Notes, result.Message)
		}
		return writeDocument(cmd, "check-rate-limit", doc, result)
	},
}

// completer is the single-shot surface of the openai client.
type completer interface {
	CompleteOnce(ctx context.Context, req *driver.Request) (*driver.Response, error)
}

func probe(ctx context.Context, c completer, endpoint, model string) probeResult {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	maxTokens := 1
	started := time.Now()
	_, err := c.CompleteOnce(ctx, &driver.Request{
		Model:      model,
		Messages:   []content.Message{content.TextMessage("user", "Hi")},
		MaxTokens:  &maxTokens,
		PromptSlug: "probe",
	})
	result := probeResult{
		Endpoint:  endpoint,
		Model:     model,
		Status:    "ok",
		LatencyMS: time.Since(started).Milliseconds(),
	}
	if err == nil {
		return result
	}

	var perr *driver.ProviderError
	switch {
	case errors.As(err, &perr) && perr.IsRateLimited():
		result.Status = "rate_limited"
		result.RateLimited = true
		result.StatusCode = perr.StatusCode
		result.retryAfter = perr.RetryAfter
		if perr.RetryAfter > 0 {
			result.RetryAfter = perr.RetryAfter.String()
		}
	case errors.As(err, &perr):
		result.Status = "error"
		result.StatusCode = perr.StatusCode
		result.Message = perr.Message
	default:
		result.Status = "error"
		result.Message = err.Error()
	}
	return result
}

func init() {
	rootCmd.AddCommand(checkRateLimitCmd)
	addOutputFlags(checkRateLimitCmd)
}
