package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/ailink/driver"
)

const (
	defaultBaseURL         = "https://openrouter.ai/api/v1"
	defaultProvider        = "openrouter"
	defaultTimeout         = 30 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 1 * time.Second
	defaultRetryMaxDelay   = 10 * time.Second
	defaultRateLimitPauses = 2
)

var errEmptyContent = errors.New("empty completion content")

// Client speaks the OpenAI-compatible chat completions API (OpenRouter by default).
//
// Complete retries transport failures with exponential backoff. A 429 is
// handled separately: the client pauses for Retry-After and resumes, at most
// MaxRateLimitPauses times, then returns *driver.RateLimitExceededError.
type Client struct {
	BaseURL    string
	APIKey     string
	Provider   string
	HTTPClient *http.Client
	Timeout    time.Duration
	// Headers are sent on every request (OpenRouter reads HTTP-Referer and X-Title).
	Headers map[string]string

	MaxAttempts        int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	MaxRateLimitPauses int
	Sleep              func(ctx context.Context, d time.Duration) error
	// Gate runs before every attempt; a non-nil error aborts the request.
	Gate func(ctx context.Context, model string) error
	// On429 is called for every rate-limited response before pausing.
	On429 func(retryAfter time.Duration)
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	u := strings.TrimSpace(baseURL)
	if u == "" {
		u = defaultBaseURL
	}

	return &Client{
		BaseURL:            u,
		APIKey:             strings.TrimSpace(apiKey),
		Provider:           defaultProvider,
		Timeout:            defaultTimeout,
		MaxAttempts:        defaultRetryAttempts,
		RetryBaseDelay:     defaultRetryBaseDelay,
		RetryMaxDelay:      defaultRetryMaxDelay,
		MaxRateLimitPauses: defaultRateLimitPauses,
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	if c == nil || strings.TrimSpace(c.Provider) == "" {
		return defaultProvider
	}
	return c.Provider
}

// Complete sends a chat completion request, retrying as described on Client.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("openai client not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := c.encode(req)
	if err != nil {
		return nil, err
	}

	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}

	failures := 0
	pauses := 0
	for attempt := 1; ; attempt++ {
		if c.Gate != nil {
			if err := c.Gate(ctx, req.Model); err != nil {
				return nil, err
			}
		}
		resp, err := c.send(ctx, req, body, attempt)
		if err == nil {
			return resp, nil
		}

		var perr *driver.ProviderError
		if errors.As(err, &perr) && perr.IsRateLimited() {
			if c.On429 != nil {
				c.On429(perr.RetryAfter)
			}
			pauses++
			if pauses > c.maxRateLimitPauses() {
				return nil, &driver.RateLimitExceededError{
					Provider: c.Name(),
					Model:    req.Model,
					Attempts: attempt,
					Last:     perr,
				}
			}
			delay := perr.RetryAfter
			if delay <= 0 {
				delay = c.backoffDelay(pauses)
			}
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		failures++
		delay, retry := c.retryDelay(ctx, err, failures)
		if !retry {
			return nil, err
		}
		if failures >= maxAttempts {
			return nil, fmt.Errorf("%s: failed after %d attempts: %w", c.Name(), failures, err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// CompleteOnce sends a single request without retries or gating.
func (c *Client) CompleteOnce(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("openai client not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := c.encode(req)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, body, 1)
}

func (c *Client) encode(req *driver.Request) ([]byte, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	payload, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, req *driver.Request, body []byte, attempt int) (*driver.Response, error) {
	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	started := time.Now()
	entry := driver.TraceEntry{
		Driver:      c.Name(),
		Endpoint:    endpoint,
		Model:       req.Model,
		PromptSlug:  req.PromptSlug,
		Attempt:     attempt,
		RequestBody: body,
	}
	defer func() {
		entry.DurationMs = time.Since(started).Milliseconds()
		driver.Trace(entry)
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		entry.Error = err.Error()
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range c.Headers {
		if strings.TrimSpace(value) != "" {
			httpReq.Header.Set(key, value)
		}
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		entry.Error = err.Error()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		entry.Error = err.Error()
		return nil, fmt.Errorf("read response: %w", err)
	}
	entry.StatusCode = resp.StatusCode
	if json.Valid(respBody) {
		entry.Response = respBody
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		perr := &driver.ProviderError{
			Provider:    c.Name(),
			StatusCode:  resp.StatusCode,
			Message:     strings.TrimSpace(string(respBody)),
			RawResponse: respBody,
		}
		if retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			perr.RetryAfter = retryAfter
		}
		entry.Error = perr.Error()
		return nil, perr
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		entry.Error = err.Error()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out, err := toDriverResponse(&parsed)
	if err != nil {
		entry.Error = err.Error()
		return nil, err
	}
	entry.TotalTokens = out.Usage.Total()
	return out, nil
}

// retryDelay decides whether err is transient and how long to back off.
func (c *Client) retryDelay(ctx context.Context, err error, failures int) (time.Duration, bool) {
	if err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) {
		return 0, false
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) {
		switch {
		case perr.StatusCode == http.StatusRequestTimeout, perr.StatusCode >= http.StatusInternalServerError:
			if perr.RetryAfter > 0 {
				return c.capDelay(perr.RetryAfter), true
			}
			return c.backoffDelay(failures), true
		default:
			return 0, false
		}
	}

	if errors.Is(err, errEmptyContent) || errors.Is(err, context.DeadlineExceeded) {
		return c.backoffDelay(failures), true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return c.backoffDelay(failures), true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.backoffDelay(failures), true
	}

	return 0, false
}

// backoffDelay doubles from the base delay per retry: 1s, 2s, 4s, capped.
func (c *Client) backoffDelay(retry int) time.Duration {
	base := c.RetryBaseDelay
	if base < 0 {
		return 0
	}
	if base == 0 {
		base = defaultRetryBaseDelay
	}
	maxDelay := c.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}

	delay := base
	for i := 1; i < retry; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := c.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) maxRateLimitPauses() int {
	if c.MaxRateLimitPauses < 0 {
		return 0
	}
	return c.MaxRateLimitPauses
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.Sleep != nil {
		return c.Sleep(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
