package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/internal/ailink/content"
	"github.com/paperscope/paperscope/internal/ailink/driver"
)

const okBody = `{"model":"openai/gpt-4.1-nano","choices":[{"message":{"content":"yes"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":1,"total_tokens":11}}`

func testRequest() *driver.Request {
	return &driver.Request{
		Model: "openai/gpt-4.1-nano",
		Messages: []content.Message{
			content.TextMessage("system", "sys"),
			content.TextMessage("user", "usr"),
		},
	}
}

func newTestClient(server *httptest.Server, slept *[]time.Duration) *Client {
	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()
	client.Sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
	return client
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestClientDefaults(t *testing.T) {
	client := NewClient("", "k")
	require.Equal(t, "https://openrouter.ai/api/v1", client.BaseURL)
	require.Equal(t, "openrouter", client.Name())
	require.Equal(t, 30*time.Second, client.Timeout)
}

func TestClientSendsRequestAndParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "https://paperscope.dev", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "paperscope", r.Header.Get("X-Title"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var payload map[string]any
		assert.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "openai/gpt-4.1-nano", payload["model"])
		assert.Equal(t, 0.1, payload["temperature"])
		assert.Equal(t, map[string]any{"type": "json_object"}, payload["response_format"])
		messages := payload["messages"].([]any)
		assert.Len(t, messages, 2)
		assert.Equal(t, map[string]any{"role": "system", "content": "sys"}, messages[0])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server, &slept)
	client.Headers = map[string]string{"HTTP-Referer": "https://paperscope.dev", "X-Title": "paperscope"}

	temp := 0.1
	req := testRequest()
	req.Temperature = &temp
	req.ResponseFormat = &driver.ResponseFormat{Type: "json_object"}

	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, "yes", resp.Text())
	require.Equal(t, 11, resp.Usage.Total())
	require.Empty(t, slept)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server, &slept)

	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
	require.Contains(t, err.Error(), "nope")
	require.Equal(t, int32(1), calls.Load())

	var perr *driver.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}

func TestClientRetriesServerErrorsWithBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server, &slept)

	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "yes", resp.Text())
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server, &slept)

	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed after 3 attempts")
	require.Equal(t, int32(3), calls.Load())
	require.Len(t, slept, 2)
}

func TestClientRetriesEmptyContent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`))
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server, &slept)

	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "yes", resp.Text())
	require.Equal(t, int32(2), calls.Load())
}

func TestClientPausesOnRateLimitAndResumes(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	var slept []time.Duration
	var reported []time.Duration
	client := newTestClient(server, &slept)
	client.On429 = func(retryAfter time.Duration) { reported = append(reported, retryAfter) }

	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "yes", resp.Text())
	require.Equal(t, []time.Duration{7 * time.Second}, slept)
	require.Equal(t, []time.Duration{7 * time.Second}, reported)
}

func TestClientRateLimitExceededIsBounded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server, &slept)
	client.MaxRateLimitPauses = 2

	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	require.True(t, errors.Is(err, driver.ErrRateLimitExceeded))

	var rle *driver.RateLimitExceededError
	require.ErrorAs(t, err, &rle)
	require.Equal(t, 3, rle.Attempts)
	require.Equal(t, "openai/gpt-4.1-nano", rle.Model)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)

	var perr *driver.ProviderError
	require.ErrorAs(t, err, &perr)
	require.True(t, perr.IsRateLimited())
}

func TestClientCompleteOnceSkipsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server, &slept)

	_, err := client.CompleteOnce(context.Background(), testRequest())
	var perr *driver.ProviderError
	require.ErrorAs(t, err, &perr)
	require.True(t, perr.IsRateLimited())
	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, slept)
}

func TestClientCancelledContextStopsRetrying(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var slept []time.Duration
	client := newTestClient(server, &slept)
	client.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := client.Complete(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseRetryAfter(t *testing.T) {
	d, ok := parseRetryAfter("12")
	require.True(t, ok)
	require.Equal(t, 12*time.Second, d)

	_, ok = parseRetryAfter("")
	require.False(t, ok)
	_, ok = parseRetryAfter("-3")
	require.False(t, ok)
	_, ok = parseRetryAfter("soon")
	require.False(t, ok)
}

func TestBackoffDelayCaps(t *testing.T) {
	client := NewClient("", "k")
	require.Equal(t, time.Second, client.backoffDelay(1))
	require.Equal(t, 2*time.Second, client.backoffDelay(2))
	require.Equal(t, 4*time.Second, client.backoffDelay(3))
	require.Equal(t, 8*time.Second, client.backoffDelay(4))
	require.Equal(t, 10*time.Second, client.backoffDelay(5))
	require.Equal(t, 10*time.Second, client.backoffDelay(9))
}

func TestClientGateRunsBeforeEveryAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server, &slept)
	var gated []string
	client.Gate = func(ctx context.Context, model string) error {
		gated = append(gated, model)
		return nil
	}

	_, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, []string{"openai/gpt-4.1-nano", "openai/gpt-4.1-nano"}, gated)
}

func TestClientGateErrorAbortsWithoutSending(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server, &slept)
	gateErr := errors.New("quota exhausted")
	client.Gate = func(ctx context.Context, model string) error { return gateErr }

	_, err := client.Complete(context.Background(), testRequest())
	require.ErrorIs(t, err, gateErr)
	require.Equal(t, int32(0), calls.Load())
}
