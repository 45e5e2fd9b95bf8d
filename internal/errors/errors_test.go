package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/core/engine"
)

func TestFromErrorClassifiesDomainFailures(t *testing.T) {
	ctx := context.Background()

	rle := &driver.RateLimitExceededError{
		Provider: "openrouter",
		Model:    "openai/gpt-4.1:free",
		Attempts: 3,
		Last:     &driver.ProviderError{StatusCode: 429, RetryAfter: 20 * time.Second},
	}
	env := FromError(ctx, fmt.Errorf("classify: %w", rle))
	require.Equal(t, CodeRateLimited, env.Code)
	require.Equal(t, http.StatusTooManyRequests, HTTPStatusFromEnvelope(env))
	require.Equal(t, 20, retryAfterSeconds(ResponseDetails(env)))

	qe := &engine.QuotaExhaustedError{Model: "m:free", Count: 50, Limit: 50, Wait: 3 * time.Hour}
	env = FromError(ctx, qe)
	require.Equal(t, CodeQuotaExhausted, env.Code)
	require.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromEnvelope(env))

	env = FromError(ctx, context.DeadlineExceeded)
	require.Equal(t, http.StatusGatewayTimeout, HTTPStatusFromEnvelope(env))

	env = FromError(ctx, &driver.ProviderError{Provider: "openrouter", StatusCode: 401})
	require.Equal(t, CodeExternalService, env.Code)
	require.Equal(t, http.StatusBadGateway, HTTPStatusFromEnvelope(env))

	env = FromError(ctx, fmt.Errorf("boom"))
	require.Equal(t, CodeInternal, env.Code)
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(env))
}

func TestFromErrorKeepsEnvelopes(t *testing.T) {
	env := FromError(context.Background(), NewValidationError("title is required"))
	require.Equal(t, CodeValidationFailed, env.Code)
	require.NotEmpty(t, env.CorrelationID)
}

func TestRespondWithErrorWritesJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/classify", nil)

	qe := &engine.QuotaExhaustedError{Model: "m:free", Count: 50, Limit: 50, Wait: 90 * time.Minute}
	RespondWithError(rec, req, qe)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "5400", rec.Header().Get("Retry-After"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, CodeQuotaExhausted, body.Error.Code)
	require.NotEmpty(t, body.Error.RequestID)
	require.Contains(t, body.Error.Details["wrapped_error"], "daily quota exhausted")
}

func TestHTTPStatusFromCode(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, HTTPStatusFromCode(CodeInvalidInput))
	require.Equal(t, http.StatusNotFound, HTTPStatusFromCode(CodeNotFound))
	require.Equal(t, http.StatusMethodNotAllowed, HTTPStatusFromCode(CodeMethodNotAllowed))
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_ELSE"))
}
