package ailink

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/core/engine"
)

func TestMapErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		wantCode   string
	}{
		{"auth", 401, CodeProviderAuth},
		{"forbidden", 403, CodeProviderAuth},
		{"rate", 429, CodeProviderRateLimit},
		{"bad", 400, CodeProviderBadRequest},
		{"unavail", 503, CodeProviderUnavailable},
	}

	for _, tc := range cases {
		err := &driver.ProviderError{Provider: "openrouter", StatusCode: tc.statusCode, Message: "boom"}
		mapped := MapError(fmt.Errorf("wrapped: %w", err))
		require.NotNil(t, mapped, tc.name)
		require.Equal(t, tc.wantCode, mapped.Code, tc.name)
		require.Equal(t, "boom", mapped.Details, tc.name)
	}
}

func TestMapErrorGovernanceErrors(t *testing.T) {
	rle := &driver.RateLimitExceededError{Provider: "openrouter", Model: "m", Attempts: 3}
	require.Equal(t, CodeProviderRateLimit, MapError(rle).Code)

	quota := &engine.QuotaExhaustedError{Model: "x:free", Count: 50, Limit: 50, Wait: 2 * time.Hour}
	require.Equal(t, CodeQuotaExhausted, MapError(fmt.Errorf("detailed: %w", quota)).Code)

	require.Equal(t, CodeProviderTimeout, MapError(context.DeadlineExceeded).Code)
	require.Equal(t, CodeInvalidResponse, MapError(&RawResponseError{Err: errors.New("bad")}).Code)
	require.Equal(t, CodeProviderError, MapError(errors.New("other")).Code)
	require.Nil(t, MapError(nil))
}
