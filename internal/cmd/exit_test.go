package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"

	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/core/engine"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"rate limit", fmt.Errorf("classify: %w", driver.ErrRateLimitExceeded), foundry.ExitExternalServiceUnavailable},
		{"quota", fmt.Errorf("run: %w", engine.ErrQuotaExhausted), foundry.ExitExternalServiceUnavailable},
		{"config", fmt.Errorf("%w: bad feed", ErrConfig), foundry.ExitConfigInvalid},
		{"missing file", fmt.Errorf("open: %w", os.ErrNotExist), foundry.ExitFileNotFound},
		{"provider outage", &driver.ProviderError{Provider: "openrouter", StatusCode: 502}, foundry.ExitExternalServiceUnavailable},
		{"provider bad request", &driver.ProviderError{Provider: "openrouter", StatusCode: 400}, foundry.ExitFailure},
		{"canceled", context.Canceled, foundry.ExitFailure},
		{"other", errors.New("boom"), foundry.ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCodeFor(tc.err))
		})
	}
}
