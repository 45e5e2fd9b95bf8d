package ailink

import (
	"context"
	"errors"
	"strings"

	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/core/engine"
)

// Error codes surfaced to CLI and HTTP callers.
const (
	CodeProviderTimeout     = "AILINK_PROVIDER_TIMEOUT"
	CodeProviderAuth        = "AILINK_PROVIDER_AUTH"
	CodeProviderRateLimit   = "AILINK_PROVIDER_RATE_LIMIT"
	CodeProviderUnavailable = "AILINK_PROVIDER_UNAVAILABLE"
	CodeProviderBadRequest  = "AILINK_PROVIDER_BAD_REQUEST"
	CodeProviderError       = "AILINK_PROVIDER_ERROR"
	CodeQuotaExhausted      = "AILINK_QUOTA_EXHAUSTED"
	CodeInvalidResponse     = "AILINK_INVALID_RESPONSE"
)

// MapError classifies err into a ServiceError. It returns nil for a nil error.
func MapError(err error) *ServiceError {
	if err == nil {
		return nil
	}

	var quota *engine.QuotaExhaustedError
	if errors.As(err, &quota) {
		return &ServiceError{Code: CodeQuotaExhausted, Message: "daily request quota exhausted", Details: quota.Error()}
	}
	var rle *driver.RateLimitExceededError
	if errors.As(err, &rle) {
		return &ServiceError{Code: CodeProviderRateLimit, Message: "provider rate limited", Details: rle.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ServiceError{Code: CodeProviderTimeout, Message: "provider request timed out"}
	}
	var raw *RawResponseError
	if errors.As(err, &raw) {
		return &ServiceError{Code: CodeInvalidResponse, Message: "model response failed validation", Details: raw.Error()}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		details := strings.TrimSpace(perr.Message)
		switch {
		case status == 401 || status == 403:
			return &ServiceError{Code: CodeProviderAuth, Message: "provider authentication failed", Details: details}
		case status == 429:
			return &ServiceError{Code: CodeProviderRateLimit, Message: "provider rate limited", Details: details}
		case status >= 500 && status <= 599:
			return &ServiceError{Code: CodeProviderUnavailable, Message: "provider unavailable", Details: details}
		case status >= 400 && status <= 499:
			return &ServiceError{Code: CodeProviderBadRequest, Message: "provider rejected request", Details: details}
		default:
			return &ServiceError{Code: CodeProviderError, Message: "provider request failed", Details: details}
		}
	}

	return &ServiceError{Code: CodeProviderError, Message: "provider request failed", Details: err.Error()}
}
