package driver

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ProviderError is returned when a provider responds with a non-2xx status.
//
// Drivers should populate RawResponse with the provider response body bytes.
// RawResponse must never include API keys.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RawResponse []byte
	RetryAfter  time.Duration
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

// IsRateLimited reports whether the provider answered 429.
func (e *ProviderError) IsRateLimited() bool {
	return e != nil && e.StatusCode == http.StatusTooManyRequests
}

// ErrRateLimitExceeded is matched by errors.Is for any RateLimitExceededError.
var ErrRateLimitExceeded = errors.New("provider rate limit exceeded")

// RateLimitExceededError reports a 429 that persisted through every bounded pause.
type RateLimitExceededError struct {
	Provider string
	Model    string
	Attempts int
	Last     *ProviderError
}

func (e *RateLimitExceededError) Error() string {
	msg := fmt.Sprintf("%s rate limited model %s after %d attempts", e.Provider, e.Model, e.Attempts)
	if e.Last != nil && e.Last.Message != "" {
		msg += ": " + e.Last.Message
	}
	return msg
}

// Is lets errors.Is match ErrRateLimitExceeded.
func (e *RateLimitExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// Unwrap exposes the final provider error.
func (e *RateLimitExceededError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}
