package ailink

import (
	"encoding/json"
	"time"

	"github.com/paperscope/paperscope/internal/ailink/driver"
)

// GenerateRequest runs one prompt against the model its role selects.
type GenerateRequest struct {
	PromptSlug string
	Variables  map[string]string
	// Model overrides the role's configured model.
	Model      string
	MaxTokens  int
	IncludeRaw bool
}

// GenerateResponse carries the model text and accounting for one prompt run.
type GenerateResponse struct {
	PromptSlug string          `json:"prompt_slug"`
	Model      string          `json:"model"`
	Text       string          `json:"text"`
	Usage      driver.Usage    `json:"usage"`
	Duration   time.Duration   `json:"-"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Tokens returns the total token usage of the run.
func (r *GenerateResponse) Tokens() int {
	if r == nil {
		return 0
	}
	return r.Usage.Total()
}

// ServiceError captures an ailink failure in a form safe to show users.
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	if e == nil {
		return "ailink error"
	}
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}
