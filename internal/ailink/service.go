package ailink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/schema"

	"github.com/paperscope/paperscope/internal/ailink/content"
	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/ailink/prompt"
	"github.com/paperscope/paperscope/internal/metrics"
)

const (
	defaultTimeout = 60 * time.Second
	maxTimeout     = 5 * time.Minute
)

// Service coordinates prompt rendering, model selection, and driver execution.
//
// Rate governance lives in the driver (see NewClient) so retries are gated too.
type Service struct {
	Driver  driver.Driver
	Prompts prompt.Registry
	Config  Config
}

// NewService builds a service over a driver and prompt registry.
func NewService(cfg Config, drv driver.Driver, prompts prompt.Registry) *Service {
	return &Service{Driver: drv, Prompts: prompts, Config: cfg}
}

// Prompt returns the prompt definition for slug.
func (s *Service) Prompt(slug string) (*prompt.Prompt, error) {
	if s == nil || s.Prompts == nil {
		return nil, errors.New("ailink prompt registry not configured")
	}
	return s.Prompts.Get(slug)
}

// ModelFor resolves the model a prompt would run on.
func (s *Service) ModelFor(slug, override string) (string, error) {
	if m := strings.TrimSpace(override); m != "" {
		return m, nil
	}
	def, err := s.Prompt(slug)
	if err != nil {
		return "", err
	}
	return s.Config.ModelFor(def.Config.Role), nil
}

// Generate renders a prompt with variables and returns the raw model text.
// The text is not parsed here; JSON prompts go through the normalizer in the caller.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if s == nil || s.Driver == nil {
		return nil, errors.New("ailink driver not configured")
	}

	slug := strings.TrimSpace(req.PromptSlug)
	if slug == "" {
		return nil, errors.New("prompt slug is required")
	}

	promptDef, err := s.Prompt(slug)
	if err != nil {
		return nil, err
	}

	for _, required := range promptDef.Config.Input.RequiredVariables {
		if val, ok := req.Variables[required]; !ok || strings.TrimSpace(val) == "" {
			return nil, fmt.Errorf("required variable %q not provided", required)
		}
	}

	systemPrompt, userPrompt, err := renderPrompt(promptDef, req.Variables)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.Config.ModelFor(promptDef.Config.Role)
	}

	temperature := s.Config.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	driverReq := &driver.Request{
		Model: model,
		Messages: []content.Message{
			content.TextMessage("system", systemPrompt),
			content.TextMessage("user", userPrompt),
		},
		Temperature: &temperature,
		PromptSlug:  promptDef.Config.Slug,
	}
	driverReq.ResponseFormat = responseFormatFor(s.Config, promptDef)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = promptDef.Config.MaxTokens
	}
	if maxTokens > 0 {
		driverReq.MaxTokens = &maxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	started := time.Now()
	resp, err := s.Driver.Complete(ctx, driverReq)
	if err != nil && driverReq.ResponseFormat != nil && driverReq.ResponseFormat.Type == "json_schema" && isUnsupportedSchemaError(err) {
		driverReq.ResponseFormat = &driver.ResponseFormat{Type: "json_object"}
		resp, err = s.Driver.Complete(ctx, driverReq)
	}
	elapsed := time.Since(started)
	if err != nil {
		metrics.RecordLLMRequest(slug, model, "error", 0, elapsed)
		return nil, err
	}

	out := &GenerateResponse{
		PromptSlug: slug,
		Model:      model,
		Text:       resp.Text(),
		Duration:   elapsed,
	}
	if resp.Usage != nil {
		out.Usage = *resp.Usage
	}
	metrics.RecordLLMRequest(slug, model, "ok", out.Tokens(), elapsed)

	if isRawCaptureEnabled(s.Config, req.IncludeRaw) && json.Valid([]byte(out.Text)) {
		out.Raw = truncateJSONRaw(json.RawMessage(out.Text), rawLimit(s.Config))
	}
	return out, nil
}

// ValidateResponse checks payload against the prompt's response_schema.
// Prompts without a schema always pass.
func (s *Service) ValidateResponse(slug string, payload []byte) error {
	def, err := s.Prompt(slug)
	if err != nil {
		return err
	}
	return validateResponse(def, payload)
}

func validateResponse(def *prompt.Prompt, payload []byte) error {
	if def == nil || len(def.Config.ResponseSchema) == 0 {
		return nil
	}

	schemaBytes, err := json.Marshal(def.Config.ResponseSchema)
	if err != nil {
		return fmt.Errorf("encode response schema: %w", err)
	}
	validator, err := schema.NewValidator(schemaBytes)
	if err != nil {
		return fmt.Errorf("compile response schema: %w", err)
	}
	diagnostics, err := validator.ValidateJSON(payload)
	if err != nil {
		return err
	}
	if len(diagnostics) > 0 {
		return &RawResponseError{
			Err: fmt.Errorf("response schema validation failed: %s", diagnostics[0].Message),
			Raw: json.RawMessage(payload),
		}
	}
	return nil
}

func (s *Service) timeout() time.Duration {
	// The driver enforces its own per-attempt timeout; this bounds retries and pauses.
	duration := s.Config.Timeout * 4
	if duration <= 0 {
		duration = defaultTimeout
	}
	if duration > maxTimeout {
		duration = maxTimeout
	}
	return duration
}
