package ailink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/internal/ailink/content"
	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/ailink/prompt"
)

type recordingDriver struct {
	mu       sync.Mutex
	requests []*driver.Request
	replies  []string
	errs     []error
}

func (d *recordingDriver) Name() string { return "fake" }

func (d *recordingDriver) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := len(d.requests)
	d.requests = append(d.requests, req)
	if idx < len(d.errs) && d.errs[idx] != nil {
		return nil, d.errs[idx]
	}
	text := "yes"
	if idx < len(d.replies) {
		text = d.replies[idx]
	}
	return &driver.Response{
		Content: []content.ContentBlock{{Type: content.ContentTypeText, Text: text}},
		Usage:   &driver.Usage{PromptTokens: 40, CompletionTokens: 2},
	}, nil
}

func newTestService(t *testing.T, drv driver.Driver, cfg Config) *Service {
	t.Helper()
	reg, err := prompt.DefaultRegistry()
	require.NoError(t, err)
	return NewService(cfg, drv, reg)
}

func messageText(msg content.Message) string {
	if len(msg.Content) == 0 {
		return ""
	}
	return msg.Content[0].Text
}

func TestGenerateRendersQuickPrompt(t *testing.T) {
	drv := &recordingDriver{replies: []string{"Yes."}}
	svc := newTestService(t, drv, Config{Models: ModelConfig{Quick: "quick-model"}})

	resp, err := svc.Generate(context.Background(), GenerateRequest{
		PromptSlug: prompt.SlugQuickRelevance,
		Variables:  map[string]string{"subject": "AI security, safety, or red teaming", "text": "Title: Jailbreaks"},
	})
	require.NoError(t, err)
	require.Equal(t, "Yes.", resp.Text)
	require.Equal(t, "quick-model", resp.Model)
	require.Equal(t, 42, resp.Tokens())

	require.Len(t, drv.requests, 1)
	req := drv.requests[0]
	require.Equal(t, "quick-model", req.Model)
	require.Equal(t, prompt.SlugQuickRelevance, req.PromptSlug)
	require.Nil(t, req.ResponseFormat)
	require.NotNil(t, req.Temperature)
	require.InDelta(t, DefaultTemperature, *req.Temperature, 1e-9)
	require.Contains(t, messageText(req.Messages[0]), "AI security, safety, or red teaming")
	require.Contains(t, messageText(req.Messages[1]), "Title: Jailbreaks")
	require.NotContains(t, messageText(req.Messages[1]), "{{")
}

func TestGenerateSelectsFeedCriteria(t *testing.T) {
	drv := &recordingDriver{replies: []string{`{"relevant": false}`, `{"relevant": false}`}}
	svc := newTestService(t, drv, Config{})

	_, err := svc.Generate(context.Background(), GenerateRequest{
		PromptSlug: prompt.SlugDetailedRelevance,
		Variables:  map[string]string{"subject": "AI security", "text": "Title: X"},
	})
	require.NoError(t, err)
	_, err = svc.Generate(context.Background(), GenerateRequest{
		PromptSlug: prompt.SlugDetailedRelevance,
		Variables:  map[string]string{"subject": "Web3 security", "text": "Title: X", "web3": "true"},
	})
	require.NoError(t, err)

	aiSystem := messageText(drv.requests[0].Messages[0])
	web3System := messageText(drv.requests[1].Messages[0])
	require.Contains(t, aiSystem, "Prompt injection and adversarial prompting")
	require.NotContains(t, aiSystem, "Smart Contract Security")
	require.Contains(t, web3System, "Smart Contract Security")
	require.NotContains(t, web3System, "{{#if")
	require.Equal(t, DefaultDetailedModel, drv.requests[0].Model)
	require.Equal(t, "json_object", drv.requests[0].ResponseFormat.Type)
}

func TestGenerateRequiresVariables(t *testing.T) {
	drv := &recordingDriver{}
	svc := newTestService(t, drv, Config{})

	_, err := svc.Generate(context.Background(), GenerateRequest{
		PromptSlug: prompt.SlugQuickRelevance,
		Variables:  map[string]string{"subject": "AI security"},
	})
	require.ErrorContains(t, err, `required variable "text"`)
	require.Empty(t, drv.requests)
}

func TestGeneratePropagatesDriverErrors(t *testing.T) {
	boom := &driver.RateLimitExceededError{Provider: "fake", Model: "m", Attempts: 3}
	drv := &recordingDriver{errs: []error{boom}}
	svc := newTestService(t, drv, Config{})

	_, err := svc.Generate(context.Background(), GenerateRequest{
		PromptSlug: prompt.SlugSearchKeywords,
		Variables:  map[string]string{"topic": "LLM red teaming"},
	})
	require.True(t, errors.Is(err, driver.ErrRateLimitExceeded))
}

func TestGenerateFallsBackFromUnsupportedSchema(t *testing.T) {
	drv := &recordingDriver{
		errs:    []error{&driver.ProviderError{Provider: "fake", StatusCode: 400, Message: "json_schema is not supported"}},
		replies: []string{"", `{"relevant": false}`},
	}
	svc := newTestService(t, drv, Config{StructuredOutput: true})

	resp, err := svc.Generate(context.Background(), GenerateRequest{
		PromptSlug: prompt.SlugDetailedRelevance,
		Variables:  map[string]string{"subject": "AI security", "text": "Title: X"},
	})
	require.NoError(t, err)
	require.Equal(t, `{"relevant": false}`, resp.Text)
	require.Len(t, drv.requests, 2)
	require.Equal(t, "json_object", drv.requests[1].ResponseFormat.Type)
}

func TestValidateResponse(t *testing.T) {
	svc := newTestService(t, &recordingDriver{}, Config{})

	require.NoError(t, svc.ValidateResponse(prompt.SlugDetailedRelevance, []byte(`{"relevant": true, "relevance_score": 4, "tags": ["a"]}`)))
	require.NoError(t, svc.ValidateResponse(prompt.SlugQuickRelevance, []byte(`anything`)))

	err := svc.ValidateResponse(prompt.SlugDetailedRelevance, []byte(`{"relevance_score": 9}`))
	var raw *RawResponseError
	require.ErrorAs(t, err, &raw)
	require.Contains(t, string(raw.Raw), "relevance_score")
}

func TestRenderPromptDoesNotExpandPaperText(t *testing.T) {
	def := &prompt.Prompt{Config: prompt.Config{
		SystemTemplate: "About {{subject}}",
		UserTemplate:   "{{text}}",
	}}
	system, user, err := renderPrompt(def, map[string]string{"subject": "AI", "text": "we study {{subject}} and {{#if x}}"})
	require.NoError(t, err)
	require.Equal(t, "About AI", system)
	require.Equal(t, "we study {{subject}} and {{#if x}}", user)
}

func TestApplyConditionalsNested(t *testing.T) {
	tpl := "{{#if a}}A{{#if b}}B{{else}}notB{{/if}}{{else}}notA{{/if}}"
	require.Equal(t, "AB", applyConditionals(tpl, map[string]string{"a": "1", "b": "1"}))
	require.Equal(t, "AnotB", applyConditionals(tpl, map[string]string{"a": "1"}))
	require.Equal(t, "notA", applyConditionals(tpl, map[string]string{"a": " "}))
}
