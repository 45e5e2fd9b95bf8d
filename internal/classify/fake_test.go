package classify

import (
	"context"
	"sync"

	"github.com/paperscope/paperscope/internal/ailink"
	"github.com/paperscope/paperscope/internal/ailink/driver"
	"github.com/paperscope/paperscope/internal/ailink/prompt"
)

type reply struct {
	text   string
	tokens int
	err    error
}

// fakeGenerator answers each prompt slug with a canned reply and records calls.
type fakeGenerator struct {
	mu       sync.Mutex
	replies  map[string]reply
	calls    map[string]int
	requests []ailink.GenerateRequest
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{replies: map[string]reply{}, calls: map[string]int{}}
}

func (f *fakeGenerator) on(slug, text string, tokens int) *fakeGenerator {
	f.replies[slug] = reply{text: text, tokens: tokens}
	return f
}

func (f *fakeGenerator) fail(slug string, err error) *fakeGenerator {
	f.replies[slug] = reply{err: err}
	return f
}

func (f *fakeGenerator) count(slug string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[slug]
}

func (f *fakeGenerator) Generate(_ context.Context, req ailink.GenerateRequest) (*ailink.GenerateResponse, error) {
	f.mu.Lock()
	f.calls[req.PromptSlug]++
	f.requests = append(f.requests, req)
	r := f.replies[req.PromptSlug]
	f.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return &ailink.GenerateResponse{
		PromptSlug: req.PromptSlug,
		Model:      req.Model,
		Text:       r.text,
		Usage:      driver.Usage{TotalTokens: r.tokens},
	}, nil
}

func (f *fakeGenerator) ValidateResponse(string, []byte) error { return nil }

func (f *fakeGenerator) ModelFor(slug, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	switch slug {
	case prompt.SlugQuickRelevance:
		return "openai/gpt-4.1-nano", nil
	case prompt.SlugDetailedRelevance:
		return "openai/gpt-4.1", nil
	default:
		return "openai/gpt-4o-mini", nil
	}
}
