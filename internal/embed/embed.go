// Package embed produces fixed-size text embeddings for stored papers.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/paperscope/paperscope/internal/core/engine"
)

const (
	DefaultURL        = "http://localhost:11434"
	DefaultModel      = "all-minilm"
	DefaultDimensions = 384
	// MaxInputChars bounds the text sent per request; longer inputs are truncated.
	MaxInputChars = 2048

	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	defaultBackoff  = time.Second
)

// ErrDimensionMismatch is returned when the model's vector size differs from the collection's.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Ollama embeds text through an Ollama server.
type Ollama struct {
	client     *api.Client
	model      string
	dimensions int

	Attempts int
	Backoff  time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Options configures an Ollama embedder.
type Options struct {
	URL        string
	Model      string
	Dimensions int
	HTTPClient *http.Client
}

// NewOllama builds an embedder against opts.URL.
func NewOllama(opts Options) (*Ollama, error) {
	raw := strings.TrimSpace(opts.URL)
	if raw == "" {
		raw = DefaultURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", raw, err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	dims := opts.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Ollama{
		client:     api.NewClient(base, httpClient),
		model:      model,
		dimensions: dims,
		Attempts:   defaultAttempts,
		Backoff:    defaultBackoff,
	}, nil
}

// Model returns the embedding model name.
func (o *Ollama) Model() string {
	return o.model
}

// Dimensions returns the expected vector length.
func (o *Ollama) Dimensions() int {
	return o.dimensions
}

// Embed returns the embedding of text, retrying transient failures.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	if runes := []rune(text); len(runes) > MaxInputChars {
		text = string(runes[:MaxInputChars])
	}

	attempts := o.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	req := &api.EmbeddingRequest{Model: o.model, Prompt: text}

	var lastErr error
	delay := o.Backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := o.client.Embeddings(ctx, req)
		if err == nil {
			return o.convert(resp.Embedding)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == attempts {
			break
		}
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", attempts, lastErr)
}

func (o *Ollama) convert(values []float64) ([]float32, error) {
	if len(values) != o.dimensions {
		return nil, fmt.Errorf("%w: model %s returned %d values, want %d", ErrDimensionMismatch, o.model, len(values), o.dimensions)
	}
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}

func (o *Ollama) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return engine.SleepContext(ctx, d)
}
