package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vector(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) / 10
	}
	return out
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, req map[string]any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOllamaEmbed(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, req map[string]any) {
		assert.Equal(t, "all-minilm", req["model"])
		assert.Equal(t, "Title\n\nAbstract", req["prompt"])
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vector(4)})
	})

	emb, err := NewOllama(Options{URL: server.URL, Dimensions: 4})
	require.NoError(t, err)

	got, err := emb.Embed(context.Background(), "  Title\n\nAbstract ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.1, 0.2, 0.3}, got)
	assert.Equal(t, "all-minilm", emb.Model())
	assert.Equal(t, 4, emb.Dimensions())
}

func TestOllamaEmbedRejectsWrongDimensions(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ map[string]any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vector(3)})
	})

	emb, err := NewOllama(Options{URL: server.URL})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOllamaEmbedRetries(t *testing.T) {
	var calls atomic.Int32
	server := newServer(t, func(w http.ResponseWriter, _ map[string]any) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model loading"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vector(2)})
	})

	emb, err := NewOllama(Options{URL: server.URL, Dimensions: 2})
	require.NoError(t, err)
	var slept []time.Duration
	emb.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err = emb.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestOllamaEmbedGivesUp(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	})

	emb, err := NewOllama(Options{URL: server.URL})
	require.NoError(t, err)
	emb.Sleep = func(context.Context, time.Duration) error { return nil }

	_, err = emb.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestOllamaEmbedTruncatesLongInput(t *testing.T) {
	var promptLen int
	server := newServer(t, func(w http.ResponseWriter, req map[string]any) {
		promptLen = len([]rune(req["prompt"].(string)))
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vector(1)})
	})

	emb, err := NewOllama(Options{URL: server.URL, Dimensions: 1})
	require.NoError(t, err)

	long := make([]rune, MaxInputChars+500)
	for i := range long {
		long[i] = 'x'
	}
	_, err = emb.Embed(context.Background(), string(long))
	require.NoError(t, err)
	assert.Equal(t, MaxInputChars, promptLen)
}

func TestOllamaEmbedEmptyText(t *testing.T) {
	emb, err := NewOllama(Options{})
	require.NoError(t, err)
	_, err = emb.Embed(context.Background(), "   ")
	require.Error(t, err)
}
