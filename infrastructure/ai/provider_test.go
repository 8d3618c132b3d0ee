package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/pkg/observability"
)

func testConfig(baseURL string) ProviderConfig {
	cfg := DefaultProviderConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	cfg.CompletionModel = "test-completion"
	cfg.CompletionModelVersion = "2026-01"
	cfg.EmbeddingModel = "test-embedding"
	cfg.EmbeddingDimensions = 3
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	return NewProvider(testConfig(baseURL), zap.NewNop(), observability.NewCollector("test"))
}

func TestProvider_Complete(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model": "test-completion", "choices": [{"message": {"role": "assistant", "content": "the answer"}, "finish_reason": "stop"}]}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	out, err := p.Complete(context.Background(), "system text", "user text", ports.CompletionOptions{
		Temperature: 0.3,
		MaxTokens:   256,
		ForceJSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)

	assert.Equal(t, "test-completion", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "system text"}, captured.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "user text"}, captured.Messages[1])
	require.NotNil(t, captured.Temperature)
	assert.Equal(t, 0.3, *captured.Temperature)
	require.NotNil(t, captured.MaxTokens)
	assert.Equal(t, 256, *captured.MaxTokens)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
}

func TestProvider_Complete_OmitsUnsetOptions(t *testing.T) {
	var raw map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	_, err := p.Complete(context.Background(), "s", "u", ports.CompletionOptions{})
	require.NoError(t, err)

	assert.NotContains(t, raw, "temperature")
	assert.NotContains(t, raw, "max_tokens")
	assert.NotContains(t, raw, "response_format")
}

func TestProvider_Complete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	_, err := p.Complete(context.Background(), "s", "u", ports.CompletionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestProvider_Complete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	_, err := p.Complete(context.Background(), "s", "u", ports.CompletionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestProvider_Embed(t *testing.T) {
	var captured embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"data": [{"embedding": [0.1, 0.2, 0.3], "index": 0}]}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	vector, err := p.Embed(context.Background(), "some note text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)

	assert.Equal(t, "test-embedding", captured.Model)
	assert.Equal(t, []string{"some note text"}, captured.Input)
}

func TestProvider_Embed_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"embedding": [0.1, 0.2], "index": 0}]}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestProvider_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureThreshold = 1.0
	p := NewProvider(cfg, zap.NewNop(), observability.NewCollector("test"))

	for i := 0; i < 2; i++ {
		_, err := p.Embed(context.Background(), "text")
		require.Error(t, err)
	}
	require.Equal(t, 2, hits)

	// the breaker is open now, so the provider is never contacted
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, 2, hits)

	// each endpoint has its own breaker
	_, err = p.Complete(context.Background(), "s", "u", ports.CompletionOptions{})
	require.Error(t, err)
	assert.Equal(t, 3, hits)
}

func TestProvider_ModelRef(t *testing.T) {
	p := newTestProvider(t, "http://localhost:0")
	ref := p.ModelRef()
	assert.Equal(t, "test-completion", ref.ModelID)
	assert.Equal(t, "2026-01", ref.Version)
}
