// Package ai implements the embedding and completion capability ports
// against any OpenAI-compatible HTTP API (OpenAI, OpenRouter, Ollama,
// vLLM). Outbound calls run behind per-endpoint circuit breakers so a
// degraded provider sheds load fast instead of stacking timeouts.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/pkg/observability"
)

// ProviderConfig holds connection and resilience settings for one
// OpenAI-compatible endpoint.
type ProviderConfig struct {
	BaseURL string
	APIKey  string

	CompletionModel        string
	CompletionModelVersion string
	EmbeddingModel         string
	EmbeddingDimensions    int

	RequestTimeout time.Duration

	// Circuit breaker tuning, shared by both endpoints
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold float64
	BreakerMinRequests      uint32
}

// DefaultProviderConfig returns conservative defaults for a hosted API
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		BaseURL:                 "https://api.openai.com/v1",
		CompletionModel:         "gpt-4o-mini",
		EmbeddingModel:          "text-embedding-3-small",
		EmbeddingDimensions:     1536,
		RequestTimeout:          60 * time.Second,
		BreakerMaxRequests:      5,
		BreakerInterval:         30 * time.Second,
		BreakerTimeout:          60 * time.Second,
		BreakerFailureThreshold: 0.8,
		BreakerMinRequests:      5,
	}
}

// Provider talks to an OpenAI-compatible API. It satisfies both
// ports.Embedder and ports.Completer.
type Provider struct {
	cfg     ProviderConfig
	client  *http.Client
	logger  *zap.Logger
	metrics *observability.Collector

	completions *gobreaker.CircuitBreaker
	embeddings  *gobreaker.CircuitBreaker
}

// NewProvider creates a provider with one circuit breaker per endpoint
func NewProvider(cfg ProviderConfig, logger *zap.Logger, metrics *observability.Collector) *Provider {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Provider{
		cfg:         cfg,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		logger:      logger,
		metrics:     metrics,
		completions: newBreaker("completions", cfg, logger),
		embeddings:  newBreaker("embeddings", cfg, logger),
	}
}

func newBreaker(name string, cfg ProviderConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// ModelRef identifies the completion model for provenance stamping
func (p *Provider) ModelRef() ports.ModelRef {
	return ports.ModelRef{
		Provider: "openai-compatible",
		ModelID:  p.cfg.CompletionModel,
		Version:  p.cfg.CompletionModelVersion,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends a system and user prompt to the chat completions
// endpoint and returns the first choice's content.
func (p *Provider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts ports.CompletionOptions) (string, error) {
	req := chatRequest{
		Model: p.cfg.CompletionModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = &opts.MaxTokens
	}
	if opts.ForceJSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := p.post(ctx, p.completions, "completion", "/chat/completions", req)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed generates an embedding vector for one text
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embeddingRequest{
		Model: p.cfg.EmbeddingModel,
		Input: []string{text},
	}

	body, err := p.post(ctx, p.embeddings, "embedding", "/embeddings", req)
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	vector := parsed.Data[0].Embedding
	if p.cfg.EmbeddingDimensions > 0 && len(vector) != p.cfg.EmbeddingDimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vector), p.cfg.EmbeddingDimensions)
	}
	return vector, nil
}

// Dimensions returns the configured embedding width
func (p *Provider) Dimensions() int {
	return p.cfg.EmbeddingDimensions
}

// post marshals payload, runs the request through the endpoint's
// breaker, and returns the raw response body.
func (p *Provider) post(ctx context.Context, breaker *gobreaker.CircuitBreaker, capability, path string, payload interface{}) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", capability, err)
	}

	start := time.Now()
	result, err := breaker.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return nil, fmt.Errorf("failed to build %s request: %w", capability, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", capability, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", capability, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s endpoint returned %d: %s", capability, resp.StatusCode, truncateBody(body))
		}
		return body, nil
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.CapabilityCalls.WithLabelValues(capability, status).Inc()
	p.metrics.CapabilityDuration.WithLabelValues(capability).Observe(time.Since(start).Seconds())

	if err != nil {
		p.logger.Warn("capability call failed",
			zap.String("capability", capability),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	return result.([]byte), nil
}

// truncateBody keeps provider error messages loggable
func truncateBody(body []byte) string {
	const max = 512
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
