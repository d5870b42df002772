package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	gobreaker "github.com/sony/gobreaker/v2"
	"google.golang.org/api/option"

	"github.com/anonto42/threadline/backend/internal/metrics"
	"github.com/anonto42/threadline/backend/internal/vector"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

// Embedder computes topic embeddings for thread content. Callers treat an
// empty vector as "no embedding".
type Embedder interface {
	Embed(ctx context.Context, text string) (vector.Vector, error)
}

// GeminiEmbedder calls the Gemini embedding API
type GeminiEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

// NewGeminiEmbedder creates a client for the given embedding model
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not provided")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: client.EmbeddingModel(model)}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) (vector.Vector, error) {
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if res == nil || res.Embedding == nil {
		return nil, errors.New("received an empty embedding")
	}
	out := make(vector.Vector, len(res.Embedding.Values))
	for i, v := range res.Embedding.Values {
		out[i] = float64(v)
	}
	return out, nil
}

// Close releases the underlying client
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

// NoopEmbedder never produces an embedding. It stands in when no provider is
// configured.
type NoopEmbedder struct{}

func (NoopEmbedder) Embed(context.Context, string) (vector.Vector, error) {
	return nil, nil
}

// BreakerConfig tunes the circuit breaker around an Embedder.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// BreakerEmbedder rejects calls while the wrapped provider keeps failing.
type BreakerEmbedder struct {
	next Embedder
	cb   *gobreaker.CircuitBreaker[vector.Vector]
}

// NewBreakerEmbedder wraps next with a circuit breaker
func NewBreakerEmbedder(next Embedder, cfg BreakerConfig) *BreakerEmbedder {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "embedder",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &BreakerEmbedder{next: next, cb: gobreaker.NewCircuitBreaker[vector.Vector](settings)}
}

func (b *BreakerEmbedder) Embed(ctx context.Context, text string) (vector.Vector, error) {
	v, err := b.cb.Execute(func() (vector.Vector, error) {
		return b.next.Embed(ctx, text)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.EmbeddingRequests.WithLabelValues("rejected").Inc()
	case err != nil:
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
	default:
		metrics.EmbeddingRequests.WithLabelValues("ok").Inc()
	}
	return v, err
}

// State reports the breaker state for health output
func (b *BreakerEmbedder) State() string {
	return b.cb.State().String()
}

// embedOrEmpty returns the embedding of text, or an empty vector when the
// provider fails.
func embedOrEmpty(ctx context.Context, e Embedder, text string) vector.Vector {
	v, err := e.Embed(ctx, text)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("embedding unavailable, storing thread without one")
		return vector.Vector{}
	}
	if v == nil {
		return vector.Vector{}
	}
	return v
}
