/*
Package embedding turns text into vectors.

Backends:

  - "openai": any service speaking the OpenAI embeddings API
    (POST {baseURL}/v1/embeddings), with bounded exponential-backoff retries.
  - "placeholder": a deterministic hash-based embedder that needs no network.
    Similar texts do not get similar vectors; it exists for tests and for
    running the server without an embedding service.

Every embedder reports the model identifier its vectors belong to. Vectors of
different models are never compared.
*/
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable marks a transient provider failure: timeouts, 5xx responses
// and exhausted retries.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder computes embeddings for text.
type Embedder interface {
	// Embed returns the embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model identifies the embedding model.
	Model() string

	// Dimension is the vector length the model produces.
	Dimension() int
}

// Backend names.
const (
	BackendOpenAI      = "openai"
	BackendPlaceholder = "placeholder"
)

// Config selects and configures a backend.
type Config struct {
	Backend   string
	BaseURL   string
	Model     string
	Dimension int
	APIKey    string
	Timeout   time.Duration
	MaxTries  uint
	CacheSize int
}

// New builds the embedder described by cfg. A positive CacheSize wraps it in
// an in-memory cache.
func New(cfg Config, logger *zap.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch cfg.Backend {
	case BackendOpenAI:
		e, err = NewOpenAICompatible(cfg, logger)
	case BackendPlaceholder, "":
		e = NewPlaceholder(cfg.Model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCached(e, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return cached, nil
	}
	return e, nil
}
