package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/logging"
	"github.com/khanglvm/tool-finder-mcp/internal/version"
)

const (
	defaultDimension = 384
	defaultTimeout   = 30 * time.Second
	defaultMaxTries  = 3
)

// OpenAICompatible embeds text through an OpenAI-compatible HTTP API.
type OpenAICompatible struct {
	baseURL   string
	model     string
	apiKey    string
	dimension int
	maxTries  uint
	client    *http.Client
	logger    *zap.Logger

	// initialInterval is the first retry delay.
	initialInterval time.Duration
}

type openaiEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAICompatible creates a client for cfg.BaseURL.
func NewOpenAICompatible(cfg Config, logger *zap.Logger) (*OpenAICompatible, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("baseURL is required for the openai embedding backend")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required for the openai embedding backend")
	}

	o := &OpenAICompatible{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		model:           cfg.Model,
		apiKey:          cfg.APIKey,
		dimension:       cfg.Dimension,
		maxTries:        cfg.MaxTries,
		logger:          logging.OrNop(logger),
		initialInterval: 500 * time.Millisecond,
	}
	if o.dimension <= 0 {
		o.dimension = defaultDimension
	}
	if o.maxTries == 0 {
		o.maxTries = defaultMaxTries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	o.client = &http.Client{Timeout: timeout}

	o.logger.Info("initialized embedding backend",
		zap.String("backend", BackendOpenAI),
		zap.String("model", o.model),
		zap.String("url", o.baseURL),
	)
	return o, nil
}

// Model returns the configured model name.
func (o *OpenAICompatible) Model() string { return o.model }

// Dimension returns the configured vector length.
func (o *OpenAICompatible) Dimension() int { return o.dimension }

// Embed calls the embeddings endpoint, retrying transient failures.
func (o *OpenAICompatible) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openaiEmbedRequest{Model: o.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = o.initialInterval
	expBackoff.MaxInterval = 20 * o.initialInterval
	expBackoff.Reset()

	vec, err := backoff.Retry(ctx, func() ([]float32, error) {
		return o.embedOnce(ctx, body)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(o.maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			o.logger.Debug("retrying embedding request", zap.Duration("after", d), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}

	if len(vec) != o.dimension {
		return nil, fmt.Errorf("model %s returned %d dimensions, expected %d", o.model, len(vec), o.dimension)
	}
	return vec, nil
}

func (o *OpenAICompatible) embedOnce(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("embeddings API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, backoff.Permanent(err)
	}

	var out openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(out.Data) == 0 {
		return nil, backoff.Permanent(errors.New("no embeddings in response"))
	}

	return out.Data[0].Embedding, nil
}
