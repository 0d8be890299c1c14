/*
Package hub wires the index, the recommender and the session ledger into the
two operations the MCP surface exposes: retrieve and execute.

A Hub owns every long-lived component. Start opens the store and indexes the
live tool set; Close releases everything in reverse order.
*/
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
	"github.com/khanglvm/tool-finder-mcp/internal/dedup"
	"github.com/khanglvm/tool-finder-mcp/internal/embedding"
	"github.com/khanglvm/tool-finder-mcp/internal/fingerprint"
	"github.com/khanglvm/tool-finder-mcp/internal/history"
	"github.com/khanglvm/tool-finder-mcp/internal/indexer"
	"github.com/khanglvm/tool-finder-mcp/internal/logging"
	"github.com/khanglvm/tool-finder-mcp/internal/recommend"
	"github.com/khanglvm/tool-finder-mcp/internal/search"
	"github.com/khanglvm/tool-finder-mcp/internal/session"
	"github.com/khanglvm/tool-finder-mcp/internal/spawner"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

var (
	// ErrValidation marks malformed retrieve or execute input.
	ErrValidation = errors.New("invalid request")

	// ErrToolNotFound is returned when no live tool has the requested fingerprint.
	ErrToolNotFound = errors.New("tool not found")
)

// Hub is the retrieve/execute service.
type Hub struct {
	cfg      *config.Config
	store    storage.Storage
	embedder embedding.Embedder
	pool     *spawner.Pool
	keyword  *search.Index

	pipeline    *indexer.Pipeline
	recommender *recommend.Recommender
	admitter    *session.Admitter

	mu       sync.Mutex
	recorder *history.Recorder

	poolOpts []spawner.Option
	logger   *zap.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithStorage replaces the SQLite store at the configured path.
func WithStorage(store storage.Storage) Option {
	return func(h *Hub) { h.store = store }
}

// WithEmbedder replaces the configured embedding backend.
func WithEmbedder(e embedding.Embedder) Option {
	return func(h *Hub) { h.embedder = e }
}

// WithPoolOptions passes options to the server process pool.
func WithPoolOptions(opts ...spawner.Option) Option {
	return func(h *Hub) { h.poolOpts = append(h.poolOpts, opts...) }
}

// New builds a hub from cfg. Nothing is opened or spawned until Start.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Hub, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	cfg.ApplyDefaults()
	logger = logging.OrNop(logger)

	h := &Hub{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(h)
	}

	s := cfg.Settings
	if h.store == nil {
		path := s.DatabasePath
		if path == "" {
			var err error
			if path, err = storage.DefaultPath(); err != nil {
				return nil, err
			}
		}
		h.store = storage.New(path, storage.WithLogger(logger.Named("storage")))
	}

	if h.embedder == nil {
		e, err := embedding.New(EmbeddingConfig(s), logger.Named("embedding"))
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		h.embedder = e
	}

	keyword, err := search.NewIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	h.keyword = keyword

	poolOpts := append([]spawner.Option{
		spawner.WithLogger(logger.Named("spawner")),
		spawner.WithTimeout(s.Timeout()),
	}, h.poolOpts...)
	h.pool = spawner.NewPool(cfg.Servers, s.ProcessPoolSize, poolOpts...)

	h.pipeline = indexer.New(
		h.store,
		h.embedder,
		dedup.NewResolver(s.DuplicateThreshold, logger.Named("dedup")),
		indexer.Options{
			Workers:        s.IndexWorkers,
			CandidateLimit: s.CandidateLimit,
			CandidateFloor: s.CandidateFloor,
		},
		logger.Named("indexer"),
	)

	h.recommender = recommend.New(h.store, h.embedder, h.pool, cfg,
		recommend.WithKeywordFallback(h.keyword),
		recommend.WithDefaults(s.TopK, s.MinSimilarity),
		recommend.WithLogger(logger.Named("recommend")),
	)
	h.admitter = session.NewAdmitter(h.store, s.SessionIDLength)

	return h, nil
}

// EmbeddingConfig translates settings into an embedder configuration. The
// API key is read from the environment variable the settings name.
func EmbeddingConfig(s *config.Settings) embedding.Config {
	e := s.Embedding
	if e == nil {
		e = config.DefaultSettings().Embedding
	}
	return embedding.Config{
		Backend:   e.Backend,
		BaseURL:   e.BaseURL,
		Model:     e.Model,
		Dimension: e.Dimension,
		APIKey:    e.APIKey(),
		Timeout:   s.Timeout(),
		CacheSize: e.CacheSize,
	}
}

// Start opens the store, starts the history recorder and indexes the live
// tools.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.Open(ctx); err != nil {
		return err
	}
	if _, err := h.Sync(ctx); err != nil {
		return fmt.Errorf("failed to index tools: %w", err)
	}
	return nil
}

// Open opens the store and starts the history recorder without indexing.
func (h *Hub) Open(ctx context.Context) error {
	if err := h.store.Init(ctx); err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}

	h.mu.Lock()
	if h.recorder == nil {
		h.recorder = history.NewRecorder(h.store, h.logger.Named("history"))
	}
	h.mu.Unlock()
	return nil
}

// Sync re-lists the live tools, rebuilds the keyword index and indexes
// whatever is new.
func (h *Hub) Sync(ctx context.Context) (indexer.Report, error) {
	h.pool.Refresh()
	tools, err := h.pool.ListTools(ctx)
	if err != nil {
		return indexer.Report{}, fmt.Errorf("failed to list tools: %w", err)
	}

	if err := h.keyword.Rebuild(tools); err != nil {
		h.logger.Warn("failed to rebuild keyword index", zap.Error(err))
	}

	return h.pipeline.Run(ctx, tools)
}

// Recommend ranks live tools for one query without touching the ledger.
func (h *Hub) Recommend(ctx context.Context, query string, opts recommend.Options) ([]recommend.Result, error) {
	return h.recommender.Recommend(ctx, query, opts)
}

// Store returns the underlying store.
func (h *Hub) Store() storage.Storage { return h.store }

// Pool returns the server process pool.
func (h *Hub) Pool() *spawner.Pool { return h.pool }

// Model returns the embedding model the index is keyed by.
func (h *Hub) Model() string { return h.embedder.Model() }

// Config returns the configuration the hub was built from.
func (h *Hub) Config() *config.Config { return h.cfg }

// Maintenance reports what Maintain removed.
type Maintenance struct {
	HistoryRemoved int `json:"history_removed"`
	VectorsSwept   int `json:"vectors_swept"`
}

// Maintain deletes expired search history and reclaims orphan vectors.
func (h *Hub) Maintain(ctx context.Context) (Maintenance, error) {
	var m Maintenance

	removed, err := h.store.Cleanup(ctx, h.cfg.Settings.HistoryRetention())
	if err != nil {
		return m, fmt.Errorf("failed to clean up history: %w", err)
	}
	m.HistoryRemoved = removed

	swept, err := h.store.SweepOrphanVectors(ctx)
	if err != nil {
		return m, fmt.Errorf("failed to sweep vectors: %w", err)
	}
	m.VectorsSwept = swept
	return m, nil
}

// Execute calls the live tool whose fingerprint matches.
func (h *Hub) Execute(ctx context.Context, fp string, params map[string]any) (*mcp.CallToolResult, error) {
	tool, err := h.lookupLive(ctx, fp)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := h.pool.CallTool(ctx, tool.QualifiedName(), params)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", tool.QualifiedName(), err)
	}
	h.logger.Debug("executed tool",
		zap.String("tool", tool.QualifiedName()),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("is_error", result.IsError),
	)
	return result, nil
}

func (h *Hub) lookupLive(ctx context.Context, fp string) (spawner.Tool, error) {
	if fp == "" {
		return spawner.Tool{}, fmt.Errorf("%w: fingerprint is required", ErrValidation)
	}
	if !fingerprint.Valid(fp) {
		return spawner.Tool{}, fmt.Errorf("%w: malformed fingerprint %q", ErrValidation, fp)
	}

	tools, err := h.pool.ListTools(ctx)
	if err != nil {
		return spawner.Tool{}, fmt.Errorf("failed to list tools: %w", err)
	}
	for _, t := range tools {
		if t.Fingerprint() == fp {
			return t, nil
		}
	}
	return spawner.Tool{}, fmt.Errorf("%w: %s", ErrToolNotFound, fp)
}

// Close stops the recorder and releases the pool, the keyword index and the
// store.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.recorder != nil {
		h.recorder.Stop()
	}
	h.mu.Unlock()

	return errors.Join(
		h.pool.Close(),
		h.keyword.Close(),
		h.store.Close(),
	)
}
