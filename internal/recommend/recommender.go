/*
Package recommend ranks indexed tools against a natural-language query.

A recommendation embeds the query, runs a nearest-neighbour search scoped to
the requested servers and resolves every hit against the live tool set. Index
entries whose tool is no longer offered by any server are dropped silently,
and the remaining results are ranked 1..n.

When the query cannot be embedded and a keyword index is configured, the
recommender answers from BM25 matches instead.
*/
package recommend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
	"github.com/khanglvm/tool-finder-mcp/internal/embedding"
	"github.com/khanglvm/tool-finder-mcp/internal/logging"
	"github.com/khanglvm/tool-finder-mcp/internal/search"
	"github.com/khanglvm/tool-finder-mcp/internal/spawner"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

// Result sources.
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
)

// Searcher runs nearest-neighbour queries over the index.
type Searcher interface {
	SearchNearest(ctx context.Context, q storage.SearchQuery) ([]storage.ScoredTool, error)
}

// LiveTools lists the tools the servers currently offer.
type LiveTools interface {
	ListTools(ctx context.Context) ([]spawner.Tool, error)
}

// GroupResolver maps group names to server names.
type GroupResolver interface {
	ServerNamesForGroups(groups []string) []string
}

// KeywordIndex is the fallback used when the query cannot be embedded.
type KeywordIndex interface {
	Search(ctx context.Context, text string, limit int, servers []string) ([]search.Hit, error)
}

// NoFloor disables the similarity floor. Similarity never drops below -1.
const NoFloor = -1.0

// Options scopes one recommendation.
type Options struct {
	// TopK bounds the result count. Zero or negative takes the default.
	TopK int

	// MinSimilarity is the inclusive similarity floor. Zero takes the
	// default; a floor of exactly 0 cannot be requested, use a small negative
	// value or NoFloor instead.
	MinSimilarity float64

	ServerNames []string
	GroupNames  []string
}

// Result is a ranked, live tool.
type Result struct {
	Rank         int     `json:"rank"`
	Name         string  `json:"name"`
	Server       string  `json:"server"`
	Tool         string  `json:"tool"`
	Fingerprint  string  `json:"fingerprint"`
	Description  string  `json:"description"`
	Similarity   float64 `json:"similarity"`
	InputSchema  any     `json:"input_schema,omitempty"`
	OutputSchema any     `json:"output_schema,omitempty"`
	Source       string  `json:"source"`
}

// Recommender ranks tools for queries. It holds no state of its own.
type Recommender struct {
	store    Searcher
	embedder embedding.Embedder
	live     LiveTools
	groups   GroupResolver
	keyword  KeywordIndex
	topK     int
	minSim   float64
	logger   *zap.Logger
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithKeywordFallback answers from idx when embedding the query fails.
func WithKeywordFallback(idx KeywordIndex) Option {
	return func(r *Recommender) { r.keyword = idx }
}

// WithDefaults sets the TopK and MinSimilarity used for zero options.
func WithDefaults(topK int, minSimilarity float64) Option {
	return func(r *Recommender) {
		if topK > 0 {
			r.topK = topK
		}
		if minSimilarity != 0 {
			r.minSim = minSimilarity
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recommender) { r.logger = logging.OrNop(logger) }
}

// New creates a recommender.
func New(store Searcher, embedder embedding.Embedder, live LiveTools, groups GroupResolver, opts ...Option) *Recommender {
	r := &Recommender{
		store:    store,
		embedder: embedder,
		live:     live,
		groups:   groups,
		topK:     config.DefaultTopK,
		minSim:   config.DefaultMinSimilarity,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recommend returns up to TopK live tools for query, most similar first.
func (r *Recommender) Recommend(ctx context.Context, query string, opts Options) ([]Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = r.topK
	}
	if opts.MinSimilarity == 0 {
		opts.MinSimilarity = r.minSim
	}

	servers, scoped := r.resolveServers(opts)
	if scoped && len(servers) == 0 {
		return []Result{}, nil
	}

	tools, err := r.live.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live tools: %w", err)
	}
	live := make(map[string]spawner.Tool, len(tools))
	for _, t := range tools {
		live[t.Fingerprint()] = t
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if r.keyword == nil || ctx.Err() != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		r.logger.Warn("query embedding failed, using keyword search", zap.Error(err))
		return r.recommendKeyword(ctx, query, opts, servers, live)
	}

	prefixes := make([]string, 0, len(servers))
	for _, s := range servers {
		prefixes = append(prefixes, s+config.NameSeparator)
	}

	hits, err := r.store.SearchNearest(ctx, storage.SearchQuery{
		Vector:        vec,
		Model:         r.embedder.Model(),
		K:             opts.TopK,
		MinSimilarity: opts.MinSimilarity,
		NamePrefixes:  prefixes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		tool, ok := live[hit.Fingerprint]
		if !ok {
			r.logger.Debug("dropping stale index entry", zap.String("tool", hit.Name))
			continue
		}
		results = append(results, newResult(len(results)+1, tool, hit.Similarity, SourceVector))
	}
	return results, nil
}

func (r *Recommender) recommendKeyword(ctx context.Context, query string, opts Options, servers []string, live map[string]spawner.Tool) ([]Result, error) {
	hits, err := r.keyword.Search(ctx, query, opts.TopK, servers)
	if err != nil {
		return nil, fmt.Errorf("failed to search keyword index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < opts.MinSimilarity {
			continue
		}
		tool, ok := live[hit.Fingerprint]
		if !ok {
			continue
		}
		results = append(results, newResult(len(results)+1, tool, hit.Score, SourceKeyword))
	}
	return results, nil
}

// resolveServers returns the server scope and whether any scope was requested.
// Groups resolve through the config; explicit servers intersect with them.
func (r *Recommender) resolveServers(opts Options) ([]string, bool) {
	switch {
	case len(opts.GroupNames) == 0 && len(opts.ServerNames) == 0:
		return nil, false
	case len(opts.GroupNames) == 0:
		return opts.ServerNames, true
	}

	var fromGroups []string
	if r.groups != nil {
		fromGroups = r.groups.ServerNamesForGroups(opts.GroupNames)
	}
	if len(opts.ServerNames) == 0 {
		return fromGroups, true
	}

	inGroups := make(map[string]struct{}, len(fromGroups))
	for _, s := range fromGroups {
		inGroups[s] = struct{}{}
	}
	var servers []string
	for _, s := range opts.ServerNames {
		if _, ok := inGroups[s]; ok {
			servers = append(servers, s)
		}
	}
	return servers, true
}

func newResult(rank int, tool spawner.Tool, score float64, source string) Result {
	return Result{
		Rank:         rank,
		Name:         tool.QualifiedName(),
		Server:       tool.Server,
		Tool:         tool.Name,
		Fingerprint:  tool.Fingerprint(),
		Description:  tool.Description,
		Similarity:   score,
		InputSchema:  tool.InputSchema,
		OutputSchema: tool.OutputSchema,
		Source:       source,
	}
}
