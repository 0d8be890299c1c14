/*
Package indexer keeps the tool index in step with the live tool set.

A run fingerprints every live tool, skips the ones already indexed (or
superseded by an indexed near-duplicate), embeds the rest on a fixed pool of
workers, and commits the survivors together with every eviction in a single
transaction. Re-running over an unchanged tool set embeds nothing.
*/
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
	"github.com/khanglvm/tool-finder-mcp/internal/dedup"
	"github.com/khanglvm/tool-finder-mcp/internal/embedding"
	"github.com/khanglvm/tool-finder-mcp/internal/logging"
	"github.com/khanglvm/tool-finder-mcp/internal/spawner"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

// Options tunes a Pipeline. Zero values take the config defaults.
type Options struct {
	// Workers is the number of concurrent embedding workers.
	Workers int

	// CandidateLimit is how many neighbours the near-duplicate search inspects.
	CandidateLimit int

	// CandidateFloor is the similarity floor of the near-duplicate search.
	CandidateFloor float64
}

// Report summarizes one run.
type Report struct {
	// Discovered counts the live tools offered to the run.
	Discovered int `json:"discovered"`

	// Skipped counts tools already indexed or superseded.
	Skipped int `json:"skipped"`

	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`

	// Evicted counts indexed tools removed as near-duplicates of new ones.
	Evicted int `json:"evicted"`

	// Superseded counts new tools dropped as near-duplicates of later tools
	// in the same run.
	Superseded int `json:"superseded"`

	// Committed counts tools written to the index.
	Committed int `json:"committed"`

	// Swept counts orphan vectors reclaimed after the commit.
	Swept int `json:"swept"`

	Duration time.Duration `json:"duration"`
}

// Pipeline indexes live tools under one embedding model.
type Pipeline struct {
	store    storage.ToolStore
	embedder embedding.Embedder
	resolver *dedup.Resolver
	opts     Options
	logger   *zap.Logger
}

// New creates a pipeline.
func New(store storage.ToolStore, embedder embedding.Embedder, resolver *dedup.Resolver, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = config.DefaultIndexWorkers
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = config.DefaultCandidateLimit
	}
	if opts.CandidateFloor <= 0 {
		opts.CandidateFloor = config.DefaultCandidateFloor
	}
	if resolver == nil {
		resolver = dedup.NewResolver(0, logger)
	}
	return &Pipeline{
		store:    store,
		embedder: embedder,
		resolver: resolver,
		opts:     opts,
		logger:   logging.OrNop(logger),
	}
}

// EmbeddingText is the text a tool is embedded from.
func EmbeddingText(name, description string) string {
	if description == "" {
		return name
	}
	return name + ": " + description
}

// pending is a tool that needs embedding, with its position in provider order.
type pending struct {
	index       int
	tool        spawner.Tool
	name        string
	fingerprint string
}

// staged is an embedded tool waiting for the commit.
type staged struct {
	pending
	vector    []float32
	evictions []dedup.Eviction
}

// Run indexes tools. Embedding failures are logged and counted; storage
// failures abort the run and nothing is committed.
func (p *Pipeline) Run(ctx context.Context, tools []spawner.Tool) (Report, error) {
	start := time.Now()
	report := Report{Discovered: len(tools)}
	model := p.embedder.Model()

	work, skipped, err := p.selectPending(ctx, tools, model)
	if err != nil {
		return report, err
	}
	report.Skipped = skipped

	if len(work) == 0 {
		report.Duration = time.Since(start)
		p.logger.Info("index up to date", zap.Int("tools", report.Discovered), zap.String("model", model))
		return report, nil
	}

	results, failed, err := p.embedAll(ctx, work, model)
	if err != nil {
		return report, err
	}
	report.Embedded = len(results)
	report.Failed = failed

	batch, superseded := p.buildBatch(results, model)
	report.Superseded = superseded

	committed, err := p.store.CommitBatch(ctx, batch)
	if err != nil {
		return report, fmt.Errorf("failed to commit index batch: %w", err)
	}
	report.Evicted = committed.Evicted
	report.Committed = committed.Upserted

	swept, err := p.store.SweepOrphanVectors(ctx)
	if err != nil {
		p.logger.Warn("failed to sweep orphan vectors", zap.Error(err))
	}
	report.Swept = swept
	report.Duration = time.Since(start)

	p.logger.Info("indexed tools",
		zap.String("model", model),
		zap.Int("discovered", report.Discovered),
		zap.Int("skipped", report.Skipped),
		zap.Int("embedded", report.Embedded),
		zap.Int("failed", report.Failed),
		zap.Int("evicted", report.Evicted),
		zap.Int("superseded", report.Superseded),
		zap.Int("committed", report.Committed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// selectPending drops repeated tools and those the index already covers.
func (p *Pipeline) selectPending(ctx context.Context, tools []spawner.Tool, model string) ([]pending, int, error) {
	seen := make(map[string]struct{}, len(tools))
	var (
		work    []pending
		skipped int
	)

	for i, tool := range tools {
		fp := tool.Fingerprint()
		if _, dup := seen[fp]; dup {
			skipped++
			continue
		}
		seen[fp] = struct{}{}

		_, err := p.store.LookupTool(ctx, fp, model)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, 0, fmt.Errorf("failed to look up %s: %w", tool.QualifiedName(), err)
		}

		superseded, err := p.store.IsSuperseded(ctx, fp, model)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to check %s: %w", tool.QualifiedName(), err)
		}
		if superseded {
			skipped++
			continue
		}

		work = append(work, pending{index: i, tool: tool, name: tool.QualifiedName(), fingerprint: fp})
	}
	return work, skipped, nil
}

// embedAll feeds work through a channel to a fixed pool of workers. Each
// worker embeds a tool and searches the index for near-duplicates before the
// tool itself is committed.
func (p *Pipeline) embedAll(ctx context.Context, work []pending, model string) ([]staged, int, error) {
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan pending)

	g.Go(func() error {
		defer close(queue)
		for _, item := range work {
			select {
			case queue <- item:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var (
		mu      sync.Mutex
		results []staged
		failed  int
	)

	workers := min(p.opts.Workers, len(work))
	for range workers {
		g.Go(func() error {
			for item := range queue {
				vec, err := p.embedder.Embed(gctx, EmbeddingText(item.name, item.tool.Description))
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					p.logger.Warn("failed to embed tool", zap.String("tool", item.name), zap.Error(err))
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}

				candidates, err := p.store.SearchNearest(gctx, storage.SearchQuery{
					Vector:             vec,
					Model:              model,
					K:                  p.opts.CandidateLimit,
					MinSimilarity:      p.opts.CandidateFloor,
					ExcludeFingerprint: item.fingerprint,
				})
				if err != nil {
					return fmt.Errorf("failed to search near-duplicates of %s: %w", item.name, err)
				}

				evictions := p.resolver.Resolve(dedup.Tool{
					Fingerprint: item.fingerprint,
					Name:        item.name,
					Vector:      vec,
				}, candidates)

				mu.Lock()
				results = append(results, staged{pending: item, vector: vec, evictions: evictions})
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	return results, failed, nil
}

// buildBatch resolves near-duplicates among the staged tools, later in
// provider order superseding earlier, and collects the survivors' evictions.
func (p *Pipeline) buildBatch(results []staged, model string) (storage.Batch, int) {
	var (
		batch      storage.Batch
		survivors  []staged
		superseded int
	)

	for i := len(results) - 1; i >= 0; i-- {
		cand := results[i]
		var by *staged
		for j := range survivors {
			if dup, sim := p.resolver.ResolveVectors(cand.vector, survivors[j].vector); dup {
				by = &survivors[j]
				p.logger.Debug("superseded within batch",
					zap.String("tool", cand.name),
					zap.String("by", by.name),
					zap.Float64("similarity", sim),
					zap.Float64("name_similarity", dedup.NameSimilarity(cand.name, by.name)),
				)
				break
			}
		}
		if by != nil {
			superseded++
			batch.Supersede = append(batch.Supersede, storage.Supersession{
				ToolKey: storage.ToolKey{Fingerprint: cand.fingerprint, Model: model},
				Name:    cand.name,
				By:      by.fingerprint,
			})
			continue
		}
		survivors = append(survivors, cand)
	}

	evicted := make(map[storage.ToolKey]struct{})
	for i := len(survivors) - 1; i >= 0; i-- {
		s := survivors[i]
		for _, ev := range s.evictions {
			if _, done := evicted[ev.ToolKey]; done {
				continue
			}
			evicted[ev.ToolKey] = struct{}{}
			p.logger.Info("evicting near-duplicate",
				zap.String("tool", ev.Name),
				zap.String("superseded_by", ev.SupersededByName),
				zap.Float64("similarity", ev.Similarity),
			)
			batch.Supersede = append(batch.Supersede, ev.Supersession())
		}
		batch.Upserts = append(batch.Upserts, storage.ToolVector{
			Name:        s.name,
			Description: s.tool.Description,
			Model:       model,
			Vector:      s.vector,
		})
	}

	return batch, superseded
}
