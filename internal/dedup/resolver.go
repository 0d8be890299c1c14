/*
Package dedup decides which indexed tools a newly indexed tool supersedes.

When providers rename a tool or reword its description slightly, the old
descriptor would otherwise linger in the index next to the new one and both
would be recommended. The resolver evicts existing tools whose embedding is
nearly identical to the incoming tool's.

The decision uses vector similarity only. Name similarity is computed for
every candidate and logged, which makes borderline evictions easy to audit.
*/
package dedup

import (
	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/logging"
	"github.com/khanglvm/tool-finder-mcp/internal/similarity"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

// DefaultEvictThreshold is the vector similarity at or above which an
// existing tool is treated as a duplicate of a new one.
const DefaultEvictThreshold = 0.96

// Tool is the incoming tool being indexed.
type Tool struct {
	Fingerprint string
	Name        string
	Vector      []float32
}

// Eviction is an existing tool superseded by an incoming one.
type Eviction struct {
	storage.ToolKey
	Name             string
	Similarity       float64
	NameSimilarity   float64
	SupersededBy     string
	SupersededByName string
}

// Supersession converts e into the mark committed to the store.
func (e Eviction) Supersession() storage.Supersession {
	return storage.Supersession{ToolKey: e.ToolKey, Name: e.Name, By: e.SupersededBy}
}

// Resolver selects near-duplicates for eviction.
type Resolver struct {
	threshold float64
	logger    *zap.Logger
}

// NewResolver returns a resolver evicting at threshold, or at
// DefaultEvictThreshold when threshold is not positive.
func NewResolver(threshold float64, logger *zap.Logger) *Resolver {
	if threshold <= 0 {
		threshold = DefaultEvictThreshold
	}
	return &Resolver{threshold: threshold, logger: logging.OrNop(logger)}
}


// Resolve returns the candidates the incoming tool supersedes. Candidates
// carrying the incoming tool's own fingerprint are never evicted.
func (r *Resolver) Resolve(incoming Tool, candidates []storage.ScoredTool) []Eviction {
	var evictions []Eviction
	for _, c := range candidates {
		if c.Fingerprint == incoming.Fingerprint {
			continue
		}

		nameSim := NameSimilarity(incoming.Name, c.Name)
		evict := c.Similarity >= r.threshold
		r.logger.Debug("near-duplicate candidate",
			zap.String("tool", incoming.Name),
			zap.String("candidate", c.Name),
			zap.Float64("similarity", c.Similarity),
			zap.Float64("name_similarity", nameSim),
			zap.Bool("evict", evict),
		)
		if !evict {
			continue
		}

		evictions = append(evictions, Eviction{
			ToolKey:          storage.ToolKey{Fingerprint: c.Fingerprint, Model: c.Model},
			Name:             c.Name,
			Similarity:       c.Similarity,
			NameSimilarity:   nameSim,
			SupersededBy:     incoming.Fingerprint,
			SupersededByName: incoming.Name,
		})
	}
	return evictions
}

// ResolveVectors reports whether two in-memory vectors are near-duplicates.
func (r *Resolver) ResolveVectors(a, b []float32) (bool, float64) {
	sim := similarity.Cosine(a, b)
	return sim >= r.threshold, sim
}

// NameSimilarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over
// runes. Identical names score 1; an empty name scores 0 against anything else.
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	longest := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the edit distance with a single reusable row.
func levenshtein(a, b []rune) int {
	if len(a) > len(b) {
		a, b = b, a
	}

	row := make([]int, len(a)+1)
	for i := range row {
		row[i] = i
	}

	for j := 1; j <= len(b); j++ {
		prev := row[0]
		row[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur := min(row[i]+1, row[i-1]+1, prev+cost)
			prev = row[i]
			row[i] = cur
		}
	}
	return row[len(a)]
}
