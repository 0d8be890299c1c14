package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// ErrClosed is returned by Search after Close.
var ErrClosed = errors.New("search index closed")

// Hit is a keyword match.
type Hit struct {
	Fingerprint string  `json:"fingerprint"`
	Name        string  `json:"name"`
	Server      string  `json:"server"`
	Score       float64 `json:"score"`
}

// Search runs a BM25 match query and returns up to limit hits with scores
// normalized to [0, 1]. Non-empty servers restrict hits to those servers.
func (i *Index) Search(ctx context.Context, text string, limit int, servers []string) ([]Hit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.bleveIndex == nil {
		return nil, ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var q query.Query = bleve.NewMatchQuery(text)
	if len(servers) > 0 {
		filters := make([]query.Query, 0, len(servers))
		for _, server := range servers {
			tq := bleve.NewTermQuery(server)
			tq.SetField("server")
			filters = append(filters, tq)
		}
		q = bleve.NewConjunctionQuery(q, bleve.NewDisjunctionQuery(filters...))
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"fingerprint", "name", "server"}

	results, err := i.bleveIndex.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		fp, _ := h.Fields["fingerprint"].(string)
		name, _ := h.Fields["name"].(string)
		server, _ := h.Fields["server"].(string)
		hits = append(hits, Hit{Fingerprint: fp, Name: name, Server: server, Score: h.Score})
	}
	normalizeScores(hits)
	return hits, nil
}

// normalizeScores divides every score by the best one. Hits arrive sorted by
// descending score.
func normalizeScores(hits []Hit) {
	if len(hits) == 0 || hits[0].Score <= 0 {
		return
	}
	top := hits[0].Score
	for i := range hits {
		hits[i].Score /= top
	}
}
