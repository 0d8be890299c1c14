/*
Package search provides the keyword fallback used when query embedding is
unavailable.

The index is an in-memory bleve index over the live tool set, rebuilt after
every resync. Hits carry the tool fingerprint so the caller can resolve them
against live tools the same way vector hits are resolved.
*/
package search

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/khanglvm/tool-finder-mcp/internal/spawner"
)

// Index is a keyword index over live tools.
type Index struct {
	mu         sync.RWMutex
	bleveIndex bleve.Index
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &Index{bleveIndex: idx}, nil
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	toolMapping := bleve.NewDocumentMapping()

	// Qualified name, kept whole for display.
	nameField := bleve.NewTextFieldMapping()
	nameField.IncludeInAll = false
	toolMapping.AddFieldMappingsAt("name", nameField)

	// Tool name split into words so "send_email" matches "send email".
	toolMapping.AddFieldMappingsAt("terms", bleve.NewTextFieldMapping())
	toolMapping.AddFieldMappingsAt("description", bleve.NewTextFieldMapping())

	// Exact server name for filtering.
	serverField := bleve.NewKeywordFieldMapping()
	serverField.IncludeInAll = false
	toolMapping.AddFieldMappingsAt("server", serverField)

	fpField := bleve.NewKeywordFieldMapping()
	fpField.IncludeInAll = false
	toolMapping.AddFieldMappingsAt("fingerprint", fpField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = toolMapping
	return indexMapping
}

// Rebuild replaces the indexed tools with tools.
func (i *Index) Rebuild(tools []spawner.Tool) error {
	fresh, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create bleve index: %w", err)
	}

	batch := fresh.NewBatch()
	for _, tool := range tools {
		docID := tool.QualifiedName()
		doc := map[string]interface{}{
			"name":        docID,
			"terms":       splitWords(tool.Name),
			"description": tool.Description,
			"server":      tool.Server,
			"fingerprint": tool.Fingerprint(),
		}
		if err := batch.Index(docID, doc); err != nil {
			_ = fresh.Close()
			return fmt.Errorf("failed to index tool %s: %w", docID, err)
		}
	}
	if err := fresh.Batch(batch); err != nil {
		_ = fresh.Close()
		return fmt.Errorf("failed to batch index tools: %w", err)
	}

	i.mu.Lock()
	old := i.bleveIndex
	i.bleveIndex = fresh
	i.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// Count returns the total number of indexed tools.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docCount, err := i.bleveIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}
	return docCount, nil
}

// Close closes the index and releases resources.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.bleveIndex == nil {
		return nil
	}
	err := i.bleveIndex.Close()
	i.bleveIndex = nil
	return err
}

func splitWords(name string) string {
	return strings.Join(strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == '/'
	}), " ")
}
