/*
Package storage provides data models for the tool index and session ledger.
*/
package storage

import "time"

// ToolDescriptor is an indexed tool under one embedding model.
type ToolDescriptor struct {
	// ID is the database row id, stable for the descriptor's lifetime.
	ID int64 `json:"id"`

	// Fingerprint is the content hash of name and description.
	Fingerprint string `json:"fingerprint"`

	// Model identifies the embedding model the vector came from.
	Model string `json:"model"`

	// Name is the provider-qualified tool name.
	Name string `json:"name"`

	// Description is the tool's natural-language description.
	Description string `json:"description"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolVector is the input to an upsert: a tool and its freshly computed embedding.
type ToolVector struct {
	Name        string
	Description string
	Model       string
	Vector      []float32
}

// ScoredTool is a search hit.
type ScoredTool struct {
	ToolDescriptor

	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float64 `json:"similarity"`

	// Vector is the stored embedding of the hit.
	Vector []float32 `json:"-"`
}

// SearchQuery parameterizes a nearest-neighbour search.
type SearchQuery struct {
	// Vector is the query embedding.
	Vector []float32

	// Model restricts the search to vectors of this embedding model.
	Model string

	// K is the maximum number of results.
	K int

	// MinSimilarity is the inclusive similarity floor.
	MinSimilarity float64

	// NamePrefixes, when non-empty, keeps only tools whose name starts with
	// one of the prefixes.
	NamePrefixes []string

	// ExcludeFingerprint drops the tool with this fingerprint from results.
	ExcludeFingerprint string
}

// ToolKey identifies one descriptor.
type ToolKey struct {
	Fingerprint string
	Model       string
}

// Supersession marks a tool as replaced by a near-duplicate under the same model.
type Supersession struct {
	ToolKey

	// Name is the superseded tool's name.
	Name string

	// By is the fingerprint of the superseding tool.
	By string
}

// Batch groups evictions and upserts committed in one transaction.
type Batch struct {
	// Supersede lists tools to delete (when indexed) and mark as superseded.
	Supersede []Supersession

	Upserts []ToolVector
}

// BatchResult reports what a committed batch changed.
type BatchResult struct {
	// Evicted counts indexed descriptors deleted by supersession.
	Evicted int

	Upserted int

	// Superseded counts supersession marks written.
	Superseded int
}

// Retrieval is a tool surfaced to a session.
type Retrieval struct {
	Fingerprint string
	ToolName    string
}

// LedgerEntry records that a session has been shown a tool.
type LedgerEntry struct {
	SessionID   string    `json:"session_id"`
	Fingerprint string    `json:"fingerprint"`
	ToolName    string    `json:"tool_name"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// SessionStats summarizes a session's ledger.
type SessionStats struct {
	SessionID        string    `json:"session_id"`
	Count            int       `json:"count"`
	FirstRetrievedAt time.Time `json:"first_retrieved_at,omitempty"`
	LastRetrievedAt  time.Time `json:"last_retrieved_at,omitempty"`
}

// SearchRecord represents a retrieve query for analytics.
type SearchRecord struct {
	// SearchID is a unique identifier for this search (UUID).
	SearchID string `json:"search_id"`

	// SessionID is the session the query ran in.
	SessionID string `json:"session_id"`

	// QueryHash is the SHA256 hash of the query for privacy.
	QueryHash string `json:"query_hash"`

	// ResultsCount is the number of tools returned.
	ResultsCount int `json:"results_count"`

	// NewCount is how many of those tools were new to the session.
	NewCount int `json:"new_count"`

	Timestamp time.Time `json:"timestamp"`
}
