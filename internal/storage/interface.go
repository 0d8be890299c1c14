package storage

import (
	"context"
	"time"
)

// ToolStore is the fingerprint and embedding store.
type ToolStore interface {
	// UpsertTool inserts or updates a descriptor and points it at a new vector.
	UpsertTool(ctx context.Context, tool ToolVector) (int64, error)

	// SearchNearest returns up to K live tools of the query's model whose
	// similarity clears the floor, most similar first.
	SearchNearest(ctx context.Context, q SearchQuery) ([]ScoredTool, error)

	// LookupTool returns the descriptor for (fingerprint, model) or ErrNotFound.
	LookupTool(ctx context.Context, fingerprint, model string) (*ToolDescriptor, error)

	// DeleteTool removes a descriptor under one model, or all models when
	// model is empty, and returns how many descriptors were removed.
	DeleteTool(ctx context.Context, fingerprint, model string) (int, error)

	// IsSuperseded reports whether (fingerprint, model) is marked as replaced
	// by a descriptor that still exists.
	IsSuperseded(ctx context.Context, fingerprint, model string) (bool, error)

	// CommitBatch applies evictions then upserts in one transaction.
	CommitBatch(ctx context.Context, batch Batch) (BatchResult, error)

	// SweepOrphanVectors deletes vectors no descriptor points at.
	SweepOrphanVectors(ctx context.Context) (int, error)
}

// Ledger is the session retrieval ledger.
type Ledger interface {
	// SessionHistory returns a session's entries, most recent first.
	SessionHistory(ctx context.Context, sessionID string) ([]LedgerEntry, error)

	// HasSeen reports whether a session has been shown a fingerprint.
	HasSeen(ctx context.Context, sessionID, fingerprint string) (bool, error)

	// RecordRetrievals idempotently records tools shown to a session and
	// returns how many entries were new.
	RecordRetrievals(ctx context.Context, sessionID string, items []Retrieval) (int, error)

	// ClearSession deletes a session's entries.
	ClearSession(ctx context.Context, sessionID string) (int, error)

	// SessionStats summarizes a session's entries.
	SessionStats(ctx context.Context, sessionID string) (SessionStats, error)
}

// History stores search analytics.
type History interface {
	// RecordSearches persists a batch of search records.
	RecordSearches(ctx context.Context, records []SearchRecord) error

	// Cleanup removes records older than the retention period.
	Cleanup(ctx context.Context, retention time.Duration) (int, error)
}

// Inspector lists stored state for maintenance and export.
type Inspector interface {
	// ListTools returns the descriptors of a model in insertion order.
	ListTools(ctx context.Context, model string) ([]ToolDescriptor, error)

	// CountTools counts the descriptors of a model.
	CountTools(ctx context.Context, model string) (int, error)

	// ListSessions summarizes every session, most recently active first.
	ListSessions(ctx context.Context) ([]SessionStats, error)

	// CountSearches counts the search records of a session.
	CountSearches(ctx context.Context, sessionID string) (int, error)
}

// Storage is the full persistent layer.
type Storage interface {
	ToolStore
	Ledger
	History
	Inspector

	// Init opens the database and runs migrations.
	Init(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

var _ Storage = (*SQLiteStorage)(nil)
