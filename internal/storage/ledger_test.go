package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRetrievalsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	items := []Retrieval{
		{Fingerprint: "fp1", ToolName: "cal__create_event"},
		{Fingerprint: "fp2", ToolName: "cal__list_events"},
	}

	n, err := s.RecordRetrievals(ctx, "abc123", items)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.RecordRetrievals(ctx, "abc123", items)
	require.NoError(t, err)
	assert.Zero(t, n)

	history, err := s.SessionHistory(ctx, "abc123")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	n, err = s.RecordRetrievals(ctx, "abc123", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionHistoryMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStorage(t, WithClock(func() time.Time { return clock }))

	_, err := s.RecordRetrievals(ctx, "s1", []Retrieval{{Fingerprint: "old", ToolName: "a"}})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	_, err = s.RecordRetrievals(ctx, "s1", []Retrieval{{Fingerprint: "new", ToolName: "b"}})
	require.NoError(t, err)

	history, err := s.SessionHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "new", history[0].Fingerprint)
	assert.Equal(t, "old", history[1].Fingerprint)
	assert.WithinDuration(t, clock, history[0].RetrievedAt, 0)
}

func TestHasSeenIsPerSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.RecordRetrievals(ctx, "s1", []Retrieval{{Fingerprint: "fp", ToolName: "t"}})
	require.NoError(t, err)

	seen, err := s.HasSeen(ctx, "s1", "fp")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.HasSeen(ctx, "s2", "fp")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestClearSessionAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.RecordRetrievals(ctx, "s1", []Retrieval{
		{Fingerprint: "a", ToolName: "ta"},
		{Fingerprint: "b", ToolName: "tb"},
	})
	require.NoError(t, err)
	_, err = s.RecordRetrievals(ctx, "s2", []Retrieval{{Fingerprint: "a", ToolName: "ta"}})
	require.NoError(t, err)

	stats, err := s.SessionStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.False(t, stats.LastRetrievedAt.IsZero())

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	n, err := s.ClearSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err = s.SessionStats(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
	assert.True(t, stats.LastRetrievedAt.IsZero())

	seen, err := s.HasSeen(ctx, "s2", "a")
	require.NoError(t, err)
	assert.True(t, seen, "clearing one session leaves others intact")
}

func TestSearchHistoryCleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	s := newTestStorage(t, WithClock(func() time.Time { return now }))

	require.NoError(t, s.RecordSearches(ctx, []SearchRecord{
		{SearchID: "old", SessionID: "s1", QueryHash: HashQuery("q"), ResultsCount: 3, Timestamp: now.Add(-48 * time.Hour)},
		{SearchID: "new", SessionID: "s1", QueryHash: HashQuery("q"), ResultsCount: 1, NewCount: 1},
	}))

	n, err := s.CountSearches(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := s.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err = s.CountSearches(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
