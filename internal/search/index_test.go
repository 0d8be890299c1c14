package search

import (
	"context"
	"testing"

	"github.com/khanglvm/tool-finder-mcp/internal/spawner"
)

func testTools() []spawner.Tool {
	return []spawner.Tool{
		{Server: "jira", Name: "create_ticket", Description: "Create a Jira ticket"},
		{Server: "jira", Name: "search_issues", Description: "Search Jira issues with JQL"},
		{Server: "calendar", Name: "find_event", Description: "Find a calendar event by title"},
		{Server: "mail", Name: "send_email", Description: "Send an email message"},
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.Rebuild(testTools()); err != nil {
		t.Fatalf("failed to rebuild index: %v", err)
	}
	return idx
}

func TestRebuildCount(t *testing.T) {
	idx := newTestIndex(t)

	count, err := idx.Count()
	if err != nil {
		t.Fatalf("failed to get count: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 indexed tools, got %d", count)
	}

	if err := idx.Rebuild(testTools()[:1]); err != nil {
		t.Fatalf("failed to rebuild index: %v", err)
	}
	count, _ = idx.Count()
	if count != 1 {
		t.Errorf("expected 1 indexed tool after rebuild, got %d", count)
	}
}

func TestSearch(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "calendar event", 5, nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}

	top := hits[0]
	if top.Name != "calendar__find_event" {
		t.Errorf("expected calendar__find_event first, got %s", top.Name)
	}
	if top.Server != "calendar" {
		t.Errorf("expected server calendar, got %s", top.Server)
	}
	want := spawner.Tool{Server: "calendar", Name: "find_event", Description: "Find a calendar event by title"}.Fingerprint()
	if top.Fingerprint != want {
		t.Errorf("fingerprint = %s, want %s", top.Fingerprint, want)
	}
	if top.Score != 1 {
		t.Errorf("top score should normalize to 1, got %f", top.Score)
	}
	for _, h := range hits {
		if h.Score < 0 || h.Score > 1 {
			t.Errorf("score out of range: %f", h.Score)
		}
	}
}

func TestSearchMatchesToolNameWords(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "ticket", 5, nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) == 0 || hits[0].Name != "jira__create_ticket" {
		t.Errorf("expected jira__create_ticket, got %+v", hits)
	}
}

func TestSearchServerFilter(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "jira email calendar", 10, []string{"jira"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	for _, h := range hits {
		if h.Server != "jira" {
			t.Errorf("hit from unexpected server %s", h.Server)
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search(context.Background(), "   ", 5, nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestSearchAfterClose(t *testing.T) {
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := idx.Search(context.Background(), "x", 1, nil); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestNormalizeScores(t *testing.T) {
	hits := []Hit{{Score: 4}, {Score: 2}, {Score: 1}}
	normalizeScores(hits)
	want := []float64{1, 0.5, 0.25}
	for i, h := range hits {
		if h.Score != want[i] {
			t.Errorf("hit %d score = %f, want %f", i, h.Score, want[i])
		}
	}

	normalizeScores(nil)
}
