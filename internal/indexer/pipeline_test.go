package indexer

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/tool-finder-mcp/internal/dedup"
	"github.com/khanglvm/tool-finder-mcp/internal/spawner"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

const testModel = "toy"

// toyEmbedder returns fixed vectors per text.
type toyEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]bool
	calls   int
}

func (e *toyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail[text] {
		return nil, errors.New("provider down")
	}
	vec, ok := e.vectors[text]
	if !ok {
		return nil, errors.New("no vector for " + text)
	}
	return vec, nil
}

func (e *toyEmbedder) Model() string  { return testModel }
func (e *toyEmbedder) Dimension() int { return 3 }

func (e *toyEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s := storage.New(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tool(server, name, desc string) spawner.Tool {
	return spawner.Tool{Server: server, Name: name, Description: desc}
}

func text(t spawner.Tool) string {
	return EmbeddingText(t.QualifiedName(), t.Description)
}

var (
	sendEmail = tool("mail", "send_email", "sends an email")
	emailSend = tool("mail", "email_send", "sends an email message")
	calendar  = tool("cal", "find_event", "find a calendar event")
	weather   = tool("wx", "forecast", "weather forecast")
	deliver   = tool("mail", "deliver_email", "delivers an email")
)

// nearDuplicate has cosine similarity 0.97 with (1, 0, 0).
var nearDuplicate = []float32{0.97, float32(math.Sqrt(1 - 0.97*0.97)), 0}

// closeToBoth has cosine similarity 0.99 with (1, 0, 0) and above 0.99 with
// nearDuplicate.
var closeToBoth = []float32{0.99, float32(math.Sqrt(1 - 0.99*0.99)), 0}

func newToyEmbedder() *toyEmbedder {
	return &toyEmbedder{
		vectors: map[string][]float32{
			text(sendEmail): {1, 0, 0},
			text(emailSend): nearDuplicate,
			text(calendar):  {0, 1, 0},
			text(weather):   {0, 0, 1},
			text(deliver):   closeToBoth,
		},
		fail: map[string]bool{},
	}
}

func TestEmbeddingText(t *testing.T) {
	assert.Equal(t, "mail__send_email: sends an email", EmbeddingText("mail__send_email", "sends an email"))
	assert.Equal(t, "mail__send_email", EmbeddingText("mail__send_email", ""))
}

func TestRunIndexesNewTools(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := New(store, newToyEmbedder(), nil, Options{Workers: 2}, nil)

	report, err := p.Run(ctx, []spawner.Tool{sendEmail, calendar, weather})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Discovered)
	assert.Equal(t, 3, report.Embedded)
	assert.Equal(t, 3, report.Committed)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Evicted)

	tools, err := store.ListTools(ctx, testModel)
	require.NoError(t, err)
	require.Len(t, tools, 3)
	assert.Equal(t, "mail__send_email", tools[0].Name)
	assert.Equal(t, sendEmail.Fingerprint(), tools[0].Fingerprint)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := newToyEmbedder()
	p := New(store, embedder, nil, Options{}, nil)
	live := []spawner.Tool{sendEmail, calendar, weather}

	_, err := p.Run(ctx, live)
	require.NoError(t, err)
	calls := embedder.callCount()

	report, err := p.Run(ctx, live)
	require.NoError(t, err)
	assert.Zero(t, report.Embedded)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, calls, embedder.callCount())

	n, err := store.CountTools(ctx, testModel)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRunDropsRepeatedInput(t *testing.T) {
	store := newStore(t)
	p := New(store, newToyEmbedder(), nil, Options{}, nil)

	report, err := p.Run(context.Background(), []spawner.Tool{calendar, calendar})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, 1, report.Skipped)
}

func TestRunSupersedesNearDuplicateWithinBatch(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := newToyEmbedder()
	p := New(store, embedder, dedup.NewResolver(0.96, nil), Options{Workers: 4}, nil)
	live := []spawner.Tool{sendEmail, emailSend, calendar}

	report, err := p.Run(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Embedded)
	assert.Equal(t, 1, report.Superseded)
	assert.Equal(t, 2, report.Committed)

	// The later tool in provider order survives.
	_, err = store.LookupTool(ctx, emailSend.Fingerprint(), testModel)
	assert.NoError(t, err)
	_, err = store.LookupTool(ctx, sendEmail.Fingerprint(), testModel)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The superseded tool is not embedded again.
	calls := embedder.callCount()
	report, err = p.Run(ctx, live)
	require.NoError(t, err)
	assert.Zero(t, report.Embedded)
	assert.Equal(t, calls, embedder.callCount())

	n, err := store.CountTools(ctx, testModel)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunEvictsIndexedNearDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := newToyEmbedder()
	p := New(store, embedder, nil, Options{}, nil)

	_, err := p.Run(ctx, []spawner.Tool{sendEmail, calendar})
	require.NoError(t, err)

	report, err := p.Run(ctx, []spawner.Tool{sendEmail, emailSend, calendar})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, 1, report.Evicted)
	assert.Equal(t, 1, report.Committed)

	_, err = store.LookupTool(ctx, sendEmail.Fingerprint(), testModel)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	tools, err := store.ListTools(ctx, testModel)
	require.NoError(t, err)
	names := []string{tools[0].Name, tools[1].Name}
	assert.ElementsMatch(t, []string{"cal__find_event", "mail__email_send"}, names)

	// Eviction leaves no orphan vectors.
	swept, err := store.SweepOrphanVectors(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)

	report, err = p.Run(ctx, []spawner.Tool{sendEmail, emailSend, calendar})
	require.NoError(t, err)
	assert.Zero(t, report.Embedded)
	assert.Zero(t, report.Evicted)
}

func TestRunIsolatesEmbeddingFailures(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := newToyEmbedder()
	embedder.fail[text(calendar)] = true
	p := New(store, embedder, nil, Options{Workers: 3}, nil)

	report, err := p.Run(ctx, []spawner.Tool{sendEmail, calendar, weather})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Embedded)
	assert.Equal(t, 2, report.Committed)

	// The failed tool is retried on the next run.
	delete(embedder.fail, text(calendar))
	report, err = p.Run(ctx, []spawner.Tool{sendEmail, calendar, weather})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, 1, report.Committed)
}

func TestRunStorageNotInitialized(t *testing.T) {
	store := storage.New(filepath.Join(t.TempDir(), "index.db"))
	p := New(store, newToyEmbedder(), nil, Options{}, nil)

	_, err := p.Run(context.Background(), []spawner.Tool{calendar})
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
}

func TestRunEmptyInput(t *testing.T) {
	p := New(newStore(t), newToyEmbedder(), nil, Options{}, nil)

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Discovered)
	assert.Zero(t, report.Committed)
}

func TestRunStaysIdempotentAfterSupersessionChain(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := newToyEmbedder()
	p := New(store, embedder, dedup.NewResolver(0.96, nil), Options{}, nil)

	// Near-duplicates arrive one run at a time.
	_, err := p.Run(ctx, []spawner.Tool{sendEmail})
	require.NoError(t, err)

	report, err := p.Run(ctx, []spawner.Tool{sendEmail, emailSend})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evicted)

	report, err = p.Run(ctx, []spawner.Tool{sendEmail, emailSend, deliver})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, 1, report.Evicted)

	calls := embedder.callCount()
	for range 3 {
		report, err = p.Run(ctx, []spawner.Tool{sendEmail, emailSend, deliver})
		require.NoError(t, err)
		assert.Zero(t, report.Embedded)
		assert.Zero(t, report.Evicted)
		assert.Equal(t, 3, report.Skipped)
	}
	assert.Equal(t, calls, embedder.callCount())

	tools, err := store.ListTools(ctx, testModel)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "mail__deliver_email", tools[0].Name)
}
