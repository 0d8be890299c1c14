package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

func TestNewID(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{6, 6},
		{12, 12},
		{0, 6},
		{-1, 6},
	}

	for _, tt := range tests {
		id, err := NewID(tt.length)
		require.NoError(t, err)
		assert.Len(t, id, tt.want)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected rune %q", r)
		}
	}
}

func TestNewIDIsRandom(t *testing.T) {
	seen := make(map[string]struct{})
	for range 200 {
		id, err := NewID(12)
		require.NoError(t, err)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func newLedger(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s := storage.New(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAdmitIssuesFreshID(t *testing.T) {
	a := NewAdmitter(newLedger(t), 6)

	adm, err := a.Admit(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, adm.FirstTime)
	assert.Len(t, adm.ID, 6)
}

func TestAdmitReplacesUnknownID(t *testing.T) {
	a := NewAdmitter(newLedger(t), 6)

	adm, err := a.Admit(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, adm.FirstTime)
	assert.NotEqual(t, "abc123", adm.ID)
}

func TestAdmitHonorsKnownSession(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	_, err := ledger.RecordRetrievals(ctx, "abc123", []storage.Retrieval{{Fingerprint: "fp", ToolName: "cal__find_event"}})
	require.NoError(t, err)

	adm, err := NewAdmitter(ledger, 6).Admit(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, adm.FirstTime)
	assert.Equal(t, "abc123", adm.ID)
}

type failingLedger struct{}

func (failingLedger) SessionStats(context.Context, string) (storage.SessionStats, error) {
	return storage.SessionStats{}, errors.New("disk on fire")
}

func TestAdmitPropagatesLedgerError(t *testing.T) {
	_, err := NewAdmitter(failingLedger{}, 6).Admit(context.Background(), "abc123")
	assert.Error(t, err)

	// No lookup happens without a supplied id.
	adm, err := NewAdmitter(failingLedger{}, 6).Admit(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, adm.FirstTime)
}

func TestAdmitDefaultLength(t *testing.T) {
	adm, err := NewAdmitter(newLedger(t), 0).Admit(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, adm.FirstTime)
	assert.Len(t, adm.ID, 6)
}
