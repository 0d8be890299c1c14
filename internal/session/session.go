/*
Package session issues session ids and decides whether a caller-supplied id
names a real session.

A session exists only through its ledger entries: an id the ledger has never
recorded anything for is not honored, and the caller gets a fresh one.
*/
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

// Alphabet is the character set of generated ids.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Ledger is the part of the session ledger admission needs.
type Ledger interface {
	SessionStats(ctx context.Context, sessionID string) (storage.SessionStats, error)
}

// NewID returns a crypto-random id of length characters drawn from Alphabet.
// A non-positive length uses the configured default.
func NewID(length int) (string, error) {
	if length <= 0 {
		length = config.DefaultSessionIDLength
	}

	limit := big.NewInt(int64(len(Alphabet)))
	id := make([]byte, length)
	for i := range id {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate session id: %w", err)
		}
		id[i] = Alphabet[n.Int64()]
	}
	return string(id), nil
}

// Admission is the outcome of Admit.
type Admission struct {
	// ID is the session id to use for the interaction.
	ID string

	// FirstTime is set when ID was freshly issued.
	FirstTime bool
}

// Admitter applies the admission rule with a fixed id length.
type Admitter struct {
	ledger Ledger
	length int
}

// NewAdmitter creates an admitter issuing ids of length characters.
func NewAdmitter(ledger Ledger, length int) *Admitter {
	return &Admitter{ledger: ledger, length: length}
}

// Admit honors supplied only when the ledger holds entries for it. An empty
// or history-less id is replaced with a fresh one and flagged first-time.
func (a *Admitter) Admit(ctx context.Context, supplied string) (Admission, error) {
	if supplied != "" {
		stats, err := a.ledger.SessionStats(ctx, supplied)
		if err != nil {
			return Admission{}, fmt.Errorf("failed to read session %s: %w", supplied, err)
		}
		if stats.Count > 0 {
			return Admission{ID: supplied}, nil
		}
	}

	for {
		id, err := NewID(a.length)
		if err != nil {
			return Admission{}, err
		}
		// A fresh id must not collide with the rejected one.
		if id != supplied {
			return Admission{ID: id, FirstTime: true}, nil
		}
	}
}
