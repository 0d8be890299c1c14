/*
Package storage implements the persistent index behind tool recommendation.

A single SQLite database holds three concerns:

  - the fingerprint and embedding store: tool descriptors keyed by
    (fingerprint, model), append-only embedding vectors, and the mapping that
    points each descriptor at its current vector;
  - the session retrieval ledger: which tool fingerprints each session has
    already been shown;
  - search history records used for analytics and retention cleanup.

The database lives at ~/.tool-finder-mcp/index.db by default and uses
modernc.org/sqlite (a pure Go, CGo-free implementation). Similarity search is
an exact scan driven by the cosine_distance SQL function registered on the
driver. Schema changes are goose migrations embedded in the binary.
*/
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotInitialized is returned by every operation before Init succeeds.
	ErrNotInitialized = errors.New("storage not initialized")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch is returned when a vector's dimension differs from
	// the dimension already stored for its model.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// timestampLayout sorts lexically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dsnPragmas are applied to every pooled connection.
const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// SQLiteStorage implements Storage on a SQLite database.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.RWMutex
	initOnce sync.Once
	initErr  error
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithLogger sets the logger used for migration and maintenance messages.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SQLiteStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// DefaultPath returns ~/.tool-finder-mcp/index.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tool-finder-mcp", "index.db"), nil
}

// New creates a storage instance for the database at dbPath.
// The database is not opened until Init is called.
func New(dbPath string, opts ...Option) *SQLiteStorage {
	s := &SQLiteStorage{
		dbPath: dbPath,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Init opens the database and applies migrations.
//
// Init is idempotent: later calls return the outcome of the first one. If it
// fails, every other operation keeps returning ErrNotInitialized.
func (s *SQLiteStorage) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.open(ctx)
		if s.initErr != nil {
			s.logger.Error("failed to initialize storage", zap.String("path", s.dbPath), zap.Error(s.initErr))
		}
	})
	return s.initErr
}

func (s *SQLiteStorage) open(ctx context.Context) error {
	if s.dbPath == "" {
		return errors.New("database path is empty")
	}

	if err := registerFunctions(); err != nil {
		return fmt.Errorf("failed to register sql functions: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath+dsnPragmas)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, db, s.logger); err != nil {
		_ = db.Close()
		return err
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

// Close closes the database connection. Closing twice is a no-op.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.db = nil
	return nil
}

// readDB acquires the read lock and returns the open handle.
// The caller must call the returned release function.
func (s *SQLiteStorage) readDB() (*sql.DB, func(), error) {
	s.mu.RLock()
	if s.db == nil {
		s.mu.RUnlock()
		return nil, nil, ErrNotInitialized
	}
	return s.db, s.mu.RUnlock, nil
}

// writeDB acquires the write lock and returns the open handle.
func (s *SQLiteStorage) writeDB() (*sql.DB, func(), error) {
	s.mu.Lock()
	if s.db == nil {
		s.mu.Unlock()
		return nil, nil, ErrNotInitialized
	}
	return s.db, s.mu.Unlock, nil
}

func (s *SQLiteStorage) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timestampLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func rollback(tx *sql.Tx) { _ = tx.Rollback() }

// HashQuery creates a SHA256 hash of a query string for privacy.
func HashQuery(query string) string {
	hash := sha256.Sum256([]byte(query))
	return hex.EncodeToString(hash[:])
}
