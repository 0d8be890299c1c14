package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RecordSearches persists a batch of search records in one transaction.
func (s *SQLiteStorage) RecordSearches(ctx context.Context, records []SearchRecord) error {
	if len(records) == 0 {
		return nil
	}

	db, release, err := s.writeDB()
	if err != nil {
		return err
	}
	defer release()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	for _, r := range records {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_history (search_id, session_id, query_hash, results_count, new_count, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.SearchID, r.SessionID, r.QueryHash, r.ResultsCount, r.NewCount, formatTime(ts),
		); err != nil {
			return fmt.Errorf("failed to record search %s: %w", r.SearchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit search records: %w", err)
	}
	return nil
}

// CountSearches returns the number of search records for a session, or for
// all sessions when sessionID is empty.
func (s *SQLiteStorage) CountSearches(ctx context.Context, sessionID string) (int, error) {
	db, release, err := s.readDB()
	if err != nil {
		return 0, err
	}
	defer release()

	query := `SELECT COUNT(*) FROM search_history`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}

	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count searches: %w", err)
	}
	return n, nil
}

// Cleanup removes search records older than retention and compacts the file.
func (s *SQLiteStorage) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	db, release, err := s.writeDB()
	if err != nil {
		return 0, err
	}
	defer release()

	cutoff := formatTime(s.now().Add(-retention))

	res, err := db.ExecContext(ctx, `DELETE FROM search_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up search history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed searches: %w", err)
	}

	// Vacuum to reclaim space
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		s.logger.Warn("failed to vacuum database", zap.Error(err))
	}

	return int(n), nil
}
