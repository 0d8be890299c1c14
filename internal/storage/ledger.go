package storage

import (
	"context"
	"fmt"
)

// SessionHistory returns a session's ledger entries, most recent first.
// Entries recorded in the same instant keep reverse insertion order.
func (s *SQLiteStorage) SessionHistory(ctx context.Context, sessionID string) ([]LedgerEntry, error) {
	db, release, err := s.readDB()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.QueryContext(ctx, `
		SELECT session_id, fingerprint, tool_name, retrieved_at
		FROM session_ledger
		WHERE session_id = ?
		ORDER BY retrieved_at DESC, rowid DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %w", err)
	}
	defer rows.Close()

	entries := []LedgerEntry{}
	for rows.Next() {
		var (
			entry       LedgerEntry
			retrievedAt string
		)
		if err := rows.Scan(&entry.SessionID, &entry.Fingerprint, &entry.ToolName, &retrievedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.RetrievedAt = parseTime(retrievedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session history: %w", err)
	}

	return entries, nil
}

// HasSeen reports whether the session has been shown the fingerprint.
func (s *SQLiteStorage) HasSeen(ctx context.Context, sessionID, fp string) (bool, error) {
	db, release, err := s.readDB()
	if err != nil {
		return false, err
	}
	defer release()

	var exists bool
	err = db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM session_ledger WHERE session_id = ? AND fingerprint = ?)`,
		sessionID, fp,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return exists, nil
}

// RecordRetrievals inserts ledger entries in one transaction. Entries the
// session already has are left untouched, so recording is idempotent.
func (s *SQLiteStorage) RecordRetrievals(ctx context.Context, sessionID string, items []Retrieval) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	db, release, err := s.writeDB()
	if err != nil {
		return 0, err
	}
	defer release()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_ledger (session_id, fingerprint, tool_name, retrieved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, fingerprint) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	now := s.timestamp()
	inserted := 0
	for _, item := range items {
		res, err := stmt.ExecContext(ctx, sessionID, item.Fingerprint, item.ToolName, now)
		if err != nil {
			return 0, fmt.Errorf("failed to record retrieval of %s: %w", item.ToolName, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count recorded retrievals: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit retrievals: %w", err)
	}
	return inserted, nil
}

// ClearSession deletes every ledger entry of the session.
func (s *SQLiteStorage) ClearSession(ctx context.Context, sessionID string) (int, error) {
	db, release, err := s.writeDB()
	if err != nil {
		return 0, err
	}
	defer release()

	res, err := db.ExecContext(ctx, `DELETE FROM session_ledger WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared entries: %w", err)
	}
	return int(n), nil
}

// SessionStats summarizes a session. Unknown sessions report a zero count.
func (s *SQLiteStorage) SessionStats(ctx context.Context, sessionID string) (SessionStats, error) {
	stats := SessionStats{SessionID: sessionID}

	db, release, err := s.readDB()
	if err != nil {
		return stats, err
	}
	defer release()

	var first, last *string
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(retrieved_at), MAX(retrieved_at)
		FROM session_ledger WHERE session_id = ?`,
		sessionID,
	).Scan(&stats.Count, &first, &last)
	if err != nil {
		return stats, fmt.Errorf("failed to read session stats: %w", err)
	}

	if first != nil {
		stats.FirstRetrievedAt = parseTime(*first)
	}
	if last != nil {
		stats.LastRetrievedAt = parseTime(*last)
	}
	return stats, nil
}

// ListSessions summarizes every session in the ledger, most recently active first.
func (s *SQLiteStorage) ListSessions(ctx context.Context) ([]SessionStats, error) {
	db, release, err := s.readDB()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MIN(retrieved_at), MAX(retrieved_at)
		FROM session_ledger
		GROUP BY session_id
		ORDER BY MAX(retrieved_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionStats{}
	for rows.Next() {
		var (
			stats       SessionStats
			first, last string
		)
		if err := rows.Scan(&stats.SessionID, &stats.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		stats.FirstRetrievedAt = parseTime(first)
		stats.LastRetrievedAt = parseTime(last)
		sessions = append(sessions, stats)
	}
	return sessions, rows.Err()
}
