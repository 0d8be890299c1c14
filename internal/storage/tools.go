package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/fingerprint"
	"github.com/khanglvm/tool-finder-mcp/internal/similarity"
)

// descriptorColumns is the SELECT column list for tool_descriptors aliased as d.
const descriptorColumns = `d.id, d.fingerprint, d.model, d.name, d.description, d.created_at, d.updated_at`

// UpsertTool inserts or updates a descriptor and points it at a new vector.
func (s *SQLiteStorage) UpsertTool(ctx context.Context, tool ToolVector) (int64, error) {
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

	id, err := s.upsertTx(ctx, tx, tool)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return id, nil
}

func (s *SQLiteStorage) upsertTx(ctx context.Context, tx *sql.Tx, tool ToolVector) (int64, error) {
	if tool.Model == "" {
		return 0, errors.New("embedding model is required")
	}
	if len(tool.Vector) == 0 {
		return 0, errors.New("embedding vector is empty")
	}

	var dims int
	err := tx.QueryRowContext(ctx, `
		SELECT v.dimensions
		FROM tool_vectors m JOIN embedding_vectors v ON v.id = m.vector_id
		WHERE m.model = ?
		LIMIT 1`, tool.Model,
	).Scan(&dims)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("failed to read model dimensions: %w", err)
	case dims != len(tool.Vector):
		return 0, fmt.Errorf("%w: model %s stores %d, got %d", ErrDimensionMismatch, tool.Model, dims, len(tool.Vector))
	}

	now := s.timestamp()
	fp := fingerprint.Compute(tool.Name, tool.Description)

	var toolID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM tool_descriptors WHERE fingerprint = ? AND model = ?`,
		fp, tool.Model,
	).Scan(&toolID)
	if errors.Is(err, sql.ErrNoRows) {
		res, insertErr := tx.ExecContext(ctx, `
			INSERT INTO tool_descriptors (fingerprint, model, name, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			fp, tool.Model, tool.Name, tool.Description, now, now,
		)
		if insertErr != nil {
			return 0, fmt.Errorf("failed to insert tool descriptor: %w", insertErr)
		}
		if toolID, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to get tool id: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("failed to look up tool descriptor: %w", err)
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tool_descriptors SET name = ?, description = ?, updated_at = ?
			WHERE id = ?`,
			tool.Name, tool.Description, now, toolID,
		); err != nil {
			return 0, fmt.Errorf("failed to update tool descriptor: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO embedding_vectors (model, dimensions, embedding, created_at)
		VALUES (?, ?, ?, ?)`,
		tool.Model, len(tool.Vector), similarity.Encode(tool.Vector), now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert embedding vector: %w", err)
	}
	vectorID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get vector id: %w", err)
	}

	// Re-pointing the mapping orphans the previous vector row.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tool_vectors (tool_id, model, vector_id) VALUES (?, ?, ?)
		ON CONFLICT (tool_id, model) DO UPDATE SET vector_id = excluded.vector_id`,
		toolID, tool.Model, vectorID,
	); err != nil {
		return 0, fmt.Errorf("failed to map tool vector: %w", err)
	}

	// A tool indexed again is no longer superseded.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM superseded_tools WHERE fingerprint = ? AND model = ?`,
		fp, tool.Model,
	); err != nil {
		return 0, fmt.Errorf("failed to clear supersession: %w", err)
	}

	return toolID, nil
}

// SearchNearest returns up to q.K live tools of q.Model whose similarity to
// q.Vector is at least q.MinSimilarity, ordered by ascending distance with
// ties broken by insertion order.
func (s *SQLiteStorage) SearchNearest(ctx context.Context, q SearchQuery) ([]ScoredTool, error) {
	db, release, err := s.readDB()
	if err != nil {
		return nil, err
	}
	defer release()

	if q.K <= 0 || len(q.Vector) == 0 {
		return []ScoredTool{}, nil
	}

	blob := similarity.Encode(q.Vector)
	var sb strings.Builder
	args := []any{blob, q.Model, len(q.Vector), q.MinSimilarity}

	sb.WriteString(`
		SELECT ` + descriptorColumns + `, s.embedding, s.distance
		FROM (
			SELECT m.tool_id, v.embedding, cosine_distance(v.embedding, ?) AS distance
			FROM tool_vectors m
			JOIN embedding_vectors v ON v.id = m.vector_id
			WHERE m.model = ? AND v.dimensions = ?
		) s
		JOIN tool_descriptors d ON d.id = s.tool_id
		WHERE (1 - s.distance) >= ?`)

	if q.ExcludeFingerprint != "" {
		sb.WriteString(` AND d.fingerprint <> ?`)
		args = append(args, q.ExcludeFingerprint)
	}

	if len(q.NamePrefixes) > 0 {
		clauses := make([]string, 0, len(q.NamePrefixes))
		for _, prefix := range q.NamePrefixes {
			clauses = append(clauses, `substr(d.name, 1, length(?)) = ?`)
			args = append(args, prefix, prefix)
		}
		sb.WriteString(` AND (` + strings.Join(clauses, " OR ") + `)`)
	}

	sb.WriteString(` ORDER BY s.distance ASC, d.id ASC LIMIT ?`)
	args = append(args, q.K)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search tools: %w", err)
	}
	defer rows.Close()

	results := []ScoredTool{}
	for rows.Next() {
		var (
			hit      ScoredTool
			stored   []byte
			distance float64
		)
		if err := scanDescriptor(rows, &hit.ToolDescriptor, &stored, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		hit.Similarity = 1 - distance
		hit.Vector = similarity.Decode(stored)
		results = append(results, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	return results, nil
}

// LookupTool returns the descriptor for (fingerprint, model).
func (s *SQLiteStorage) LookupTool(ctx context.Context, fp, model string) (*ToolDescriptor, error) {
	db, release, err := s.readDB()
	if err != nil {
		return nil, err
	}
	defer release()

	row := db.QueryRowContext(ctx, `
		SELECT `+descriptorColumns+`
		FROM tool_descriptors d
		WHERE d.fingerprint = ? AND d.model = ?`,
		fp, model,
	)

	var desc ToolDescriptor
	if err := scanDescriptor(row, &desc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tool %s under model %s: %w", fp, model, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up tool: %w", err)
	}
	return &desc, nil
}

// DeleteTool removes the descriptor, its mapping and its vector.
// An empty model deletes the fingerprint under every model.
func (s *SQLiteStorage) DeleteTool(ctx context.Context, fp, model string) (int, error) {
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

	n, err := deleteTx(ctx, tx, ToolKey{Fingerprint: fp, Model: model})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return n, nil
}

func deleteTx(ctx context.Context, tx *sql.Tx, key ToolKey) (int, error) {
	query := `SELECT d.id, m.vector_id FROM tool_descriptors d
		LEFT JOIN tool_vectors m ON m.tool_id = d.id
		WHERE d.fingerprint = ?`
	args := []any{key.Fingerprint}
	if key.Model != "" {
		query += ` AND d.model = ?`
		args = append(args, key.Model)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to find tools to delete: %w", err)
	}
	toolIDs := map[int64]struct{}{}
	var vectorIDs []int64
	for rows.Next() {
		var (
			toolID   int64
			vectorID sql.NullInt64
		)
		if err := rows.Scan(&toolID, &vectorID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan tool to delete: %w", err)
		}
		toolIDs[toolID] = struct{}{}
		if vectorID.Valid {
			vectorIDs = append(vectorIDs, vectorID.Int64)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate tools to delete: %w", err)
	}

	// Mappings go first so the vector rows are no longer referenced.
	for id := range toolIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tool_vectors WHERE tool_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete vector mapping: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tool_descriptors WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete tool descriptor: %w", err)
		}
	}
	for _, id := range vectorIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM embedding_vectors WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete vector: %w", err)
		}
	}

	return len(toolIDs), nil
}

// IsSuperseded reports whether (fingerprint, model) carries a supersession
// mark whose superseding descriptor is still indexed.
func (s *SQLiteStorage) IsSuperseded(ctx context.Context, fp, model string) (bool, error) {
	db, release, err := s.readDB()
	if err != nil {
		return false, err
	}
	defer release()

	var exists bool
	if err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM superseded_tools s
			JOIN tool_descriptors d ON d.fingerprint = s.superseded_by AND d.model = s.model
			WHERE s.fingerprint = ? AND s.model = ?)`,
		fp, model,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check supersession: %w", err)
	}
	return exists, nil
}

// CommitBatch deletes every superseded tool, upserts batch.Upserts and then
// records the supersession marks, all in one transaction. Marks that named an
// evicted tool are handed to the tool that evicted it. Nothing is applied if
// any statement fails.
func (s *SQLiteStorage) CommitBatch(ctx context.Context, batch Batch) (BatchResult, error) {
	var result BatchResult

	db, release, err := s.writeDB()
	if err != nil {
		return result, err
	}
	defer release()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	for _, sup := range batch.Supersede {
		n, err := deleteTx(ctx, tx, sup.ToolKey)
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to evict %s: %w", sup.Fingerprint, err)
		}
		result.Evicted += n
	}

	for _, tool := range batch.Upserts {
		if _, err := s.upsertTx(ctx, tx, tool); err != nil {
			return BatchResult{}, fmt.Errorf("failed to upsert %s: %w", tool.Name, err)
		}
		result.Upserted++
	}

	for _, sup := range batch.Supersede {
		if _, err := tx.ExecContext(ctx, `
			UPDATE superseded_tools SET superseded_by = ?
			WHERE superseded_by = ? AND model = ?`,
			sup.By, sup.Fingerprint, sup.Model,
		); err != nil {
			return BatchResult{}, fmt.Errorf("failed to re-point marks of %s: %w", sup.Fingerprint, err)
		}
	}

	// An indexed tool is never superseded, even if a chain pointed back at it.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM superseded_tools
		WHERE EXISTS (
			SELECT 1 FROM tool_descriptors d
			WHERE d.fingerprint = superseded_tools.fingerprint AND d.model = superseded_tools.model)`,
	); err != nil {
		return BatchResult{}, fmt.Errorf("failed to clear marks of indexed tools: %w", err)
	}

	now := s.timestamp()
	for _, sup := range batch.Supersede {
		// Marks whose superseding tool is not indexed are dropped.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO superseded_tools (fingerprint, model, name, superseded_by, created_at)
			SELECT ?, ?, ?, fingerprint, ? FROM tool_descriptors WHERE fingerprint = ? AND model = ?
			ON CONFLICT (fingerprint, model) DO UPDATE SET
				name = excluded.name, superseded_by = excluded.superseded_by`,
			sup.Fingerprint, sup.Model, sup.Name, now, sup.By, sup.Model,
		)
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to mark %s superseded: %w", sup.Fingerprint, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to count supersession: %w", err)
		}
		result.Superseded += int(n)
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("failed to commit batch: %w", err)
	}
	return result, nil
}

// SweepOrphanVectors deletes vector rows no longer referenced by a mapping.
func (s *SQLiteStorage) SweepOrphanVectors(ctx context.Context) (int, error) {
	db, release, err := s.writeDB()
	if err != nil {
		return 0, err
	}
	defer release()

	res, err := db.ExecContext(ctx, `
		DELETE FROM embedding_vectors
		WHERE id NOT IN (SELECT vector_id FROM tool_vectors)`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep orphan vectors: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept vectors: %w", err)
	}
	if n > 0 {
		s.logger.Debug("swept orphan vectors", zap.Int64("count", n))
	}
	return int(n), nil
}

// CountTools returns the number of descriptors under model, or under every
// model when model is empty.
func (s *SQLiteStorage) CountTools(ctx context.Context, model string) (int, error) {
	db, release, err := s.readDB()
	if err != nil {
		return 0, err
	}
	defer release()

	var n int
	query := `SELECT COUNT(*) FROM tool_descriptors`
	args := []any{}
	if model != "" {
		query += ` WHERE model = ?`
		args = append(args, model)
	}
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tools: %w", err)
	}
	return n, nil
}

// ListTools returns descriptors under model (all models when empty) in
// insertion order.
func (s *SQLiteStorage) ListTools(ctx context.Context, model string) ([]ToolDescriptor, error) {
	db, release, err := s.readDB()
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT ` + descriptorColumns + ` FROM tool_descriptors d`
	args := []any{}
	if model != "" {
		query += ` WHERE d.model = ?`
		args = append(args, model)
	}
	query += ` ORDER BY d.id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	tools := []ToolDescriptor{}
	for rows.Next() {
		var desc ToolDescriptor
		if err := scanDescriptor(rows, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		tools = append(tools, desc)
	}
	return tools, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanDescriptor scans descriptorColumns followed by any extra columns.
func scanDescriptor(row scanner, desc *ToolDescriptor, extra ...any) error {
	var created, updated string
	dest := append([]any{
		&desc.ID, &desc.Fingerprint, &desc.Model, &desc.Name, &desc.Description, &created, &updated,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	desc.CreatedAt = parseTime(created)
	desc.UpdatedAt = parseTime(updated)
	return nil
}
