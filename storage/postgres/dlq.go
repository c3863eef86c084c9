package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/distill"
	"github.com/xraph/distill/dlq"
	"github.com/xraph/distill/id"
)

// PushDLQ adds a dead-lettered job entry to the queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	chunks, err := json.Marshal(entry.Chunks)
	if err != nil {
		return fmt.Errorf("distill/postgres: marshal dlq chunks: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO distill_dlq (
			id, job_id, doc_id, attempts, chunks,
			failed_at, replayed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID.String(), entry.JobID.String(), entry.DocID,
		entry.Attempts, chunks,
		entry.FailedAt, entry.ReplayedAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("distill/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `
		SELECT id, job_id, doc_id, attempts, chunks,
		       failed_at, replayed_at, created_at
		FROM distill_dlq
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.DocID != "" {
		query += fmt.Sprintf(" AND doc_id = $%d", argIdx)
		args = append(args, opts.DocID)
		argIdx++
	}

	query += " ORDER BY failed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("distill/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distill/postgres: list dlq: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, doc_id, attempts, chunks,
		       failed_at, replayed_at, created_at
		FROM distill_dlq
		WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("distill/postgres: get dlq: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("distill/postgres: get dlq: %w", err)
		}
		return nil, distill.ErrDLQNotFound
	}
	return scanDLQEntry(rows)
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE distill_dlq
		SET replayed_at = NOW()
		WHERE id = $1 AND replayed_at IS NULL`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("distill/postgres: replay dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from already replayed.
		var exists bool
		err = s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM distill_dlq WHERE id = $1)`,
			entryID.String(),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("distill/postgres: replay dlq exists: %w", err)
		}
		if !exists {
			return distill.ErrDLQNotFound
		}
		return distill.ErrAlreadyReplayed
	}
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM distill_dlq WHERE failed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("distill/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM distill_dlq`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("distill/postgres: count dlq: %w", err)
	}
	return count, nil
}

func scanDLQEntry(rows pgx.Rows) (*dlq.Entry, error) {
	var (
		idStr, jobIDStr string
		e               dlq.Entry
		chunks          []byte
	)
	if err := rows.Scan(&idStr, &jobIDStr, &e.DocID, &e.Attempts, &chunks,
		&e.FailedAt, &e.ReplayedAt, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("distill/postgres: scan dlq entry: %w", err)
	}

	eID, err := id.ParseDLQID(idStr)
	if err != nil {
		return nil, fmt.Errorf("distill/postgres: parse dlq id: %w", err)
	}
	e.ID = eID
	e.JobID, _ = id.ParseJobID(jobIDStr) //nolint:errcheck // best-effort parse from trusted rows

	if err := json.Unmarshal(chunks, &e.Chunks); err != nil {
		return nil, fmt.Errorf("distill/postgres: unmarshal dlq chunks: %w", err)
	}
	return &e, nil
}
