package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/distill"
)

// Get retrieves the value for key in the given namespace.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM distill_outputs WHERE namespace = $1 AND key = $2`,
		namespace, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, distill.ErrKeyNotFound
		}
		return nil, fmt.Errorf("distill/postgres: get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// GetAll returns every key-value pair in the namespace.
func (s *Store) GetAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM distill_outputs WHERE namespace = $1`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("distill/postgres: get all %s: %w", namespace, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("distill/postgres: scan %s: %w", namespace, err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distill/postgres: get all %s: %w", namespace, err)
	}
	return out, nil
}

// Upsert writes the given key-value pairs into the namespace.
func (s *Store) Upsert(ctx context.Context, namespace string, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for key, value := range values {
		batch.Queue(`
			INSERT INTO distill_outputs (namespace, key, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (namespace, key)
			DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			namespace, key, value,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range values {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("distill/postgres: upsert %s: %w", namespace, err)
		}
	}
	return nil
}

// FilterNew returns the keys not yet present in the namespace.
func (s *Store) FilterNew(ctx context.Context, namespace string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT key FROM distill_outputs WHERE namespace = $1 AND key = ANY($2)`,
		namespace, keys,
	)
	if err != nil {
		return nil, fmt.Errorf("distill/postgres: filter new %s: %w", namespace, err)
	}
	defer rows.Close()

	existing := make(map[string]struct{}, len(keys))
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("distill/postgres: scan %s: %w", namespace, err)
		}
		existing[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distill/postgres: filter new %s: %w", namespace, err)
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := existing[k]; !ok {
			out = append(out, k)
		}
	}
	return out, nil
}
