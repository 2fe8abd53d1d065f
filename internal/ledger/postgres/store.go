package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kozaktomas/face-align/internal/ledger"
	"github.com/kozaktomas/face-align/internal/transform"
)

// Store implements ledger.Store on the transform_records table.
type Store struct {
	pool *Pool
}

var _ ledger.Store = (*Store)(nil)

// NewStore creates a store on an already migrated pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) Put(ctx context.Context, rec ledger.Record) (bool, error) {
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	// xmax is 0 for a freshly inserted row and non-zero when the row was updated
	var inserted bool
	err := s.pool.db.QueryRowContext(ctx, `
		INSERT INTO transform_records (key, matrix, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET matrix = EXCLUDED.matrix, recorded_at = EXCLUDED.recorded_at
		RETURNING (xmax = 0)
	`, rec.Key, pq.Array(rec.Matrix.Flat()), recordedAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert transform record: %w", err)
	}
	return !inserted, nil
}

func (s *Store) Get(ctx context.Context, key string) (ledger.Record, error) {
	var (
		coeffs pq.Float64Array
		rec    = ledger.Record{Key: key}
	)
	err := s.pool.db.QueryRowContext(ctx,
		"SELECT matrix, recorded_at FROM transform_records WHERE key = $1", key,
	).Scan(&coeffs, &rec.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, key)
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("get transform record: %w", err)
	}

	m, err := transform.FromFlat(coeffs)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("decode transform record %s: %w", key, err)
	}
	rec.Matrix = m
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"DELETE FROM transform_records WHERE key = ANY($1) RETURNING key", pq.Array(keys))
	if err != nil {
		return fmt.Errorf("delete transform records: %w", err)
	}
	deleted := make(map[string]bool, len(keys))
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return fmt.Errorf("scan deleted key: %w", err)
		}
		deleted[key] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate deleted keys: %w", err)
	}

	for _, key := range keys {
		if !deleted[key] {
			return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, key)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.db.QueryContext(ctx, "SELECT key FROM transform_records ORDER BY key COLLATE \"C\"")
	if err != nil {
		return nil, fmt.Errorf("query transform keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan transform key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transform keys: %w", err)
	}
	return keys, nil
}

// SaveBatch stores an integrated batch. It has the ledger.BatchSink signature.
func (s *Store) SaveBatch(ctx context.Context, b *ledger.Batch) error {
	coeffs := make([]float64, 0, b.Len()*9)
	for _, m := range b.Matrices {
		coeffs = append(coeffs, m.Flat()...)
	}
	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO transform_batches (id, keys, matrices, created_at)
		VALUES ($1, $2, $3, $4)
	`, b.ID.String(), pq.Array(b.Keys), pq.Array(coeffs), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transform batch: %w", err)
	}
	return nil
}

// LoadBatch returns a batch previously stored with SaveBatch.
func (s *Store) LoadBatch(ctx context.Context, id uuid.UUID) (*ledger.Batch, error) {
	var (
		keys   pq.StringArray
		coeffs pq.Float64Array
		b      = &ledger.Batch{ID: id}
	)
	err := s.pool.db.QueryRowContext(ctx,
		"SELECT keys, matrices, created_at FROM transform_batches WHERE id = $1", id.String(),
	).Scan(&keys, &coeffs, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transform batch %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transform batch: %w", err)
	}
	if len(coeffs) != len(keys)*9 {
		return nil, fmt.Errorf("%w: batch %s has %d coefficients for %d keys", ledger.ErrLengthMismatch, id, len(coeffs), len(keys))
	}

	b.Keys = keys
	b.Matrices = make([]transform.Matrix, len(keys))
	for i := range keys {
		m, err := transform.FromFlat(coeffs[i*9 : (i+1)*9])
		if err != nil {
			return nil, fmt.Errorf("decode batch matrix %d: %w", i, err)
		}
		b.Matrices[i] = m
	}
	return b, nil
}
