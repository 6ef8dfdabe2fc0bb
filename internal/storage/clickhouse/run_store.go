package clickhouse

import (
	"context"
	"fmt"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/storage"
)

// RunStore implements storage.RunStore using ClickHouse.
type RunStore struct {
	conn *Conn
}

// NewRunStore creates a new RunStore.
func NewRunStore(conn *Conn) *RunStore {
	return &RunStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.AggregationRun) (err error) {
	if r == nil || r.RunID == "" || r.Account == "" {
		return storage.ErrInvalidInput
	}
	defer track("insert_run")(&err)

	// MergeTree does not enforce uniqueness; check explicitly for append-only semantics
	exists, err := s.exists(ctx, r.RunID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO aggregation_runs (
			run_id, account, contract, balance,
			asset_count, skipped, uri_failures, duration_ms, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		r.RunID, r.Account, r.Contract, r.Balance,
		r.AssetCount, r.Skipped, r.URIFailures, r.DurationMs, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert aggregation run: %w", err)
	}
	return nil
}

// ListByAccount retrieves the newest runs for an account.
func (s *RunStore) ListByAccount(ctx context.Context, account string, limit int) (runs []*domain.AggregationRun, err error) {
	defer track("list_runs")(&err)

	query := `
		SELECT
			run_id, account, contract, balance,
			asset_count, skipped, uri_failures, duration_ms, completed_at
		FROM aggregation_runs
		WHERE account = ?
		ORDER BY completed_at DESC, run_id ASC
	`
	args := []interface{}{account}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by account: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func (s *RunStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM aggregation_runs WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanRuns(rows chRows) ([]*domain.AggregationRun, error) {
	var runs []*domain.AggregationRun

	for rows.Next() {
		var r domain.AggregationRun
		err := rows.Scan(
			&r.RunID, &r.Account, &r.Contract, &r.Balance,
			&r.AssetCount, &r.Skipped, &r.URIFailures, &r.DurationMs, &r.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}
