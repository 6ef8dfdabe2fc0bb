package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a new snapshot. Returns ErrDuplicateKey if id exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.HoldingSnapshot) (err error) {
	if snap == nil || snap.ID == "" || snap.Account == "" {
		return storage.ErrInvalidInput
	}
	defer track("insert_snapshot")(&err)

	query := `
		INSERT INTO holding_snapshots (
			id, account, contract, block_number, balance, token_ids, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var block *int64
	if snap.BlockNumber != nil {
		b := int64(*snap.BlockNumber)
		block = &b
	}
	tokenIDs := snap.TokenIDs
	if tokenIDs == nil {
		tokenIDs = []string{}
	}

	_, err = s.pool.Exec(ctx, query,
		snap.ID,
		snap.Account,
		snap.Contract,
		block,
		snap.Balance,
		tokenIDs,
		snap.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert holding snapshot: %w", err)
	}
	return nil
}

// GetByID retrieves a snapshot by ID. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(ctx context.Context, id string) (snap *domain.HoldingSnapshot, err error) {
	defer track("get_snapshot")(&err)

	query := `
		SELECT id::text, account, contract, block_number, balance::text, token_ids, created_at
		FROM holding_snapshots
		WHERE id = $1
	`

	snap, err = scanSnapshot(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holding snapshot by id: %w", err)
	}
	return snap, nil
}

// ListByAccount retrieves the newest snapshots for an account.
func (s *SnapshotStore) ListByAccount(ctx context.Context, account string, limit int) (result []*domain.HoldingSnapshot, err error) {
	defer track("list_snapshots")(&err)

	query := `
		SELECT id::text, account, contract, block_number, balance::text, token_ids, created_at
		FROM holding_snapshots
		WHERE account = $1
		ORDER BY created_at DESC, id
	`
	args := []interface{}{account}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query holding snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holding snapshot: %w", err)
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holding snapshots: %w", err)
	}
	return result, nil
}

func scanSnapshot(row pgx.Row) (*domain.HoldingSnapshot, error) {
	var snap domain.HoldingSnapshot
	var block *int64
	err := row.Scan(
		&snap.ID,
		&snap.Account,
		&snap.Contract,
		&block,
		&snap.Balance,
		&snap.TokenIDs,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if block != nil {
		b := uint64(*block)
		snap.BlockNumber = &b
	}
	return &snap, nil
}
