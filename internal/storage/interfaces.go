package storage

import (
	"context"

	"nft-holdings/internal/domain"
)

// SnapshotStore provides access to holding_snapshots storage.
type SnapshotStore interface {
	// Insert adds a new snapshot. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, s *domain.HoldingSnapshot) error

	// GetByID retrieves a snapshot by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.HoldingSnapshot, error)

	// ListByAccount retrieves the newest snapshots for an account, ordered by created_at DESC.
	// limit <= 0 returns all.
	ListByAccount(ctx context.Context, account string, limit int) ([]*domain.HoldingSnapshot, error)
}

// RunStore provides access to aggregation_runs storage.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.AggregationRun) error

	// ListByAccount retrieves the newest runs for an account, ordered by completed_at DESC.
	// limit <= 0 returns all.
	ListByAccount(ctx context.Context, account string, limit int) ([]*domain.AggregationRun, error)
}
