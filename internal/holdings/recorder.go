package holdings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/storage"
)

// BlockNumberer reports the current chain head.
type BlockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Recorder appends a history record for each published session. History is
// write-only from the aggregator's point of view.
type Recorder struct {
	snapshots storage.SnapshotStore
	runs      storage.RunStore
	blocks    BlockNumberer
	contract  string
	timeout   time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// RecorderOptions contains configuration for creating a Recorder.
type RecorderOptions struct {
	Snapshots storage.SnapshotStore // optional
	Runs      storage.RunStore      // optional
	Blocks    BlockNumberer         // optional
	Contract  string
	Timeout   time.Duration // per Observe call, default 10s
	Logger    *zerolog.Logger
}

// NewRecorder creates a new Recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Recorder{
		snapshots: opts.Snapshots,
		runs:      opts.Runs,
		blocks:    opts.Blocks,
		contract:  opts.Contract,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger,
	}
}

// Observe is a Tracker subscriber. Failures are logged, never returned.
func (r *Recorder) Observe(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.Record(ctx, s); err != nil {
		r.logger.Warn().Err(err).Str("account", s.Account().Hex()).Msg("record holdings history failed")
	}
}

// Record writes the snapshot and run rows for s.
func (r *Recorder) Record(ctx context.Context, s *Session) error {
	res := s.Result()
	assets := s.Assets()
	now := r.now().UnixMilli()
	account := s.Account().Hex()

	if r.snapshots != nil {
		snap := &domain.HoldingSnapshot{
			ID:        uuid.NewString(),
			Account:   account,
			Contract:  r.contract,
			Balance:   fmt.Sprintf("%d", res.Balance),
			TokenIDs:  make([]string, len(assets)),
			CreatedAt: now,
		}
		for i, a := range assets {
			snap.TokenIDs[i] = a.TokenID.String()
		}
		if r.blocks != nil {
			if bn, err := r.blocks.BlockNumber(ctx); err == nil {
				snap.BlockNumber = &bn
			} else {
				r.logger.Debug().Err(err).Msg("block number unavailable for snapshot")
			}
		}
		if err := r.snapshots.Insert(ctx, snap); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
	}

	if r.runs != nil {
		run := &domain.AggregationRun{
			RunID:       uuid.NewString(),
			Account:     account,
			Contract:    r.contract,
			Balance:     res.Balance,
			AssetCount:  uint32(len(assets)),
			Skipped:     uint32(len(res.Skipped)),
			URIFailures: uint32(res.URIFailures),
			DurationMs:  uint64(res.Duration.Milliseconds()),
			CompletedAt: now,
		}
		if err := r.runs.Insert(ctx, run); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
	}

	return nil
}
