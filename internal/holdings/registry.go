package holdings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"nft-holdings/internal/metadata"
	"nft-holdings/internal/observability"
)

// DefaultIdleTTL is how long an untouched tracker is kept.
const DefaultIdleTTL = 15 * time.Minute

type registryEntry struct {
	tracker  *Tracker
	lastUsed time.Time
}

// Registry keeps one Tracker per account for request-driven callers.
type Registry struct {
	aggregator  *Aggregator
	balances    BalanceReader
	fetcher     metadata.Fetcher
	subscribers []func(*Session)
	idleTTL     time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	mu      sync.Mutex
	entries map[common.Address]*registryEntry
}

// RegistryOptions contains configuration for creating a Registry.
type RegistryOptions struct {
	Aggregator *Aggregator
	Balances   BalanceReader
	Fetcher    metadata.Fetcher
	// Subscribers are attached to every tracker the registry creates.
	Subscribers []func(*Session)
	IdleTTL     time.Duration
	Logger      *zerolog.Logger
}

// NewRegistry creates a new Registry.
func NewRegistry(opts RegistryOptions) *Registry {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	ttl := opts.IdleTTL
	if ttl == 0 {
		ttl = DefaultIdleTTL
	}
	return &Registry{
		aggregator:  opts.Aggregator,
		balances:    opts.Balances,
		fetcher:     opts.Fetcher,
		subscribers: opts.Subscribers,
		idleTTL:     ttl,
		now:         time.Now,
		logger:      logger,
		entries:     make(map[common.Address]*registryEntry),
	}
}

// Sync reads the account's balance, feeds it to the account's tracker and
// waits for the newest run. An unchanged balance returns the existing session.
func (r *Registry) Sync(ctx context.Context, account common.Address) (*Session, error) {
	balance, err := r.balances.BalanceOf(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}

	tr := r.tracker(account)
	tr.Update(account, balance)
	return tr.Wait(ctx)
}

// Refresh rereads the balance and forces a new run even if nothing changed.
func (r *Registry) Refresh(ctx context.Context, account common.Address) (*Session, error) {
	balance, err := r.balances.BalanceOf(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}

	tr := r.tracker(account)
	if !tr.Update(account, balance) {
		tr.Refresh()
	}
	return tr.Wait(ctx)
}

// Poll rereads the balance of every tracked account and starts a new run
// where it changed. It does not wait for the runs and returns how many started.
func (r *Registry) Poll(ctx context.Context) int {
	r.mu.Lock()
	accounts := make([]common.Address, 0, len(r.entries))
	trackers := make([]*Tracker, 0, len(r.entries))
	for account, e := range r.entries {
		accounts = append(accounts, account)
		trackers = append(trackers, e.tracker)
	}
	r.mu.Unlock()

	started := 0
	for i, account := range accounts {
		balance, err := r.balances.BalanceOf(ctx, account)
		if err != nil {
			if ctx.Err() != nil {
				return started
			}
			r.logger.Warn().Err(err).Str("account", account.Hex()).Msg("balance read failed")
			continue
		}
		if trackers[i].Update(account, balance) {
			started++
		}
	}
	return started
}

// Session returns the account's published session, if any.
func (r *Registry) Session(account common.Address) (*Session, bool) {
	r.mu.Lock()
	e, ok := r.entries[account]
	if ok {
		e.lastUsed = r.now()
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	sess := e.tracker.Current()
	return sess, sess != nil
}

// Len returns the number of tracked accounts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) tracker(account common.Address) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[account]; ok {
		e.lastUsed = r.now()
		return e.tracker
	}

	tr := NewTracker(TrackerOptions{
		Aggregator: r.aggregator,
		Fetcher:    r.fetcher,
		Logger:     &r.logger,
	})
	for _, fn := range r.subscribers {
		tr.Subscribe(fn)
	}
	r.entries[account] = &registryEntry{tracker: tr, lastUsed: r.now()}
	observability.SetTrackedAccounts(len(r.entries))
	return tr
}

// Prune closes trackers idle for longer than the TTL and returns how many were removed.
func (r *Registry) Prune() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Tracker
	for account, e := range r.entries {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e.tracker)
			delete(r.entries, account)
		}
	}
	observability.SetTrackedAccounts(len(r.entries))
	r.mu.Unlock()

	for _, tr := range idle {
		tr.Close()
	}
	if len(idle) > 0 {
		r.logger.Debug().Int("pruned", len(idle)).Msg("pruned idle trackers")
	}
	return len(idle)
}

// Run prunes idle trackers periodically until ctx is cancelled, then closes all.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return ctx.Err()
		case <-ticker.C:
			r.Prune()
		}
	}
}

// Close closes every tracker.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[common.Address]*registryEntry)
	observability.SetTrackedAccounts(0)
	r.mu.Unlock()

	for _, e := range entries {
		e.tracker.Close()
	}
}
