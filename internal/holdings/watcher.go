package holdings

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"nft-holdings/internal/evm"
)

// DefaultPollInterval is used when neither heads nor an interval are configured.
const DefaultPollInterval = 12 * time.Second

// Watcher drives a Tracker from chain state: on every new head or poll tick
// it reads balanceOf(account) and feeds the pair to the tracker.
type Watcher struct {
	balances     BalanceReader
	tracker      *Tracker
	heads        evm.HeadSubscriber
	pollInterval time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	account common.Address
	trigger chan struct{}
}

// WatcherOptions contains configuration for creating a Watcher.
type WatcherOptions struct {
	Balances BalanceReader
	Tracker  *Tracker
	Account  common.Address
	// Heads is optional. Without it the watcher polls.
	Heads evm.HeadSubscriber
	// PollInterval also applies as a fallback when Heads is set. Zero disables
	// polling when Heads is set and means DefaultPollInterval otherwise.
	PollInterval time.Duration
	Logger       *zerolog.Logger
}

// NewWatcher creates a new Watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	interval := opts.PollInterval
	if interval == 0 && opts.Heads == nil {
		interval = DefaultPollInterval
	}
	return &Watcher{
		balances:     opts.Balances,
		tracker:      opts.Tracker,
		heads:        opts.Heads,
		pollInterval: interval,
		logger:       logger,
		account:      opts.Account,
		trigger:      make(chan struct{}, 1),
	}
}

// SetAccount switches the watched account and triggers an immediate check.
func (w *Watcher) SetAccount(account common.Address) {
	w.mu.Lock()
	w.account = account
	w.mu.Unlock()

	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Account returns the watched account.
func (w *Watcher) Account() common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.account
}

// Run checks once immediately, then on every head, tick or account switch.
// It blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var heads <-chan evm.Head
	if w.heads != nil {
		ch, err := w.heads.SubscribeNewHeads(ctx)
		if err != nil {
			w.logger.Warn().Err(err).Msg("head subscription failed, polling only")
			if w.pollInterval == 0 {
				w.pollInterval = DefaultPollInterval
			}
		} else {
			heads = ch
			w.logger.Info().Msg("subscribed to new heads")
		}
	}

	var tick <-chan time.Time
	if w.pollInterval > 0 {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case head, ok := <-heads:
			if !ok {
				heads = nil
				w.logger.Warn().Msg("head subscription closed")
				if tick == nil {
					ticker := time.NewTicker(DefaultPollInterval)
					defer ticker.Stop()
					tick = ticker.C
				}
				continue
			}
			w.logger.Debug().Uint64("block", head.Number).Msg("new head")
			w.check(ctx)
		case <-tick:
			w.check(ctx)
		case <-w.trigger:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	account := w.Account()
	if account == (common.Address{}) {
		w.tracker.Update(account, nil)
		return
	}

	balance, err := w.balances.BalanceOf(ctx, account)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn().Err(err).Str("account", account.Hex()).Msg("balance read failed")
		}
		return
	}
	if w.Account() != account {
		// Switched while reading; the pending trigger checks the new account.
		return
	}

	if w.tracker.Update(account, balance) {
		w.logger.Debug().Str("account", account.Hex()).Str("balance", balance.String()).Msg("holdings changed")
	}
}
