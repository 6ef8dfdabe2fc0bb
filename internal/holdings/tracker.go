package holdings

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"nft-holdings/internal/metadata"
	"nft-holdings/internal/observability"
)

var (
	// ErrNoAccount is returned by Wait before the first Update.
	ErrNoAccount = errors.New("no account tracked")

	// ErrTrackerClosed is returned by Wait after Close.
	ErrTrackerClosed = errors.New("tracker closed")
)

// Run outcomes recorded in metrics.
const (
	outcomePublished  = "published"
	outcomeSuperseded = "superseded"
	outcomeFailed     = "failed"
)

// runKey identifies the (account, balance) pair a run enumerates against.
type runKey struct {
	account common.Address
	balance string
}

// run is one aggregation attempt. done is closed once session or err is set,
// or once the run is superseded.
type run struct {
	gen     uint64
	key     runKey
	cancel  context.CancelFunc
	done    chan struct{}
	session *Session
	err     error
}

// Tracker re-runs aggregation whenever the observed account or balance
// changes and publishes the result of the newest run only. A run that is
// superseded before it completes is cancelled and its result dropped.
type Tracker struct {
	agg     *Aggregator
	fetcher metadata.Fetcher
	logger  zerolog.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	gen     uint64
	latest  *run
	current *Session
	closed  bool
	subs    map[int]func(*Session)
	nextSub int

	// deliverMu serializes publication so subscribers see generations in order.
	deliverMu sync.Mutex
}

// TrackerOptions contains configuration for creating a Tracker.
type TrackerOptions struct {
	Aggregator *Aggregator
	Fetcher    metadata.Fetcher
	Logger     *zerolog.Logger
}

// NewTracker creates a new Tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Tracker{
		agg:     opts.Aggregator,
		fetcher: opts.Fetcher,
		logger:  logger,
		ctx:     ctx,
		stop:    stop,
		subs:    make(map[int]func(*Session)),
	}
}

// Update records the observed account and balance. A change of either
// supersedes any in-flight run and starts a new one. It reports whether a
// run was started.
func (t *Tracker) Update(account common.Address, balance *big.Int) bool {
	key := runKey{account: account}
	if balance != nil {
		key.balance = balance.String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if t.latest != nil && t.latest.key == key {
		return false
	}
	t.startLocked(key)
	return true
}

// Refresh reruns aggregation for the current pair even if nothing changed.
func (t *Tracker) Refresh() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.latest == nil {
		return false
	}
	t.startLocked(t.latest.key)
	return true
}

func (t *Tracker) startLocked(key runKey) {
	if prev := t.latest; prev != nil {
		select {
		case <-prev.done:
		default:
			prev.cancel()
			observability.RecordAggregationRun(outcomeSuperseded)
			t.logger.Debug().Uint64("generation", prev.gen).Msg("superseding in-flight run")
		}
	}

	t.gen++
	ctx, cancel := context.WithCancel(t.ctx)
	r := &run{
		gen:    t.gen,
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	// Nothing is shown for the new pair until its own run publishes.
	if t.current != nil && t.current.Account() != key.account {
		t.current = nil
	}
	t.latest = r

	t.wg.Add(1)
	go t.execute(ctx, r)
}

func (t *Tracker) execute(ctx context.Context, r *run) {
	defer t.wg.Done()
	defer r.cancel()

	var balance *big.Int
	if r.key.balance != "" {
		balance, _ = new(big.Int).SetString(r.key.balance, 10)
	}

	res, err := t.agg.Aggregate(ctx, r.key.account, balance)

	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	if t.latest != r {
		// Superseded: a newer run owns latest and will close its own done.
		t.mu.Unlock()
		close(r.done)
		return
	}
	if err != nil {
		r.err = err
		t.mu.Unlock()
		close(r.done)
		if ctx.Err() == nil {
			observability.RecordAggregationRun(outcomeFailed)
			t.logger.Error().Err(err).Str("account", r.key.account.Hex()).Msg("aggregation failed")
		}
		return
	}

	sess := newSession(res, r.gen, t.fetcher, t.logger)
	r.session = sess
	t.current = sess
	subs := make([]func(*Session), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()
	// Subscribers run before done is closed so Wait returns only after they saw the session.
	defer close(r.done)

	observability.RecordAggregationRun(outcomePublished)
	t.logger.Info().
		Str("account", r.key.account.Hex()).
		Uint64("generation", r.gen).
		Int("assets", len(res.Assets)).
		Int("skipped", len(res.Skipped)).
		Msg("holdings published")

	for _, fn := range subs {
		fn(sess)
	}
}

// Current returns the latest published session for the current pair, or nil
// while the pair's first run is still in flight.
func (t *Tracker) Current() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Subscribe registers fn to receive every published session in generation
// order. fn runs on the publishing goroutine before waiters are released; it
// must not call Wait and should not block for long.
// The returned func unsubscribes.
func (t *Tracker) Subscribe(fn func(*Session)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// Wait blocks until the newest run has published and returns its session.
// If the run is superseded while waiting, Wait follows the newer run.
func (t *Tracker) Wait(ctx context.Context) (*Session, error) {
	for {
		t.mu.Lock()
		r := t.latest
		closed := t.closed
		t.mu.Unlock()

		if closed {
			return nil, ErrTrackerClosed
		}
		if r == nil {
			return nil, ErrNoAccount
		}

		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		t.mu.Lock()
		superseded := t.latest != r
		closed = t.closed
		t.mu.Unlock()

		if closed {
			return nil, ErrTrackerClosed
		}
		if superseded {
			continue
		}
		return r.session, r.err
	}
}

// Close cancels any in-flight run and waits for it to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.stop()
	t.mu.Unlock()

	t.wg.Wait()
}
