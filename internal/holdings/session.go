package holdings

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/metadata"
	"nft-holdings/internal/observability"
)

var (
	// ErrResolutionInFlight is returned when a resolution for the same asset is outstanding.
	// The request is dropped, not queued.
	ErrResolutionInFlight = errors.New("metadata resolution already in flight")

	// ErrAssetNotFound is returned for an index that is not part of the session.
	ErrAssetNotFound = errors.New("no asset at index")
)

// ResolveError reports a failed metadata fetch or parse for one asset.
// The asset stays unresolved and may be retried.
type ResolveError struct {
	Index   int
	TokenID *big.Int
	URI     string
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve metadata for token %s (index %d): %v", e.TokenID, e.Index, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Session owns the assets of one published aggregation run together with
// the per-asset resolution state. Assets are keyed by enumeration index.
type Session struct {
	result     Result
	generation uint64
	published  time.Time
	fetcher    metadata.Fetcher
	logger     zerolog.Logger

	mu     sync.Mutex
	assets []domain.Asset
	pos    map[int]int // enumeration index -> position in assets
	states map[int]domain.ResolutionState
	errs   map[int]error
}

func newSession(res Result, generation uint64, fetcher metadata.Fetcher, logger zerolog.Logger) *Session {
	s := &Session{
		result:     res,
		generation: generation,
		published:  time.Now(),
		fetcher:    fetcher,
		logger:     logger,
		assets:     make([]domain.Asset, len(res.Assets)),
		pos:        make(map[int]int, len(res.Assets)),
		states:     make(map[int]domain.ResolutionState, len(res.Assets)),
		errs:       make(map[int]error),
	}
	for i, a := range res.Assets {
		s.assets[i] = a.Clone()
		s.pos[a.Index] = i
		s.states[a.Index] = domain.StateIdle
	}
	return s
}

// Account returns the account the session was built for.
func (s *Session) Account() common.Address { return s.result.Account }

// Balance returns the balance the run enumerated against.
func (s *Session) Balance() uint64 { return s.result.Balance }

// Generation returns the tracker generation that produced the session.
func (s *Session) Generation() uint64 { return s.generation }

// Result returns the run counters. Assets are not included; use Assets.
func (s *Session) Result() Result {
	r := s.result
	r.Assets = nil
	r.Skipped = append([]uint64(nil), s.result.Skipped...)
	return r
}

// Assets returns a copy of the assets in enumeration order.
func (s *Session) Assets() []domain.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Asset, len(s.assets))
	for i, a := range s.assets {
		out[i] = a.Clone()
	}
	return out
}

// State returns the resolution state of the asset at index.
func (s *Session) State(index int) (domain.ResolutionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[index]
	return st, ok
}

// Resolve fetches and attaches metadata for the asset at index.
//
// An asset with an empty URI, or one already resolved, is returned unchanged
// without a request. While a resolution is outstanding further calls return
// ErrResolutionInFlight. A fetch or parse failure returns *ResolveError and
// leaves the asset in the failed state, from which Resolve may be called again.
func (s *Session) Resolve(ctx context.Context, index int) (domain.Asset, error) {
	s.mu.Lock()
	p, ok := s.pos[index]
	if !ok {
		s.mu.Unlock()
		return domain.Asset{}, fmt.Errorf("%w: %d", ErrAssetNotFound, index)
	}
	asset := s.assets[p].Clone()
	if asset.URI == "" {
		s.mu.Unlock()
		return asset, nil
	}
	switch s.states[index] {
	case domain.StateResolved:
		s.mu.Unlock()
		return asset, nil
	case domain.StateResolving:
		s.mu.Unlock()
		observability.RecordMetadataResolution("suppressed")
		return asset, ErrResolutionInFlight
	}
	s.states[index] = domain.StateResolving
	delete(s.errs, index)
	s.mu.Unlock()

	md, err := s.fetch(ctx, asset.URI)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		rerr := &ResolveError{Index: index, TokenID: asset.TokenID, URI: asset.URI, Err: err}
		s.states[index] = domain.StateFailed
		s.errs[index] = rerr
		observability.RecordMetadataResolution("failed")
		s.logger.Warn().Err(err).
			Str("account", s.result.Account.Hex()).
			Int("index", index).
			Str("token_id", asset.TokenID.String()).
			Msg("metadata resolution failed")
		return asset, rerr
	}

	s.assets[p].Metadata = md
	s.states[index] = domain.StateResolved
	observability.RecordMetadataResolution("resolved")
	return s.assets[p].Clone(), nil
}

func (s *Session) fetch(ctx context.Context, uri string) (*domain.Metadata, error) {
	body, err := s.fetcher.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	return metadata.Parse(body)
}

// AssetView is one asset with its resolution state, for display.
type AssetView struct {
	Index    int                    `json:"index"`
	TokenID  string                 `json:"token_id"`
	URI      string                 `json:"uri"`
	Metadata *domain.Metadata       `json:"metadata,omitempty"`
	State    domain.ResolutionState `json:"state"`
	Error    string                 `json:"error,omitempty"`
}

// View is a consistent snapshot of a session for display.
type View struct {
	Account     string      `json:"account"`
	Balance     uint64      `json:"balance"`
	Generation  uint64      `json:"generation"`
	Assets      []AssetView `json:"assets"`
	Skipped     []uint64    `json:"skipped,omitempty"`
	URIFailures int         `json:"uri_failures"`
	DurationMs  int64       `json:"duration_ms"`
	PublishedAt time.Time   `json:"published_at"`
}

// View returns the assets, their states and last errors under one lock.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Account:     s.result.Account.Hex(),
		Balance:     s.result.Balance,
		Generation:  s.generation,
		Assets:      make([]AssetView, len(s.assets)),
		Skipped:     append([]uint64(nil), s.result.Skipped...),
		URIFailures: s.result.URIFailures,
		DurationMs:  s.result.Duration.Milliseconds(),
		PublishedAt: s.published,
	}
	for i, a := range s.assets {
		a = a.Clone()
		av := AssetView{
			Index:    a.Index,
			TokenID:  a.TokenID.String(),
			URI:      a.URI,
			Metadata: a.Metadata,
			State:    s.states[a.Index],
		}
		if err := s.errs[a.Index]; err != nil {
			av.Error = err.Error()
		}
		v.Assets[i] = av
	}
	return v
}
