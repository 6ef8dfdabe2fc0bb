// Package holdings enumerates the tokens an account owns on one ERC-721
// Enumerable contract and resolves their metadata on demand.
package holdings

import (
	"context"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/observability"
)

// ErrBalanceOverflow is returned for a balance above the largest index an
// Asset can carry (math.MaxInt).
var ErrBalanceOverflow = errors.New("balance exceeds enumerable range")

var maxBalance = big.NewInt(math.MaxInt)

// TokenReader is the enumeration surface of the contract.
type TokenReader interface {
	TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error)
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
}

// BalanceReader reads an owner's token balance.
type BalanceReader interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Result is the outcome of one aggregation run.
type Result struct {
	Account     common.Address
	Balance     uint64
	Assets      []domain.Asset // enumeration order, metadata unset
	Skipped     []uint64       // indices whose enumeration failed
	URIFailures int
	Duration    time.Duration
}

// Aggregator builds the ordered asset list for an account.
type Aggregator struct {
	tokens TokenReader
	logger zerolog.Logger
}

// AggregatorOptions contains configuration for creating an Aggregator.
type AggregatorOptions struct {
	Tokens TokenReader
	Logger *zerolog.Logger
}

// NewAggregator creates a new Aggregator.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Aggregator{
		tokens: opts.Tokens,
		logger: logger,
	}
}

// Aggregate enumerates tokenOfOwnerByIndex(account, i) for i in [0, balance)
// one index at a time and reads tokenURI for each token found.
//
// A zero account or a nil, zero or negative balance yields an empty result
// without touching the chain. A failed enumeration drops that index; a failed
// URI read keeps the asset with an empty URI. The only errors returned are
// ErrBalanceOverflow and the context's error, in which case the partial
// result must be discarded.
func (a *Aggregator) Aggregate(ctx context.Context, account common.Address, balance *big.Int) (Result, error) {
	res := Result{Account: account}
	if account == (common.Address{}) || balance == nil || balance.Sign() <= 0 {
		return res, nil
	}
	if balance.Cmp(maxBalance) > 0 {
		return Result{}, ErrBalanceOverflow
	}

	start := time.Now()
	res.Balance = balance.Uint64()
	res.Assets = make([]domain.Asset, 0, min(res.Balance, 256))

	log := a.logger.With().Str("account", account.Hex()).Logger()

	for i := uint64(0); i < res.Balance; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		index := new(big.Int).SetUint64(i)
		tokenID, err := a.tokens.TokenOfOwnerByIndex(ctx, account, index)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			log.Warn().Err(err).Uint64("index", i).Msg("enumeration failed, skipping index")
			observability.RecordEnumerationSkip()
			res.Skipped = append(res.Skipped, i)
			continue
		}

		uri, err := a.tokens.TokenURI(ctx, tokenID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			log.Warn().Err(err).Uint64("index", i).Str("token_id", tokenID.String()).Msg("tokenURI failed, keeping asset without uri")
			observability.RecordURIFailure()
			res.URIFailures++
			uri = ""
		}

		res.Assets = append(res.Assets, domain.Asset{
			Index:   int(i),
			TokenID: tokenID,
			URI:     uri,
		})
	}

	res.Duration = time.Since(start)
	observability.RecordAggregationCompleted(res.Duration.Seconds(), len(res.Assets))
	log.Debug().
		Uint64("balance", res.Balance).
		Int("assets", len(res.Assets)).
		Int("skipped", len(res.Skipped)).
		Dur("duration", res.Duration).
		Msg("aggregation complete")

	return res, nil
}
