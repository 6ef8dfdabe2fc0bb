package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"nft-holdings/internal/domain"
)

// ErrInvalidQuantity is returned by Quote for a quantity below one.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// NFT binds a Reader to one deployed fee NFT contract.
type NFT struct {
	reader  Reader
	address common.Address
	logger  zerolog.Logger
}

// NFTOption configures NFT.
type NFTOption func(*NFT)

// WithLogger sets the logger used for per-view failures.
func WithLogger(l zerolog.Logger) NFTOption {
	return func(n *NFT) {
		n.logger = l
	}
}

// NewNFT creates an NFT bound to address.
func NewNFT(reader Reader, address common.Address, opts ...NFTOption) *NFT {
	n := &NFT{
		reader:  reader,
		address: address,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Address returns the bound contract address.
func (n *NFT) Address() common.Address {
	return n.address
}

// BalanceOf returns the number of tokens owned by owner.
func (n *NFT) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return n.uint256(ctx, "balanceOf", owner)
}

// TokenOfOwnerByIndex returns the token id at the given enumeration index.
func (n *NFT) TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error) {
	return n.uint256(ctx, "tokenOfOwnerByIndex", owner, index)
}

// TokenURI returns the metadata uri of tokenID.
func (n *NFT) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	out, err := n.reader.Call(ctx, n.address, "tokenURI", tokenID)
	if err != nil {
		return "", err
	}
	return firstString("tokenURI", out)
}

// Stats reads the dashboard views. A failing view leaves its field nil.
// When user is non-nil the per-user fee views are read too.
func (n *NFT) Stats(ctx context.Context, user *common.Address) (*domain.ContractStats, error) {
	stats := &domain.ContractStats{Contract: n.address.Hex()}

	uints := []struct {
		method string
		dst    **big.Int
	}{
		{"nftTotalSupply", &stats.TotalSupply},
		{"nftMaxSupply", &stats.MaxSupply},
		{"nftMintPriceEth", &stats.MintPriceETH},
		{"nftMintPriceUsdc", &stats.MintPriceUSDC},
		{"totalEthFees", &stats.TotalETHFees},
		{"totalUsdcFees", &stats.TotalUSDCFees},
		{"getEthBalance", &stats.ETHBalance},
		{"getUsdcBalance", &stats.USDCBalance},
	}
	for _, u := range uints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := n.uint256(ctx, u.method)
		if err != nil {
			n.viewFailed(u.method, err)
			continue
		}
		*u.dst = v
	}

	if out, err := n.reader.Call(ctx, n.address, "nftMintingEnabled"); err != nil {
		n.viewFailed("nftMintingEnabled", err)
	} else if enabled, ok := first[bool](out); ok {
		stats.MintingEnabled = &enabled
	}

	if out, err := n.reader.Call(ctx, n.address, "owner"); err != nil {
		n.viewFailed("owner", err)
	} else if owner, ok := first[common.Address](out); ok {
		hex := owner.Hex()
		stats.Owner = &hex
	}

	if out, err := n.reader.Call(ctx, n.address, "baseURI"); err != nil {
		n.viewFailed("baseURI", err)
	} else if base, ok := first[string](out); ok {
		stats.BaseURI = &base
	}

	if user != nil {
		stats.User = user.Hex()
		if v, err := n.uint256(ctx, "userEthFees", *user); err != nil {
			n.viewFailed("userEthFees", err)
		} else {
			stats.UserETHFees = v
		}
		if v, err := n.uint256(ctx, "userUsdcFees", *user); err != nil {
			n.viewFailed("userUsdcFees", err)
		} else {
			stats.UserUSDCFees = v
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Quote prices a batch mint of quantity tokens in currency.
func (n *NFT) Quote(ctx context.Context, currency domain.Currency, quantity uint64) (*domain.Quote, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var method string
	switch currency {
	case domain.CurrencyETH:
		method = "nftMintPriceEth"
	case domain.CurrencyUSDC:
		method = "nftMintPriceUsdc"
	default:
		return nil, fmt.Errorf("unsupported currency %q", currency)
	}

	unit, err := n.uint256(ctx, method)
	if err != nil {
		return nil, err
	}

	return &domain.Quote{
		Currency:  currency,
		UnitPrice: unit,
		Quantity:  quantity,
		Total:     BatchPrice(unit, quantity),
	}, nil
}

func (n *NFT) uint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := n.reader.Call(ctx, n.address, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := first[*big.Int](out)
	if !ok || v == nil {
		return nil, fmt.Errorf("%s: unexpected return %v", method, out)
	}
	return v, nil
}

func (n *NFT) viewFailed(method string, err error) {
	n.logger.Warn().Err(err).Str("method", method).Msg("contract view failed")
}

func first[T any](out []interface{}) (T, bool) {
	var zero T
	if len(out) == 0 {
		return zero, false
	}
	v, ok := out[0].(T)
	return v, ok
}

func firstString(method string, out []interface{}) (string, error) {
	s, ok := first[string](out)
	if !ok {
		return "", fmt.Errorf("%s: unexpected return %v", method, out)
	}
	return s, nil
}
