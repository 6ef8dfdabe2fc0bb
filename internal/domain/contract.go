package domain

import (
	"math/big"
)

// Currency is a mint payment currency accepted by the fee contract.
type Currency string

const (
	CurrencyETH  Currency = "eth"
	CurrencyUSDC Currency = "usdc"
)

// Decimals returns the fixed-point precision used to display amounts.
func (c Currency) Decimals() int32 {
	if c == CurrencyUSDC {
		return 6
	}
	return 18
}

// ContractStats holds the read-only contract views.
// A nil field means the view could not be read.
type ContractStats struct {
	Contract       string
	TotalSupply    *big.Int
	MaxSupply      *big.Int
	MintPriceETH   *big.Int
	MintPriceUSDC  *big.Int
	TotalETHFees   *big.Int
	TotalUSDCFees  *big.Int
	ETHBalance     *big.Int
	USDCBalance    *big.Int
	MintingEnabled *bool
	Owner          *string
	BaseURI        *string

	// Per-user views, only read when a user address is given.
	User         string
	UserETHFees  *big.Int
	UserUSDCFees *big.Int
}

// SupplyPercentage returns total/max*100, or 0 when either is unknown or max is zero.
func (s *ContractStats) SupplyPercentage() float64 {
	if s.TotalSupply == nil || s.MaxSupply == nil || s.MaxSupply.Sign() == 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(s.TotalSupply, s.MaxSupply)
	f, _ := ratio.Float64()
	return f * 100
}

// Quote is the total price for a batch mint.
type Quote struct {
	Currency  Currency
	UnitPrice *big.Int
	Quantity  uint64
	Total     *big.Int
}
