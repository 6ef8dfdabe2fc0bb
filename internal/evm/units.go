package evm

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatUnits renders v scaled down by 10^decimals, trimming trailing zeros.
// A nil value formats as "0".
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// BatchPrice returns unit * quantity. A nil unit price is treated as zero.
func BatchPrice(unit *big.Int, quantity uint64) *big.Int {
	if unit == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(unit, new(big.Int).SetUint64(quantity))
}
