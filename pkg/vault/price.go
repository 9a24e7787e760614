package vault

import (
	"math"

	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"
)

// q64Reciprocal is 2^-64 held at 28 decimal places.
var q64Reciprocal = decimal.NewFromInt(1).DivRound(decimal.NewFromBigInt(uint128.New(0, 1).Big(), 0), 28)

// SqrtPriceX64ToPrice converts a Q64.64 sqrt price into a decimal-adjusted price.
// The squaring runs in arbitrary precision; only the result is narrowed to float64.
func SqrtPriceX64ToPrice(sqrtPrice uint128.Uint128, decimalsA, decimalsB uint8) float64 {
	fromX64 := decimal.NewFromBigInt(sqrtPrice.Big(), 0).Mul(q64Reciprocal)
	squared := fromX64.Mul(fromX64)
	price, _ := squared.Shift(int32(decimalsB) - int32(decimalsA)).Float64()
	return price
}

// AmountToUIAmount converts a raw token amount to a UI amount.
func AmountToUIAmount(amount uint64, decimals uint8) float64 {
	return float64(amount) / math.Pow10(int(decimals))
}

// UIAmountToAmount converts a UI amount to a raw token amount, truncating.
// Negative and NaN inputs yield zero; values past the u64 range saturate.
func UIAmountToAmount(uiAmount float64, decimals uint8) uint64 {
	raw := float64(uiAmount * math.Pow10(int(decimals)))
	switch {
	case !(raw > 0):
		return 0
	case raw >= math.MaxUint64:
		return math.MaxUint64
	default:
		return uint64(raw)
	}
}
