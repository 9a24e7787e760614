package orca

import (
	"fmt"

	cosmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

func toU256(x uint128.Uint128) *uint256.Int {
	return &uint256.Int{x.Lo, x.Hi, 0, 0}
}

func sortPrices(a, b uint128.Uint128) (uint128.Uint128, uint128.Uint128) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// GetAmountDeltaA returns liquidity * (upper - lower) / (upper * lower) in token A units.
func GetAmountDeltaA(sqrtPrice0, sqrtPrice1, liquidity uint128.Uint128, roundUp bool) (uint64, error) {
	lower, upper := sortPrices(sqrtPrice0, sqrtPrice1)
	if lower.IsZero() {
		return 0, fmt.Errorf("%w: zero sqrt price", ErrSqrtPriceOutOfBounds)
	}
	diff := toU256(upper.Sub(lower))

	product, overflow := new(uint256.Int).MulOverflow(toU256(liquidity), diff)
	if overflow || product.BitLen() > 192 {
		return 0, ErrMultiplicationOverflow
	}
	numerator := product.Lsh(product, 64)
	denominator := new(uint256.Int).Mul(toU256(upper), toU256(lower))

	quotient, remainder := new(uint256.Int).DivMod(numerator, denominator, new(uint256.Int))
	if roundUp && !remainder.IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	if !quotient.IsUint64() {
		return 0, ErrTokenMaxExceeded
	}
	return quotient.Uint64(), nil
}

// GetAmountDeltaB returns liquidity * (upper - lower) in token B units, Q64 shifted out.
func GetAmountDeltaB(sqrtPrice0, sqrtPrice1, liquidity uint128.Uint128, roundUp bool) (uint64, error) {
	lower, upper := sortPrices(sqrtPrice0, sqrtPrice1)
	diff := toU256(upper.Sub(lower))

	product := new(uint256.Int).Mul(toU256(liquidity), diff)
	shouldRound := roundUp && product[0] != 0
	result := product.Rsh(product, 64)
	if shouldRound {
		result.AddUint64(result, 1)
	}
	if !result.IsUint64() {
		return 0, ErrTokenMaxExceeded
	}
	return result.Uint64(), nil
}

// CalculateLiquidityTokenDeltas returns the token amounts moved by a signed liquidity change
// on a position over [tickLower, tickUpper) at the given pool price. Deposits round up,
// withdrawals round down.
func CalculateLiquidityTokenDeltas(
	currentTick int32,
	sqrtPrice uint128.Uint128,
	tickLower int32,
	tickUpper int32,
	liquidityDelta cosmath.Int,
) (deltaA uint64, deltaB uint64, err error) {
	if liquidityDelta.IsZero() {
		return 0, 0, ErrLiquidityZero
	}
	abs := liquidityDelta.Abs().BigInt()
	if abs.BitLen() > 128 {
		return 0, 0, fmt.Errorf("%w: liquidity delta %s", ErrMultiplicationOverflow, liquidityDelta)
	}
	liquidity := uint128.FromBig(abs)
	roundUp := liquidityDelta.IsPositive()

	lowerPrice, err := SqrtPriceFromTickIndex(tickLower)
	if err != nil {
		return 0, 0, err
	}
	upperPrice, err := SqrtPriceFromTickIndex(tickUpper)
	if err != nil {
		return 0, 0, err
	}

	switch {
	case currentTick < tickLower:
		deltaA, err = GetAmountDeltaA(lowerPrice, upperPrice, liquidity, roundUp)
	case currentTick < tickUpper:
		deltaA, err = GetAmountDeltaA(sqrtPrice, upperPrice, liquidity, roundUp)
		if err != nil {
			return 0, 0, err
		}
		deltaB, err = GetAmountDeltaB(lowerPrice, sqrtPrice, liquidity, roundUp)
	default:
		deltaB, err = GetAmountDeltaB(lowerPrice, upperPrice, liquidity, roundUp)
	}
	if err != nil {
		return 0, 0, err
	}
	return deltaA, deltaB, nil
}
