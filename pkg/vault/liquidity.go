package vault

import (
	"fmt"

	cosmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
	"github.com/yimingWOW/bloom/pkg/pool/orca"
	"lukechampine.com/uint128"
)

// LiquidityFromTokenA returns the liquidity amountA of token A buys over
// [sqrtPriceLower, sqrtPriceUpper]:
//
//	quotient  = lower * upper / (upper - lower)
//	liquidity = quotient * amountA >> 64
//
// Intermediates are 256 bits wide. lower >= upper is a programming error and panics.
func LiquidityFromTokenA(amountA uint64, sqrtPriceLower, sqrtPriceUpper uint128.Uint128) (uint128.Uint128, error) {
	if sqrtPriceLower.Cmp(sqrtPriceUpper) >= 0 {
		panic(fmt.Sprintf("vault: sqrt price lower %s must be below upper %s", sqrtPriceLower, sqrtPriceUpper))
	}
	lower := &uint256.Int{sqrtPriceLower.Lo, sqrtPriceLower.Hi, 0, 0}
	upper := &uint256.Int{sqrtPriceUpper.Lo, sqrtPriceUpper.Hi, 0, 0}

	product := new(uint256.Int).Mul(lower, upper)
	diff := new(uint256.Int).Sub(upper, lower)
	quotient := new(uint256.Int).Div(product, diff)

	liquidity, overflow := new(uint256.Int).MulOverflow(quotient, uint256.NewInt(amountA))
	if overflow {
		return uint128.Zero, fmt.Errorf("%w: amount %d", ErrLiquidityOverflow, amountA)
	}
	liquidity.Rsh(liquidity, 64)
	if liquidity.BitLen() > 128 {
		return uint128.Zero, fmt.Errorf("%w: amount %d", ErrLiquidityOverflow, amountA)
	}
	return uint128.New(liquidity[0], liquidity[1]), nil
}

// MaxTokenAmounts returns the token caps for depositing liquidity into a position over r
// at the pool's current price. The curve formula belongs to the pool.
func MaxTokenAmounts(state PoolState, r PriceRange, liquidity uint128.Uint128) (maxA, maxB uint64, err error) {
	delta := cosmath.NewIntFromBigInt(liquidity.Big())
	maxA, maxB, err = orca.CalculateLiquidityTokenDeltas(state.TickCurrentIndex, state.SqrtPrice, r.LowerTick, r.UpperTick, delta)
	if err != nil {
		return 0, 0, fmt.Errorf("token deltas for liquidity %s: %w", liquidity, err)
	}
	return maxA, maxB, nil
}
