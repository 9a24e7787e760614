package vault

import (
	"fmt"

	cosmath "cosmossdk.io/math"
	"lukechampine.com/uint128"
)

func u128ToInt(v uint128.Uint128) cosmath.Int {
	return cosmath.NewIntFromBigInt(v.Big())
}

// CalculateShareMintAmount returns the shares minted for depositing liquidityDeposited into
// a position that held positionLiquidityBefore. The first deposit mints one share per unit
// of liquidity; later deposits mint floor(supply * deposited / before).
func CalculateShareMintAmount(liquidityDeposited, positionLiquidityBefore uint128.Uint128, shareSupply uint64) (uint64, error) {
	if shareSupply == 0 {
		if liquidityDeposited.Hi != 0 {
			return 0, fmt.Errorf("%w: first deposit of %s liquidity", ErrShareOverflow, liquidityDeposited)
		}
		return liquidityDeposited.Lo, nil
	}
	if positionLiquidityBefore.IsZero() {
		return 0, fmt.Errorf("%w: %d shares outstanding against an empty position", ErrZeroLiquidity, shareSupply)
	}
	minted := cosmath.NewIntFromUint64(shareSupply).
		Mul(u128ToInt(liquidityDeposited)).
		Quo(u128ToInt(positionLiquidityBefore))
	if !minted.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrShareOverflow, minted)
	}
	return minted.Uint64(), nil
}

// CalculateRemoveLiquidityAmount returns floor(positionLiquidity * userShares / totalShares).
// Redeeming the whole supply returns exactly positionLiquidity.
func CalculateRemoveLiquidityAmount(userShares, totalShares uint64, positionLiquidity uint128.Uint128) (uint128.Uint128, error) {
	if totalShares == 0 {
		return uint128.Zero, ErrZeroShareSupply
	}
	if userShares > totalShares {
		return uint128.Zero, fmt.Errorf("%w: %d shares exceed supply %d", ErrPreconditionMismatch, userShares, totalShares)
	}
	liquidity := u128ToInt(positionLiquidity).
		Mul(cosmath.NewIntFromUint64(userShares)).
		Quo(cosmath.NewIntFromUint64(totalShares))
	return uint128.FromBig(liquidity.BigInt()), nil
}
