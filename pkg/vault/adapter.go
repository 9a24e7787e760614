package vault

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// SwapParams mirrors the pool's swap instruction arguments.
type SwapParams struct {
	Amount                 uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         uint128.Uint128
	AmountSpecifiedIsInput bool
	AToB                   bool
}

// SwapResult reports what a swap moved and the owner's balances afterwards.
type SwapResult struct {
	AmountIn  uint64
	AmountOut uint64
	BalanceA  uint64
	BalanceB  uint64
}

// PoolAdapter is the narrow surface of the external concentrated-liquidity pool.
// Every call that mutates pool state is signed by auth; reads are never cached.
type PoolAdapter interface {
	QueryState(ctx context.Context) (PoolState, error)
	FetchPosition(ctx context.Context, h PositionHandle) (Position, error)
	OpenPosition(ctx context.Context, auth Authority, r PriceRange) (PositionHandle, error)
	ClosePosition(ctx context.Context, auth Authority, h PositionHandle) error
	// IncreaseLiquidity pulls at most maxA/maxB from funder into the position.
	IncreaseLiquidity(ctx context.Context, auth Authority, h PositionHandle, funder solana.PublicKey, liquidity uint128.Uint128, maxA, maxB uint64) error
	// DecreaseLiquidity pays the withdrawn tokens to recipient.
	DecreaseLiquidity(ctx context.Context, auth Authority, h PositionHandle, recipient solana.PublicKey, liquidity uint128.Uint128, minA, minB uint64) error
	CollectFees(ctx context.Context, auth Authority, h PositionHandle, recipient solana.PublicKey) (feeA, feeB uint64, err error)
	// Swap trades from owner's balances.
	Swap(ctx context.Context, auth Authority, owner solana.PublicKey, p SwapParams) (SwapResult, error)
}

// TokenRegistry is the token program surface: balances, share mint and burn, delegation.
type TokenRegistry interface {
	MintTo(ctx context.Context, auth Authority, mint, to solana.PublicKey, amount uint64) error
	// Burn removes amount from owner's balance; auth must hold an approval from owner.
	Burn(ctx context.Context, auth Authority, mint, owner solana.PublicKey, amount uint64) error
	Approve(ctx context.Context, owner, mint, delegate solana.PublicKey, amount uint64) error
	BalanceOf(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
	Supply(ctx context.Context, mint solana.PublicKey) (uint64, error)
	Decimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	MintAuthority(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error)
}
