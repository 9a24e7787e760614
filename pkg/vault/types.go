package vault

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/yimingWOW/bloom/pkg/pool/orca"
	"lukechampine.com/uint128"
)

// PriceRange is the tick range [LowerTick, UpperTick) of one position.
type PriceRange struct {
	LowerTick int32
	UpperTick int32
}

// NewPriceRange validates ordering, bounds and alignment to the pool's tick spacing.
func NewPriceRange(lower, upper int32, tickSpacing uint16) (PriceRange, error) {
	if lower >= upper {
		return PriceRange{}, fmt.Errorf("%w: lower %d >= upper %d", ErrInvalidTickRange, lower, upper)
	}
	if !orca.IsInitializableTick(lower, tickSpacing) || !orca.IsInitializableTick(upper, tickSpacing) {
		return PriceRange{}, fmt.Errorf("%w: [%d, %d) not aligned to spacing %d", ErrInvalidTickRange, lower, upper, tickSpacing)
	}
	return PriceRange{LowerTick: lower, UpperTick: upper}, nil
}

// Contains is the half-open range test lower <= tick < upper.
func (r PriceRange) Contains(tick int32) bool {
	return r.LowerTick <= tick && tick < r.UpperTick
}

// SqrtPrices returns the Q64.64 sqrt prices at both bounds.
func (r PriceRange) SqrtPrices() (lower, upper uint128.Uint128, err error) {
	lower, err = orca.SqrtPriceFromTickIndex(r.LowerTick)
	if err != nil {
		return uint128.Zero, uint128.Zero, err
	}
	upper, err = orca.SqrtPriceFromTickIndex(r.UpperTick)
	if err != nil {
		return uint128.Zero, uint128.Zero, err
	}
	return lower, upper, nil
}

func (r PriceRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.LowerTick, r.UpperTick)
}

// PoolState is a fresh read of the external pool. Never reuse it across a mutating call.
type PoolState struct {
	Address          solana.PublicKey
	SqrtPrice        uint128.Uint128
	TickCurrentIndex int32
	TickSpacing      uint16
	FeeRate          uint16
	Liquidity        uint128.Uint128
	TokenMintA       solana.PublicKey
	TokenMintB       solana.PublicKey
}

// PositionHandle identifies a position held in the pool.
type PositionHandle struct {
	Address      solana.PublicKey
	Mint         solana.PublicKey
	TokenAccount solana.PublicKey
}

func (h PositionHandle) IsZero() bool {
	return h.Address.IsZero()
}

// Position is a fresh read of the vault's live position.
type Position struct {
	Handle    PositionHandle
	Range     PriceRange
	Liquidity uint128.Uint128
	FeeOwedA  uint64
	FeeOwedB  uint64
}

// Account is the persistent vault record: linkage addresses and the active position.
type Account struct {
	Address    solana.PublicKey
	Pool       solana.PublicKey
	TokenMintA solana.PublicKey
	TokenMintB solana.PublicKey
	ShareMint  solana.PublicKey
	Admin      solana.PublicKey
	Position   PositionHandle
	Range      PriceRange
}

// Reserves are the vault's idle token balances.
type Reserves struct {
	TokenA uint64
	TokenB uint64
}

// RangeStatus reports the position bounds against the current price.
type RangeStatus struct {
	LowerTick    int32
	CurrentTick  int32
	UpperTick    int32
	LowerPrice   float64
	CurrentPrice float64
	UpperPrice   float64
	InRange      bool
}

// DepositReceipt describes a completed AddLiquidity.
type DepositReceipt struct {
	Liquidity    uint128.Uint128
	MaxAmountA   uint64
	MaxAmountB   uint64
	SharesMinted uint64
}

// WithdrawReceipt describes a completed RemoveLiquidity. It is zero when the
// position was out of range and nothing happened.
type WithdrawReceipt struct {
	SharesBurned uint64
	Liquidity    uint128.Uint128
	AmountA      uint64
	AmountB      uint64
}

// RangeAround returns a range spreadPct percent either side of the price at tick
// current, snapped outward to tickSpacing. The current tick is always inside.
func RangeAround(current int32, tickSpacing uint16, spreadPct float64) (PriceRange, error) {
	if spreadPct <= 0 || spreadPct >= 100 {
		return PriceRange{}, fmt.Errorf("%w: spread %.4f%% outside (0, 100)", ErrInvalidTickRange, spreadPct)
	}
	spacing := int32(tickSpacing)
	lower := orca.GetInitializableTickIndex(current+orca.TickOffsetForPriceRatio(1-spreadPct/100), tickSpacing, false)
	upper := orca.GetInitializableTickIndex(current+orca.TickOffsetForPriceRatio(1+spreadPct/100), tickSpacing, true)
	if lower > current {
		lower = orca.GetInitializableTickIndex(current, tickSpacing, false)
	}
	if upper <= current {
		upper = orca.GetInitializableTickIndex(current, tickSpacing, false) + spacing
	}
	for lower < orca.MIN_TICK {
		lower += spacing
	}
	for upper > orca.MAX_TICK {
		upper -= spacing
	}
	return NewPriceRange(lower, upper, tickSpacing)
}

// RangeAbove returns a one-sided range from the spacing tick at or below current up to
// spreadPct percent above the price. Most of the deposit then sits in token A.
func RangeAbove(current int32, tickSpacing uint16, spreadPct float64) (PriceRange, error) {
	around, err := RangeAround(current, tickSpacing, spreadPct)
	if err != nil {
		return PriceRange{}, err
	}
	lower := orca.GetInitializableTickIndex(current, tickSpacing, false)
	if lower < around.LowerTick {
		lower = around.LowerTick
	}
	return NewPriceRange(lower, around.UpperTick, tickSpacing)
}
