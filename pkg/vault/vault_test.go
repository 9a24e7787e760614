package vault

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yimingWOW/bloom/pkg/pool/orca"
	"lukechampine.com/uint128"
)

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	v, err := Initialize(f.ctx, f.params, f.auth, f.pool, f.tokens, nil)
	require.NoError(t, err)

	acct := v.Account()
	assert.Equal(t, PriceRange{LowerTick: -128, UpperTick: 128}, acct.Range)
	assert.False(t, acct.Position.IsZero())
	assert.Equal(t, []string{"OpenPosition"}, f.pool.calls)
	assert.Equal(t, f.params.ShareMint, acct.ShareMint)
}

func TestInitializeRejectsBadLinkage(t *testing.T) {
	t.Run("mint mismatch", func(t *testing.T) {
		f := newFixture(t)
		f.params.TokenMintB = solana.NewWallet().PublicKey()
		_, err := Initialize(f.ctx, f.params, f.auth, f.pool, f.tokens, nil)
		assert.ErrorIs(t, err, ErrTokenMintMismatch)
		assert.Empty(t, f.pool.calls)
	})
	t.Run("share mint authority", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.authority[f.params.ShareMint] = solana.NewWallet().PublicKey()
		_, err := Initialize(f.ctx, f.params, f.auth, f.pool, f.tokens, nil)
		assert.ErrorIs(t, err, ErrInvalidPoolTokenMint)
		assert.Empty(t, f.pool.calls)
	})
	t.Run("share mint already issued", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.supply[f.params.ShareMint] = 1
		_, err := Initialize(f.ctx, f.params, f.auth, f.pool, f.tokens, nil)
		assert.ErrorIs(t, err, ErrInvalidPoolTokenMint)
		assert.Empty(t, f.pool.calls)
	})
	t.Run("authority for another pool", func(t *testing.T) {
		f := newFixture(t)
		other := NewKeeperAuthority(f.params.Address, solana.NewWallet().PublicKey(), f.auth.Address())
		_, err := Initialize(f.ctx, f.params, other, f.pool, f.tokens, nil)
		assert.ErrorIs(t, err, ErrAuthorityMismatch)
		assert.ErrorIs(t, err, ErrPreconditionMismatch)
		assert.Zero(t, f.pool.queries)
	})
	t.Run("unaligned range", func(t *testing.T) {
		f := newFixture(t)
		f.params.LowerTick = -100
		_, err := Initialize(f.ctx, f.params, f.auth, f.pool, f.tokens, nil)
		assert.ErrorIs(t, err, ErrInvalidTickRange)
		assert.Empty(t, f.pool.calls)
	})
}

func TestLoad(t *testing.T) {
	f := newFixture(t)
	v := f.initialize(t)

	loaded, err := Load(v.Account(), f.auth, f.pool, f.tokens, nil)
	require.NoError(t, err)
	assert.Equal(t, v.Account(), loaded.Account())

	_, err = Load(Account{Address: f.params.Address, Pool: f.params.Pool}, f.auth, f.pool, f.tokens, nil)
	assert.ErrorIs(t, err, ErrPreconditionMismatch)
}

func TestAddLiquidity(t *testing.T) {
	f := newFixture(t)
	v := f.initialize(t)
	f.tokens.credit(f.user, f.params.TokenMintA, 10_000_000)
	f.tokens.credit(f.user, f.params.TokenMintB, 10_000_000)

	receipt, err := v.AddLiquidity(f.ctx, f.user, 1_000_000)
	require.NoError(t, err)

	_, upper, err := v.Account().Range.SqrtPrices()
	require.NoError(t, err)
	wantLiquidity, err := LiquidityFromTokenA(1_000_000, f.pool.state.SqrtPrice, upper)
	require.NoError(t, err)

	assert.Equal(t, wantLiquidity, receipt.Liquidity)
	assert.Equal(t, wantLiquidity.Lo, receipt.SharesMinted)
	assert.LessOrEqual(t, receipt.MaxAmountA, uint64(1_000_000))
	assert.NotZero(t, receipt.MaxAmountB)
	assert.Equal(t, []string{"IncreaseLiquidity"}, f.pool.calls)
	assert.Equal(t, []string{"Approve", "Approve", "MintTo"}, f.tokens.calls)
	require.Len(t, f.pool.increases, 1)
	assert.Equal(t, f.user, f.pool.increases[0].funder)
	assert.Equal(t, receipt.SharesMinted, f.tokens.balances[holding{f.user, f.params.ShareMint}])

	// a second identical deposit doubles the position and the supply
	second, err := v.AddLiquidity(f.ctx, f.user, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, receipt.SharesMinted, second.SharesMinted)
	assert.Equal(t, 2*receipt.SharesMinted, f.tokens.supply[f.params.ShareMint])
}

func TestAddLiquidityRejects(t *testing.T) {
	f := newFixture(t)
	v := f.initialize(t)

	_, err := v.AddLiquidity(f.ctx, f.user, 0)
	assert.ErrorIs(t, err, ErrZeroLiquidity)

	f.pool.moveTo(500)
	_, err = v.AddLiquidity(f.ctx, f.user, 1_000_000)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
	assert.True(t, IsFatal(err))
	assert.Empty(t, f.pool.calls)
	assert.Empty(t, f.tokens.calls)
}

func TestRemoveLiquidity(t *testing.T) {
	f := newFixture(t)
	v := f.initialize(t)
	f.tokens.credit(f.user, f.params.TokenMintA, 10_000_000)
	f.tokens.credit(f.user, f.params.TokenMintB, 10_000_000)
	deposit, err := v.AddLiquidity(f.ctx, f.user, 1_000_000)
	require.NoError(t, err)

	f.pool.calls, f.tokens.calls = nil, nil
	f.pool.withdrawA, f.pool.withdrawB = 999_999, 1_000_001

	receipt, err := v.RemoveLiquidity(f.ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, deposit.SharesMinted, receipt.SharesBurned)
	assert.Equal(t, deposit.Liquidity, receipt.Liquidity)
	assert.Equal(t, uint64(999_999), receipt.AmountA)
	assert.Equal(t, uint64(1_000_001), receipt.AmountB)
	assert.Equal(t, []string{"DecreaseLiquidity"}, f.pool.calls)
	assert.Equal(t, []string{"Approve", "Burn"}, f.tokens.calls)
	assert.Zero(t, f.tokens.supply[f.params.ShareMint])

	pos, err := v.RefreshPosition(f.ctx)
	require.NoError(t, err)
	assert.True(t, pos.Liquidity.IsZero())

	_, err = v.RemoveLiquidity(f.ctx, f.user)
	assert.ErrorIs(t, err, ErrNoShares)
}

func TestRemoveLiquidityOutOfRangeIsNoop(t *testing.T) {
	f := newFixture(t)
	v := f.initialize(t)
	f.tokens.credit(f.user, f.params.ShareMint, 1_000)

	f.pool.moveTo(-129)
	receipt, err := v.RemoveLiquidity(f.ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, WithdrawReceipt{}, receipt)
	assert.Empty(t, f.pool.calls)
	assert.Empty(t, f.tokens.calls)
	assert.Equal(t, uint64(1_000), f.tokens.balances[holding{f.user, f.params.ShareMint}])
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	v := f.initialize(t)

	status, err := v.Status(f.ctx)
	require.NoError(t, err)
	assert.True(t, status.InRange)
	assert.Less(t, status.LowerPrice, status.CurrentPrice)
	assert.Less(t, status.CurrentPrice, status.UpperPrice)
	assert.InDelta(t, 1.0, status.CurrentPrice, 1e-8)

	// the upper bound itself is outside the half-open range
	f.pool.moveTo(128)
	status, err = v.Status(f.ctx)
	require.NoError(t, err)
	assert.False(t, status.InRange)
}

// A record whose range drifted from its position is read through the position.
func TestRecordedRangeDefersToPosition(t *testing.T) {
	f := newFixture(t)
	v := f.initialize(t)
	stale := v.Account()
	stale.Range = PriceRange{LowerTick: 256, UpperTick: 384}
	loaded, err := Load(stale, f.auth, f.pool, f.tokens, nil)
	require.NoError(t, err)

	status, err := loaded.Status(f.ctx)
	require.NoError(t, err)
	assert.True(t, status.InRange)
	assert.Equal(t, int32(-128), status.LowerTick)
	assert.Equal(t, int32(128), status.UpperTick)

	f.tokens.credit(f.user, f.params.TokenMintA, 10_000_000)
	f.tokens.credit(f.user, f.params.TokenMintB, 10_000_000)
	receipt, err := loaded.AddLiquidity(f.ctx, f.user, 1_000_000)
	require.NoError(t, err)
	assert.NotZero(t, receipt.SharesMinted)

	report, err := loaded.Rebalance(f.ctx, 256, 384)
	require.NoError(t, err)
	assert.Equal(t, []RebalanceState{StateInRange}, report.States)

	withdrawn, err := loaded.RemoveLiquidity(f.ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, receipt.SharesMinted, withdrawn.SharesBurned)
}

func TestSuggestRangeFromPool(t *testing.T) {
	f := newFixture(t)
	v := f.initialize(t)
	f.pool.moveTo(1000)

	r, err := v.SuggestRange(f.ctx, 5)
	require.NoError(t, err)
	assert.True(t, r.Contains(1000))
	assert.Zero(t, r.LowerTick%64)
	assert.Zero(t, r.UpperTick%64)

	_, err = v.SuggestRange(f.ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidTickRange)
}

func TestRebalanceInRangeMakesNoMutations(t *testing.T) {
	f := newFixture(t)
	v := f.initialize(t)
	f.pool.moveTo(127)

	report, err := v.Rebalance(f.ctx, 256, 384)
	require.NoError(t, err)
	assert.Equal(t, []RebalanceState{StateInRange}, report.States)
	assert.True(t, report.Status.InRange)
	assert.False(t, report.Rebalanced())
	assert.Empty(t, f.pool.calls)
	assert.Empty(t, f.tokens.calls)
	assert.Equal(t, PriceRange{LowerTick: -128, UpperTick: 128}, v.Account().Range)
}

// outOfRange leaves the vault's position holding liquidity with the price above it.
func outOfRange(t *testing.T) (*fixture, *Vault) {
	f := newFixture(t)
	v := f.initialize(t)
	f.pool.positions[v.Account().Position.Address].Liquidity = uint128.From64(5_000_000_000)
	f.pool.withdrawA, f.pool.withdrawB = 0, 4_000_000
	f.pool.feeA, f.pool.feeB = 1_000, 2_000
	f.pool.moveTo(300)
	return f, v
}

func TestRebalanceCallOrder(t *testing.T) {
	f, v := outOfRange(t)
	oldPosition := v.Account().Position
	f.pool.onSwap = swapAtPar(310)

	report, err := v.Rebalance(f.ctx, 256, 384)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"DecreaseLiquidity",
		"CollectFees",
		"ClosePosition",
		"OpenPosition",
		"Swap",
		"IncreaseLiquidity",
	}, f.pool.calls)
	assert.Equal(t, []RebalanceState{
		StateOutOfRange, StateWithdrawing, StateFeeCollecting, StateClosing, StateOpening,
		StateRangeChecking, StateRatioComputing, StateSwapping, StateDepositing, StateDone,
	}, report.States)
	assert.True(t, report.Rebalanced())

	assert.Equal(t, uint128.From64(5_000_000_000), report.WithdrawnLiquidity)
	assert.Equal(t, uint64(1_000), report.FeesA)
	assert.Equal(t, uint64(2_000), report.FeesB)
	assert.Equal(t, oldPosition, report.OldPosition)
	assert.NotContains(t, f.pool.positions, oldPosition.Address)

	// swap sized from the reserves held after withdrawal and fees
	require.Len(t, f.pool.swaps, 1)
	swap := f.pool.swaps[0]
	wantPlan := PlanSwap(report.Ratio, AmountToUIAmount(1_000, 6), AmountToUIAmount(4_002_000, 6), report.Status.CurrentPrice, 6, 6)
	assert.Equal(t, wantPlan, report.Plan)
	assert.False(t, swap.AToB)
	assert.Equal(t, report.Plan.Amount, swap.Amount)
	assert.True(t, swap.AmountSpecifiedIsInput)
	assert.Zero(t, swap.OtherAmountThreshold)
	assert.Equal(t, orca.MAX_SQRT_PRICE_X64, swap.SqrtPriceLimit)

	// deposit sized from the post-swap price and reserves
	require.Len(t, f.pool.increases, 1)
	inc := f.pool.increases[0]
	assert.Equal(t, int32(310), inc.tick)
	postSwapSqrt, err := orca.SqrtPriceFromTickIndex(310)
	require.NoError(t, err)
	upperSqrt, err := orca.SqrtPriceFromTickIndex(384)
	require.NoError(t, err)
	wantLiquidity, err := LiquidityFromTokenA(inc.reserveA, postSwapSqrt, upperSqrt)
	require.NoError(t, err)
	assert.Equal(t, wantLiquidity, inc.liquidity)
	assert.Equal(t, report.NewPosition, inc.handle)
	assert.Equal(t, f.auth.Address(), inc.funder)
	assert.LessOrEqual(t, inc.maxA, inc.reserveA)
	assert.LessOrEqual(t, inc.maxB, inc.reserveB)

	acct := v.Account()
	assert.Equal(t, report.NewPosition, acct.Position)
	assert.Equal(t, PriceRange{LowerTick: 256, UpperTick: 384}, acct.Range)
	assert.Equal(t, f.reserves(), report.Residual)
	assert.Equal(t, inc.reserveA-inc.maxA, report.Residual.TokenA)
}

func TestRebalanceRejectsInvalidRangeBeforeMutating(t *testing.T) {
	f, v := outOfRange(t)

	_, err := v.Rebalance(f.ctx, 384, 256)
	assert.ErrorIs(t, err, ErrInvalidTickRange)
	_, err = v.Rebalance(f.ctx, 250, 384)
	assert.ErrorIs(t, err, ErrInvalidTickRange)
	assert.Empty(t, f.pool.calls)
}

func TestRebalanceNewRangeMustBracketPrice(t *testing.T) {
	f, v := outOfRange(t)
	before := v.Account()

	report, err := v.Rebalance(f.ctx, 512, 640)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
	assert.True(t, IsFatal(err))
	assert.Equal(t, []string{"DecreaseLiquidity", "CollectFees", "ClosePosition", "OpenPosition"}, f.pool.calls)
	assert.Equal(t, StateRangeChecking, report.States[len(report.States)-1])
	assert.Equal(t, before, v.Account())
}

func TestRebalanceSwapPushingPriceOutOfRange(t *testing.T) {
	f, v := outOfRange(t)
	f.pool.onSwap = swapAtPar(400)

	_, err := v.Rebalance(f.ctx, 256, 384)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
	assert.NotContains(t, f.pool.calls, "IncreaseLiquidity")
}

// The single swap is sized at the pre-swap price. When the swap itself moves the
// price far, the deposit can need more B than the vault holds.
func TestRebalanceSingleShotSwapCanMiscalculate(t *testing.T) {
	f, v := outOfRange(t)
	before := v.Account()
	f.pool.onSwap = swapAtPar(380)

	report, err := v.Rebalance(f.ctx, 256, 384)
	assert.ErrorIs(t, err, ErrMiscalculation)
	assert.True(t, IsFatal(err))
	assert.Equal(t, StateDepositing, report.States[len(report.States)-1])
	assert.NotContains(t, f.pool.calls, "IncreaseLiquidity")
	assert.Equal(t, before, v.Account())
}

func TestRebalanceFailureSettlesOnOpenedPosition(t *testing.T) {
	f, v := outOfRange(t)
	before := v.Account()
	f.pool.onSwap = swapAtPar(380)

	report, err := v.Rebalance(f.ctx, 256, 384)
	require.ErrorIs(t, err, ErrMiscalculation)
	assert.NotContains(t, f.pool.positions, before.Position.Address)
	assert.Equal(t, before, v.Account())

	settled := report.Settle(v.Account())
	assert.Equal(t, report.NewPosition, settled.Position)
	assert.Equal(t, PriceRange{LowerTick: 256, UpperTick: 384}, settled.Range)
	assert.Equal(t, before.ShareMint, settled.ShareMint)

	reloaded, err := Load(settled, f.auth, f.pool, f.tokens, nil)
	require.NoError(t, err)
	status, err := reloaded.Status(f.ctx)
	require.NoError(t, err)
	assert.True(t, status.InRange)

	// in range but unfunded with idle reserves: the next call redeploys them
	f.pool.calls = nil
	f.pool.onSwap = swapAtPar(310)
	again, err := reloaded.Rebalance(f.ctx, 256, 384)
	require.NoError(t, err)
	assert.True(t, again.Rebalanced())
	assert.Equal(t, report.NewPosition, again.OldPosition)
	assert.NotContains(t, f.pool.positions, report.NewPosition.Address)
	assert.Equal(t, []string{"CollectFees", "ClosePosition", "OpenPosition", "Swap", "IncreaseLiquidity"}, f.pool.calls)
	assert.Equal(t, again.NewPosition, reloaded.Account().Position)
}

func TestSettle(t *testing.T) {
	prev := Account{
		Position: PositionHandle{Address: solana.NewWallet().PublicKey()},
		Range:    PriceRange{LowerTick: -128, UpperTick: 128},
	}
	opened := PositionHandle{Address: solana.NewWallet().PublicKey()}
	newRange := PriceRange{LowerTick: 256, UpperTick: 384}

	t.Run("in range", func(t *testing.T) {
		r := &RebalanceReport{States: []RebalanceState{StateInRange}}
		assert.Equal(t, prev, r.Settle(prev))
	})
	t.Run("failed before close", func(t *testing.T) {
		r := &RebalanceReport{States: []RebalanceState{StateOutOfRange, StateWithdrawing}, NewRange: newRange}
		assert.Equal(t, prev, r.Settle(prev))
	})
	t.Run("open failed", func(t *testing.T) {
		r := &RebalanceReport{States: []RebalanceState{StateOutOfRange, StateWithdrawing, StateFeeCollecting, StateClosing, StateOpening}, NewRange: newRange}
		got := r.Settle(prev)
		assert.True(t, got.Position.IsZero())
		assert.Equal(t, newRange, got.Range)
	})
	t.Run("failed after open", func(t *testing.T) {
		r := &RebalanceReport{
			States:      []RebalanceState{StateOutOfRange, StateWithdrawing, StateFeeCollecting, StateClosing, StateOpening, StateRangeChecking},
			NewPosition: opened,
			NewRange:    newRange,
		}
		got := r.Settle(prev)
		assert.Equal(t, opened, got.Position)
		assert.Equal(t, newRange, got.Range)
	})
}

func TestRebalanceEmptyPositionSkipsWithdrawal(t *testing.T) {
	f, v := outOfRange(t)
	f.pool.positions[v.Account().Position.Address].Liquidity = uint128.Zero
	f.pool.onSwap = swapAtPar(310)

	report, err := v.Rebalance(f.ctx, 256, 384)
	require.NoError(t, err)
	assert.Equal(t, "CollectFees", f.pool.calls[0])
	assert.True(t, report.WithdrawnLiquidity.IsZero())
}

func TestRebalanceStateString(t *testing.T) {
	assert.Equal(t, "RatioComputing", StateRatioComputing.String())
	assert.Equal(t, "Done", StateDone.String())
	assert.Equal(t, "RebalanceState(42)", RebalanceState(42).String())
}
