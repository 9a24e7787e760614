package vault

import (
	"context"
	"fmt"

	"github.com/yimingWOW/bloom/pkg/pool/orca"
	"go.uber.org/zap"
	"lukechampine.com/uint128"
)

// RebalanceState is one step of the rebalance state machine. A report lists the
// states a call entered, in order.
type RebalanceState int

const (
	StateInRange RebalanceState = iota
	StateOutOfRange
	StateWithdrawing
	StateFeeCollecting
	StateClosing
	StateOpening
	StateRangeChecking
	StateRatioComputing
	StateSwapping
	StateDepositing
	StateDone
)

func (s RebalanceState) String() string {
	switch s {
	case StateInRange:
		return "InRange"
	case StateOutOfRange:
		return "OutOfRange"
	case StateWithdrawing:
		return "Withdrawing"
	case StateFeeCollecting:
		return "FeeCollecting"
	case StateClosing:
		return "Closing"
	case StateOpening:
		return "Opening"
	case StateRangeChecking:
		return "RangeChecking"
	case StateRatioComputing:
		return "RatioComputing"
	case StateSwapping:
		return "Swapping"
	case StateDepositing:
		return "Depositing"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("RebalanceState(%d)", int(s))
	}
}

// RebalanceReport records what one Rebalance call did. On the in-range path only
// States and Status are set.
type RebalanceReport struct {
	States []RebalanceState
	Status RangeStatus

	WithdrawnLiquidity uint128.Uint128
	FeesA              uint64
	FeesB              uint64
	OldPosition        PositionHandle
	NewPosition        PositionHandle
	NewRange           PriceRange

	Ratio      DepositRatio
	Plan       SwapPlan
	SwapResult SwapResult

	DepositedLiquidity uint128.Uint128
	MaxA               uint64
	MaxB               uint64
	Residual           Reserves
}

// Rebalanced reports whether the call moved the position.
func (r *RebalanceReport) Rebalanced() bool {
	return len(r.States) > 0 && r.States[len(r.States)-1] == StateDone
}

func (r *RebalanceReport) reached(s RebalanceState) bool {
	for _, seen := range r.States {
		if seen == s {
			return true
		}
	}
	return false
}

// Settle returns the record the vault should persist after this call, given the
// record it started from. A failure after the close leaves the old position gone:
// the record then points at the opened, possibly unfunded, position, or at no
// position when the open itself failed.
func (r *RebalanceReport) Settle(prev Account) Account {
	if r.Rebalanced() || !r.reached(StateOpening) {
		return prev
	}
	prev.Position = r.NewPosition
	prev.Range = r.NewRange
	return prev
}

func (v *Vault) enter(report *RebalanceReport, s RebalanceState, fields ...zap.Field) {
	report.States = append(report.States, s)
	v.logger.Info("rebalance "+s.String(), append([]zap.Field{zap.Stringer("vault", v.account.Address)}, fields...)...)
}

// Rebalance moves the vault into [newLower, newUpper) when the active position no longer
// brackets the current tick. Anyone may call it. While in range it only reports status,
// unless the position is empty and the reserves are not.
//
// Out of range, the steps run strictly in order and each one reads fresh state:
// withdraw all, collect fees, close, open, verify range, size and run one swap,
// deposit the liquidity the resulting token A reserve buys.
func (v *Vault) Rebalance(ctx context.Context, newLower, newUpper int32) (*RebalanceReport, error) {
	report := &RebalanceReport{OldPosition: v.account.Position}

	state, err := v.RefreshPool(ctx)
	if err != nil {
		return report, err
	}
	pos, err := v.activePosition(ctx)
	if err != nil {
		return report, err
	}
	status, err := v.rangeStatus(ctx, state, pos.Range)
	if err != nil {
		return report, err
	}
	report.Status = status
	if status.InRange {
		stranded, err := v.stranded(ctx, pos)
		if err != nil {
			return report, err
		}
		if !stranded {
			v.enter(report, StateInRange,
				zap.Float64("lowerPrice", status.LowerPrice),
				zap.Float64("currentPrice", status.CurrentPrice),
				zap.Float64("upperPrice", status.UpperPrice))
			return report, nil
		}
		v.logger.Warn("position holds no liquidity while reserves are idle, redeploying",
			zap.Stringer("position", pos.Handle.Address),
			zap.Stringer("range", pos.Range))
	}
	v.enter(report, StateOutOfRange,
		zap.Int32("tick", status.CurrentTick),
		zap.Stringer("range", pos.Range))

	newRange, err := NewPriceRange(newLower, newUpper, state.TickSpacing)
	if err != nil {
		return report, err
	}
	report.NewRange = newRange

	v.enter(report, StateWithdrawing, zap.Stringer("liquidity", pos.Liquidity))
	if !pos.Liquidity.IsZero() {
		if err := v.pool.DecreaseLiquidity(ctx, v.auth, pos.Handle, v.auth.Address(), pos.Liquidity, 0, 0); err != nil {
			return report, fmt.Errorf("withdraw position liquidity: %w", err)
		}
	}
	report.WithdrawnLiquidity = pos.Liquidity

	v.enter(report, StateFeeCollecting)
	report.FeesA, report.FeesB, err = v.pool.CollectFees(ctx, v.auth, pos.Handle, v.auth.Address())
	if err != nil {
		return report, fmt.Errorf("collect fees: %w", err)
	}
	reserves, err := v.RefreshReserves(ctx)
	if err != nil {
		return report, err
	}
	v.logger.Info("reserves after withdrawal",
		zap.Uint64("feesA", report.FeesA),
		zap.Uint64("feesB", report.FeesB),
		zap.Uint64("reserveA", reserves.TokenA),
		zap.Uint64("reserveB", reserves.TokenB))

	v.enter(report, StateClosing, zap.Stringer("position", pos.Handle.Address))
	if err := v.pool.ClosePosition(ctx, v.auth, pos.Handle); err != nil {
		return report, fmt.Errorf("close position: %w", err)
	}

	v.enter(report, StateOpening, zap.Stringer("range", newRange))
	handle, err := v.pool.OpenPosition(ctx, v.auth, newRange)
	if err != nil {
		return report, fmt.Errorf("open position %s: %w", newRange, err)
	}
	report.NewPosition = handle

	v.enter(report, StateRangeChecking)
	opened, err := v.pool.FetchPosition(ctx, handle)
	if err != nil {
		return report, fmt.Errorf("refresh position %s: %w", handle.Address, err)
	}
	state, err = v.RefreshPool(ctx)
	if err != nil {
		return report, err
	}
	if !opened.Range.Contains(state.TickCurrentIndex) {
		return report, fmt.Errorf("%w: tick %d outside new range %s", ErrPositionOutOfRange, state.TickCurrentIndex, opened.Range)
	}

	v.enter(report, StateRatioComputing)
	status, err = v.rangeStatus(ctx, state, opened.Range)
	if err != nil {
		return report, err
	}
	report.Ratio = CalculateDepositRatio(status.LowerPrice, status.CurrentPrice, status.UpperPrice)
	reserves, err = v.RefreshReserves(ctx)
	if err != nil {
		return report, err
	}
	decA, decB, err := v.decimals(ctx)
	if err != nil {
		return report, err
	}
	report.Plan = PlanSwap(report.Ratio,
		AmountToUIAmount(reserves.TokenA, decA),
		AmountToUIAmount(reserves.TokenB, decB),
		status.CurrentPrice, decA, decB)
	v.logger.Info("deposit ratio",
		zap.Float64("pctA", report.Ratio.PctA),
		zap.Float64("pctB", report.Ratio.PctB),
		zap.Stringer("plan", report.Plan))

	v.enter(report, StateSwapping, zap.Bool("skip", report.Plan.Skip()))
	if !report.Plan.Skip() {
		limit := orca.MAX_SQRT_PRICE_X64
		if report.Plan.AToB {
			limit = orca.MIN_SQRT_PRICE_X64
		}
		report.SwapResult, err = v.pool.Swap(ctx, v.auth, v.auth.Address(), SwapParams{
			Amount:                 report.Plan.Amount,
			OtherAmountThreshold:   0,
			SqrtPriceLimit:         limit,
			AmountSpecifiedIsInput: true,
			AToB:                   report.Plan.AToB,
		})
		if err != nil {
			return report, fmt.Errorf("swap: %w", err)
		}
	}

	v.enter(report, StateDepositing)
	reserves, err = v.RefreshReserves(ctx)
	if err != nil {
		return report, err
	}
	state, err = v.RefreshPool(ctx)
	if err != nil {
		return report, err
	}
	if !opened.Range.Contains(state.TickCurrentIndex) {
		return report, fmt.Errorf("%w: swap moved tick to %d outside %s", ErrPositionOutOfRange, state.TickCurrentIndex, opened.Range)
	}
	_, upperSqrt, err := opened.Range.SqrtPrices()
	if err != nil {
		return report, err
	}
	liquidity, err := LiquidityFromTokenA(reserves.TokenA, state.SqrtPrice, upperSqrt)
	if err != nil {
		return report, err
	}
	if liquidity.IsZero() {
		return report, fmt.Errorf("%w: reserve A %d buys nothing", ErrZeroLiquidity, reserves.TokenA)
	}
	maxA, maxB, err := MaxTokenAmounts(state, opened.Range, liquidity)
	if err != nil {
		return report, err
	}
	v.logger.Info("deposit sized",
		zap.Stringer("liquidity", liquidity),
		zap.Uint64("maxA", maxA),
		zap.Uint64("maxB", maxB),
		zap.Uint64("reserveA", reserves.TokenA),
		zap.Uint64("reserveB", reserves.TokenB))
	if maxA > reserves.TokenA || maxB > reserves.TokenB {
		return report, fmt.Errorf("%w: need %d/%d, hold %d/%d", ErrMiscalculation, maxA, maxB, reserves.TokenA, reserves.TokenB)
	}
	if err := v.pool.IncreaseLiquidity(ctx, v.auth, handle, v.auth.Address(), liquidity, maxA, maxB); err != nil {
		return report, fmt.Errorf("deposit: %w", err)
	}
	report.DepositedLiquidity = liquidity
	report.MaxA, report.MaxB = maxA, maxB
	v.account.Position = handle
	v.account.Range = opened.Range

	report.Residual, err = v.RefreshReserves(ctx)
	if err != nil {
		return report, err
	}
	v.enter(report, StateDone,
		zap.Stringer("position", handle.Address),
		zap.Uint64("residualA", report.Residual.TokenA),
		zap.Uint64("residualB", report.Residual.TokenB))
	return report, nil
}

// stranded reports whether an empty position sits next to idle reserves, as after a
// rebalance that failed between opening and depositing.
func (v *Vault) stranded(ctx context.Context, pos Position) (bool, error) {
	if !pos.Liquidity.IsZero() {
		return false, nil
	}
	reserves, err := v.RefreshReserves(ctx)
	if err != nil {
		return false, err
	}
	return reserves.TokenA > 0 || reserves.TokenB > 0, nil
}
