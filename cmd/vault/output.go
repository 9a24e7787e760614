package main

import (
	"encoding/json"
	"os"

	"github.com/gagliardetto/solana-go"

	"github.com/yimingWOW/bloom/pkg/vault"
)

type statusView struct {
	LowerTick    int32   `json:"lower_tick"`
	CurrentTick  int32   `json:"current_tick"`
	UpperTick    int32   `json:"upper_tick"`
	LowerPrice   float64 `json:"lower_price"`
	CurrentPrice float64 `json:"current_price"`
	UpperPrice   float64 `json:"upper_price"`
	InRange      bool    `json:"in_range"`
}

func newStatusView(s vault.RangeStatus) statusView {
	return statusView{
		LowerTick:    s.LowerTick,
		CurrentTick:  s.CurrentTick,
		UpperTick:    s.UpperTick,
		LowerPrice:   s.LowerPrice,
		CurrentPrice: s.CurrentPrice,
		UpperPrice:   s.UpperPrice,
		InRange:      s.InRange,
	}
}

type depositView struct {
	User         string `json:"user"`
	Liquidity    string `json:"liquidity"`
	MaxAmountA   uint64 `json:"max_amount_a"`
	MaxAmountB   uint64 `json:"max_amount_b"`
	SharesMinted uint64 `json:"shares_minted"`
}

func newDepositView(user solana.PublicKey, r vault.DepositReceipt) depositView {
	return depositView{
		User:         user.String(),
		Liquidity:    r.Liquidity.String(),
		MaxAmountA:   r.MaxAmountA,
		MaxAmountB:   r.MaxAmountB,
		SharesMinted: r.SharesMinted,
	}
}

type withdrawView struct {
	User         string `json:"user"`
	SharesBurned uint64 `json:"shares_burned"`
	Liquidity    string `json:"liquidity"`
	AmountA      uint64 `json:"amount_a"`
	AmountB      uint64 `json:"amount_b"`
}

func newWithdrawView(user solana.PublicKey, r vault.WithdrawReceipt) withdrawView {
	return withdrawView{
		User:         user.String(),
		SharesBurned: r.SharesBurned,
		Liquidity:    r.Liquidity.String(),
		AmountA:      r.AmountA,
		AmountB:      r.AmountB,
	}
}

type reportView struct {
	States             []string   `json:"states"`
	Status             statusView `json:"status"`
	WithdrawnLiquidity string     `json:"withdrawn_liquidity"`
	FeesA              uint64     `json:"fees_a"`
	FeesB              uint64     `json:"fees_b"`
	OldPosition        string     `json:"old_position"`
	NewPosition        string     `json:"new_position,omitempty"`
	NewLowerTick       int32      `json:"new_lower_tick"`
	NewUpperTick       int32      `json:"new_upper_tick"`
	PctA               float64    `json:"pct_a"`
	PctB               float64    `json:"pct_b"`
	Swap               string     `json:"swap,omitempty"`
	SwapIn             uint64     `json:"swap_in"`
	SwapOut            uint64     `json:"swap_out"`
	DepositedLiquidity string     `json:"deposited_liquidity"`
	MaxA               uint64     `json:"max_a"`
	MaxB               uint64     `json:"max_b"`
	ResidualA          uint64     `json:"residual_a"`
	ResidualB          uint64     `json:"residual_b"`
	Rebalanced         bool       `json:"rebalanced"`
}

func newReportView(r *vault.RebalanceReport) reportView {
	view := reportView{
		Status:             newStatusView(r.Status),
		WithdrawnLiquidity: r.WithdrawnLiquidity.String(),
		FeesA:              r.FeesA,
		FeesB:              r.FeesB,
		OldPosition:        r.OldPosition.Address.String(),
		NewLowerTick:       r.NewRange.LowerTick,
		NewUpperTick:       r.NewRange.UpperTick,
		PctA:               r.Ratio.PctA,
		PctB:               r.Ratio.PctB,
		SwapIn:             r.SwapResult.AmountIn,
		SwapOut:            r.SwapResult.AmountOut,
		DepositedLiquidity: r.DepositedLiquidity.String(),
		MaxA:               r.MaxA,
		MaxB:               r.MaxB,
		ResidualA:          r.Residual.TokenA,
		ResidualB:          r.Residual.TokenB,
		Rebalanced:         r.Rebalanced(),
	}
	for _, s := range r.States {
		view.States = append(view.States, s.String())
	}
	if !r.NewPosition.IsZero() {
		view.NewPosition = r.NewPosition.Address.String()
	}
	if !r.Plan.Skip() {
		view.Swap = r.Plan.String()
	}
	return view
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
