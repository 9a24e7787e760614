package vault

import (
	"fmt"
	"math"
)

// DepositRatio is the value split, in percent, of a balanced deposit.
type DepositRatio struct {
	PctA float64
	PctB float64
}

func (r DepositRatio) String() string {
	return fmt.Sprintf("A %.4f%% / B %.4f%%", r.PctA, r.PctB)
}

// CalculateDepositRatio returns the token value split for depositing into [lower, upper]
// at price current. Prices at or beyond a bound put everything on one side.
//
// The float64() conversions keep each product rounded on its own so results do not
// depend on fused multiply-add.
func CalculateDepositRatio(lowerPrice, currentPrice, upperPrice float64) DepositRatio {
	if currentPrice <= lowerPrice {
		return DepositRatio{PctA: 100, PctB: 0}
	}
	if currentPrice >= upperPrice {
		return DepositRatio{PctA: 0, PctB: 100}
	}
	sqrtLower := math.Sqrt(lowerPrice)
	sqrtCurrent := math.Sqrt(currentPrice)
	sqrtUpper := math.Sqrt(upperPrice)

	a := sqrtUpper - sqrtCurrent
	b := float64(float64(sqrtCurrent*sqrtUpper) * (sqrtCurrent - sqrtLower))

	aScaled := float64(a * (currentPrice / (1 + currentPrice)))
	bScaled := float64(b * (1 / (1 + currentPrice)))

	pctA := aScaled / (aScaled + bScaled)
	pctB := bScaled / (bScaled + aScaled)
	return DepositRatio{PctA: float64(pctA * 100), PctB: float64(pctB * 100)}
}

// TokenALeftover is the token A held beyond what the target split pairs with amountB.
func TokenALeftover(pctA, pctB, amountA, amountB, price float64) float64 {
	return amountA - float64(float64((pctA/pctB)*amountB)*(1/price))
}

// TokenBLeftover is the token B held beyond what the target split pairs with amountA.
func TokenBLeftover(pctA, pctB, amountA, amountB, price float64) float64 {
	return amountB - float64(float64((pctB/pctA)*amountA)*price)
}

// TokenASwapAmount sizes the A->B swap from the A leftover.
func TokenASwapAmount(pctA, leftoverA float64) float64 {
	return float64(pctA*0.01) * leftoverA
}

// TokenBSwapAmount sizes the B->A swap from the B leftover.
func TokenBSwapAmount(pctB, leftoverB float64) float64 {
	return float64(pctB*0.01) * leftoverB
}

// SwapPlan is the single-shot swap that moves reserves toward the deposit ratio.
type SwapPlan struct {
	AToB     bool
	Amount   uint64
	UIAmount float64
	Leftover float64
}

// Skip reports whether the plan moves nothing.
func (p SwapPlan) Skip() bool {
	return p.Amount == 0
}

func (p SwapPlan) String() string {
	dir := "B->A"
	if p.AToB {
		dir = "A->B"
	}
	return fmt.Sprintf("%s %d (ui %.9f, leftover %.9f)", dir, p.Amount, p.UIAmount, p.Leftover)
}

// PlanSwap picks the token in excess of the ratio and sizes one swap out of it.
// If token B is in excess, swap leftoverB*pctB/100 of B; otherwise leftoverA*pctA/100 of A.
// The plan is not refined after the swap moves the price.
func PlanSwap(ratio DepositRatio, uiAmountA, uiAmountB, price float64, decimalsA, decimalsB uint8) SwapPlan {
	leftoverB := TokenBLeftover(ratio.PctA, ratio.PctB, uiAmountA, uiAmountB, price)
	if leftoverB > 0 {
		ui := TokenBSwapAmount(ratio.PctB, leftoverB)
		return SwapPlan{
			AToB:     false,
			Amount:   UIAmountToAmount(ui, decimalsB),
			UIAmount: ui,
			Leftover: leftoverB,
		}
	}
	leftoverA := TokenALeftover(ratio.PctA, ratio.PctB, uiAmountA, uiAmountB, price)
	ui := TokenASwapAmount(ratio.PctA, leftoverA)
	return SwapPlan{
		AToB:     true,
		Amount:   UIAmountToAmount(ui, decimalsA),
		UIAmount: ui,
		Leftover: leftoverA,
	}
}
