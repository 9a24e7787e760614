package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrPositionOutOfRange is returned when a freshly opened or re-checked position does
	// not bracket the pool's current tick. Fatal for the invocation.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrMiscalculation is returned when a computed token requirement exceeds vault reserves.
	ErrMiscalculation = errors.New("miscalculation: required amount exceeds reserves")

	// ErrPreconditionMismatch groups structural linkage failures detected before any mutation.
	ErrPreconditionMismatch = errors.New("precondition mismatch")

	ErrInvalidPoolTokenMint = fmt.Errorf("%w: invalid pool token mint", ErrPreconditionMismatch)
	ErrTokenMintMismatch    = fmt.Errorf("%w: token mint does not match pool", ErrPreconditionMismatch)
	ErrAuthorityMismatch    = fmt.Errorf("%w: authority not scoped to this vault", ErrPreconditionMismatch)
	ErrInvalidTickRange     = fmt.Errorf("%w: invalid tick range", ErrPreconditionMismatch)

	ErrZeroLiquidity     = errors.New("zero liquidity")
	ErrNoShares          = errors.New("no shares to redeem")
	ErrZeroShareSupply   = errors.New("share supply is zero")
	ErrLiquidityOverflow = errors.New("liquidity overflows u128")
	ErrShareOverflow     = errors.New("share amount overflows u64")
)

// IsFatal reports whether err aborts an invocation because of a math or range defect
// rather than a bad input.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPositionOutOfRange) || errors.Is(err, ErrMiscalculation)
}
