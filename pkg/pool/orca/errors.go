package orca

import "errors"

var (
	ErrLiquidityZero          = errors.New("liquidity delta is zero")
	ErrMultiplicationOverflow = errors.New("multiplication overflow")
	ErrTokenMaxExceeded       = errors.New("token amount exceeds u64")
	ErrInvalidTickIndex       = errors.New("tick index out of bounds")
	ErrSqrtPriceOutOfBounds   = errors.New("sqrt price out of bounds")
	ErrUnknownPositionLayout  = errors.New("unknown position account layout")
	ErrInvalidAccountData     = errors.New("invalid account data")
)
