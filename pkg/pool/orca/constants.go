package orca

import (
	"math/big"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// Program IDs
var (
	// Orca Whirlpool Program ID
	ORCA_WHIRLPOOL_PROGRAM_ID = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")

	TOKEN_PROGRAM_ID            = solana.TokenProgramID
	ASSOCIATED_TOKEN_PROGRAM_ID = solana.SPLAssociatedTokenAccountProgramID
	METADATA_PROGRAM_ID         = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// Tick array configuration. A Whirlpool tick array holds 88 ticks.
const (
	TICK_ARRAY_SIZE = 88
	MAX_TICK        = 443636
	MIN_TICK        = -443636
)

// Sqrt price bounds, Q64.64. MIN is sqrt_price_from_tick(MIN_TICK), MAX is sqrt_price_from_tick(MAX_TICK).
var (
	MIN_SQRT_PRICE_X64 = uint128.From64(4295048016)
	MAX_SQRT_PRICE_X64 = uint128.New(3871828160200520623, 4294886577) // 79226673515401279992447579055

	FEE_RATE_DENOMINATOR = math.NewInt(1_000_000)
)

// Seeds
const (
	TICK_ARRAY_SEED = "tick_array"
	POSITION_SEED   = "position"
	ORACLE_SEED     = "oracle"
)

// Anchor discriminators: sha256("global:<ix>")[:8] and sha256("account:<Name>")[:8].
var (
	OpenPositionDiscriminator      = []byte{135, 128, 47, 77, 15, 152, 240, 49}
	ClosePositionDiscriminator     = []byte{123, 134, 81, 0, 49, 68, 98, 98}
	IncreaseLiquidityDiscriminator = []byte{46, 156, 243, 118, 13, 205, 251, 178}
	DecreaseLiquidityDiscriminator = []byte{160, 38, 208, 111, 104, 91, 44, 1}
	CollectFeesDiscriminator       = []byte{164, 152, 207, 99, 30, 186, 19, 182}
	SwapDiscriminator              = []byte{248, 198, 158, 145, 225, 117, 135, 200}

	WhirlpoolAccountDiscriminator = [8]byte{63, 149, 209, 12, 225, 128, 99, 9}
	PositionAccountDiscriminator  = [8]byte{170, 188, 143, 228, 122, 64, 247, 208}
	TickArrayAccountDiscriminator = [8]byte{69, 97, 189, 190, 110, 7, 66, 187}
)

const (
	// Whirlpool account size including discriminator
	WHIRLPOOL_SIZE = 653

	TICK_SPACING_STABLE   = 1
	TICK_SPACING_STANDARD = 64
	TICK_SPACING_VOLATILE = 128
)

var (
	// Q64 (2^64)
	Q64 = math.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 64))

	ZERO_INT = math.NewInt(0)
	ONE_INT  = math.NewInt(1)
)
