package orca

import (
	"encoding/binary"
	"fmt"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// WhirlpoolPool mirrors the Orca Whirlpool account.
type WhirlpoolPool struct {
	Discriminator [8]uint8 `bin:"skip"`

	WhirlpoolsConfig solana.PublicKey
	WhirlpoolBump    [1]uint8
	TickSpacing      uint16
	FeeTierIndexSeed [2]uint8
	FeeRate          uint16
	ProtocolFeeRate  uint16

	Liquidity        uint128.Uint128
	SqrtPrice        uint128.Uint128
	TickCurrentIndex int32

	ProtocolFeeOwedA uint64
	ProtocolFeeOwedB uint64

	TokenMintA       solana.PublicKey
	TokenVaultA      solana.PublicKey
	FeeGrowthGlobalA uint128.Uint128

	TokenMintB       solana.PublicKey
	TokenVaultB      solana.PublicKey
	FeeGrowthGlobalB uint128.Uint128

	RewardLastUpdatedTimestamp uint64
	RewardInfos                [3]WhirlpoolRewardInfo

	// PoolId is the account address, filled in by the fetcher.
	PoolId solana.PublicKey
}

type WhirlpoolRewardInfo struct {
	Mint                  solana.PublicKey
	Vault                 solana.PublicKey
	Authority             solana.PublicKey
	EmissionsPerSecondX64 uint128.Uint128
	GrowthGlobalX64       uint128.Uint128
}

// GetTokens returns the pool's mint pair in A, B order.
func (pool *WhirlpoolPool) GetTokens() (mintA, mintB solana.PublicKey) {
	return pool.TokenMintA, pool.TokenMintB
}

// Decode parses Whirlpool account data, discriminator included.
func (pool *WhirlpoolPool) Decode(data []byte) error {
	if uint64(len(data)) < pool.Span() {
		return fmt.Errorf("%w: whirlpool account is %d bytes, want %d", ErrInvalidAccountData, len(data), pool.Span())
	}
	copy(pool.Discriminator[:], data[:8])
	if pool.Discriminator != WhirlpoolAccountDiscriminator {
		return fmt.Errorf("%w: not a whirlpool account", ErrInvalidAccountData)
	}
	data = data[8:]

	offset := 0
	readKey := func() solana.PublicKey {
		k := solana.PublicKeyFromBytes(data[offset : offset+32])
		offset += 32
		return k
	}
	readU128 := func() uint128.Uint128 {
		v := uint128.FromBytes(data[offset : offset+16])
		offset += 16
		return v
	}
	readU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8
		return v
	}
	readU16 := func() uint16 {
		v := binary.LittleEndian.Uint16(data[offset : offset+2])
		offset += 2
		return v
	}

	pool.WhirlpoolsConfig = readKey()
	copy(pool.WhirlpoolBump[:], data[offset:offset+1])
	offset += 1
	pool.TickSpacing = readU16()
	copy(pool.FeeTierIndexSeed[:], data[offset:offset+2])
	offset += 2
	pool.FeeRate = readU16()
	pool.ProtocolFeeRate = readU16()

	pool.Liquidity = readU128()
	pool.SqrtPrice = readU128()
	pool.TickCurrentIndex = int32(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4

	pool.ProtocolFeeOwedA = readU64()
	pool.ProtocolFeeOwedB = readU64()

	pool.TokenMintA = readKey()
	pool.TokenVaultA = readKey()
	pool.FeeGrowthGlobalA = readU128()

	pool.TokenMintB = readKey()
	pool.TokenVaultB = readKey()
	pool.FeeGrowthGlobalB = readU128()

	pool.RewardLastUpdatedTimestamp = readU64()
	for i := 0; i < 3; i++ {
		pool.RewardInfos[i].Mint = readKey()
		pool.RewardInfos[i].Vault = readKey()
		pool.RewardInfos[i].Authority = readKey()
		pool.RewardInfos[i].EmissionsPerSecondX64 = readU128()
		pool.RewardInfos[i].GrowthGlobalX64 = readU128()
	}

	return nil
}

// Span returns the account size: 8 discriminator + 261 pool fields + 3*128 reward infos.
func (pool *WhirlpoolPool) Span() uint64 {
	return uint64(8 + 32 + 1 + 2 + 2 + 2 + 2 + 16 + 16 + 4 + 8 + 8 + 32 + 32 + 16 + 32 + 32 + 16 + 8 + 3*128)
}

// Offset returns a field's byte offset for RPC memcmp filters.
func (pool *WhirlpoolPool) Offset(field string) uint64 {
	switch field {
	case "TickSpacing":
		return 8 + 32 + 1 // 41
	case "FeeRate":
		return 8 + 32 + 1 + 2 + 2 // 45
	case "SqrtPrice":
		return 8 + 32 + 1 + 2 + 2 + 2 + 2 + 16 // 65
	case "TickCurrentIndex":
		return 8 + 32 + 1 + 2 + 2 + 2 + 2 + 16 + 16 // 81
	case "TokenMintA":
		return 8 + 32 + 1 + 2 + 2 + 2 + 2 + 16 + 16 + 4 + 8 + 8 // 101
	case "TokenMintB":
		return 101 + 32 + 32 + 16 // 181
	}
	return 0
}

// SwapStep is the result of one exact-input swap step within the active tick range.
type SwapStep struct {
	AmountIn      uint64
	AmountOut     uint64
	FeeAmount     uint64
	NextSqrtPrice uint128.Uint128
}

// ComputeSwapStep moves the price along a single liquidity segment. It does not cross
// initialized ticks, so the caller supplies the liquidity active at sqrtPrice.
func ComputeSwapStep(
	sqrtPrice uint128.Uint128,
	sqrtPriceLimit uint128.Uint128,
	liquidity uint128.Uint128,
	amount uint64,
	feeRate uint16,
	aToB bool,
) (SwapStep, error) {
	if liquidity.IsZero() {
		return SwapStep{}, fmt.Errorf("swap step: %w", ErrLiquidityZero)
	}
	if aToB && sqrtPriceLimit.Cmp(sqrtPrice) > 0 || !aToB && sqrtPriceLimit.Cmp(sqrtPrice) < 0 {
		return SwapStep{}, fmt.Errorf("%w: limit %s on wrong side of %s", ErrSqrtPriceOutOfBounds, sqrtPriceLimit, sqrtPrice)
	}
	if amount == 0 {
		return SwapStep{NextSqrtPrice: sqrtPrice}, nil
	}

	fee := cosmath.NewInt(int64(feeRate))
	amt := cosmath.NewIntFromUint64(amount)
	amountLessFee := amt.Mul(FEE_RATE_DENOMINATOR.Sub(fee)).Quo(FEE_RATE_DENOMINATOR)

	p := cosmath.NewIntFromBigInt(sqrtPrice.Big())
	l := cosmath.NewIntFromBigInt(liquidity.Big())

	var next cosmath.Int
	if aToB {
		lShifted := l.Mul(Q64)
		numerator, err := lShifted.SafeMul(p)
		if err != nil || numerator.BigInt().BitLen() > 250 {
			return SwapStep{}, fmt.Errorf("swap step: %w", ErrMultiplicationOverflow)
		}
		denominator := lShifted.Add(amountLessFee.Mul(p))
		next = numerator.Add(denominator).Sub(ONE_INT).Quo(denominator)
	} else {
		next = p.Add(amountLessFee.Mul(Q64).Quo(l))
	}
	limit := cosmath.NewIntFromBigInt(sqrtPriceLimit.Big())
	reachedLimit := aToB && next.LT(limit) || !aToB && next.GT(limit)

	var nextPrice uint128.Uint128
	var amountIn uint64
	var err error
	if reachedLimit {
		nextPrice = sqrtPriceLimit
		if aToB {
			amountIn, err = GetAmountDeltaA(nextPrice, sqrtPrice, liquidity, true)
		} else {
			amountIn, err = GetAmountDeltaB(sqrtPrice, nextPrice, liquidity, true)
		}
		if err != nil {
			return SwapStep{}, err
		}
	} else {
		nextPrice = uint128.FromBig(next.BigInt())
		amountIn = amountLessFee.Uint64()
	}

	var amountOut uint64
	if aToB {
		amountOut, err = GetAmountDeltaB(nextPrice, sqrtPrice, liquidity, false)
	} else {
		amountOut, err = GetAmountDeltaA(sqrtPrice, nextPrice, liquidity, false)
	}
	if err != nil {
		return SwapStep{}, err
	}

	feeAmount := amount - amountIn
	if reachedLimit {
		// Fee charged on the consumed input only.
		feeAmount = cosmath.NewIntFromUint64(amountIn).Mul(fee).Add(FEE_RATE_DENOMINATOR.Sub(fee)).Sub(ONE_INT).
			Quo(FEE_RATE_DENOMINATOR.Sub(fee)).Uint64()
	}

	return SwapStep{
		AmountIn:      amountIn,
		AmountOut:     amountOut,
		FeeAmount:     feeAmount,
		NextSqrtPrice: nextPrice,
	}, nil
}

// Quote estimates an exact-input swap against the pool's current price and liquidity.
func (pool *WhirlpoolPool) Quote(inputMint solana.PublicKey, amount uint64) (SwapStep, error) {
	var aToB bool
	switch inputMint {
	case pool.TokenMintA:
		aToB = true
	case pool.TokenMintB:
		aToB = false
	default:
		return SwapStep{}, fmt.Errorf("input mint %s not found in pool", inputMint)
	}
	limit := MAX_SQRT_PRICE_X64
	if aToB {
		limit = MIN_SQRT_PRICE_X64
	}
	return ComputeSwapStep(pool.SqrtPrice, limit, pool.Liquidity, amount, pool.FeeRate, aToB)
}
