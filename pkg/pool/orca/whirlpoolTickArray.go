package orca

import (
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// WhirlpoolTickArray mirrors the Orca TickArray account: 8 + 4 + 88*113 + 32 bytes.
type WhirlpoolTickArray struct {
	StartTickIndex int32
	Ticks          [TICK_ARRAY_SIZE]WhirlpoolTick
	Whirlpool      solana.PublicKey
}

// WhirlpoolTick is one 113 byte tick slot.
type WhirlpoolTick struct {
	Initialized          bool
	LiquidityNet         uint128.Uint128 // i128, two's complement
	LiquidityGross       uint128.Uint128
	FeeGrowthOutsideA    uint128.Uint128
	FeeGrowthOutsideB    uint128.Uint128
	RewardGrowthsOutside [3]uint128.Uint128
}

const tickArrayAccountSize = 8 + 4 + TICK_ARRAY_SIZE*113 + 32

// Decode parses Whirlpool tick array data, discriminator included.
func (t *WhirlpoolTickArray) Decode(data []byte) error {
	if len(data) < tickArrayAccountSize {
		return fmt.Errorf("%w: tick array is %d bytes, want %d", ErrInvalidAccountData, len(data), tickArrayAccountSize)
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	if disc != TickArrayAccountDiscriminator {
		return fmt.Errorf("%w: not a tick array account", ErrInvalidAccountData)
	}
	decoder := bin.NewBorshDecoder(data[8:])
	if err := decoder.Decode(t); err != nil {
		return fmt.Errorf("failed to decode tick array: %w", err)
	}
	return nil
}

// LiquidityNetBig returns the signed net liquidity of the tick.
func (tick *WhirlpoolTick) LiquidityNetBig() *big.Int {
	v := tick.LiquidityNet.Big()
	if tick.LiquidityNet.Hi&(1<<63) != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return v
}

// TickAt returns the tick slot for tickIndex, which must belong to this array.
func (t *WhirlpoolTickArray) TickAt(tickIndex int32, tickSpacing uint16) (*WhirlpoolTick, error) {
	offset := tickIndex - t.StartTickIndex
	spacing := int32(tickSpacing)
	if offset < 0 || offset%spacing != 0 || offset/spacing >= TICK_ARRAY_SIZE {
		return nil, fmt.Errorf("%w: tick %d not in array starting at %d", ErrInvalidTickIndex, tickIndex, t.StartTickIndex)
	}
	return &t.Ticks[offset/spacing], nil
}

func getWhirlpoolTickCount(tickSpacing int64) int64 {
	return tickSpacing * TICK_ARRAY_SIZE
}

// GetWhirlpoolTickArrayStartIndexByTick returns the start index of the tick array holding tickIndex.
func GetWhirlpoolTickArrayStartIndexByTick(tickIndex int64, tickSpacing int64) int64 {
	ticksInArray := getWhirlpoolTickCount(tickSpacing)
	return int64(floorDivision(int32(tickIndex), int32(ticksInArray))) * ticksInArray
}

// DeriveWhirlpoolTickArrayPDA derives a tick array address.
// Seeds: ["tick_array", whirlpool, start_tick_index.to_string()].
func DeriveWhirlpoolTickArrayPDA(whirlpoolPubkey solana.PublicKey, startTickIndex int64) (solana.PublicKey, error) {
	seeds := [][]byte{
		[]byte(TICK_ARRAY_SEED),
		whirlpoolPubkey.Bytes(),
		[]byte(fmt.Sprintf("%d", startTickIndex)),
	}
	pda, _, err := solana.FindProgramAddress(seeds, ORCA_WHIRLPOOL_PROGRAM_ID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find program address for tick array: %w", err)
	}
	return pda, nil
}

// DerivePositionTickArrayPDAs returns the tick arrays holding a position's lower and upper ticks.
func DerivePositionTickArrayPDAs(whirlpoolPubkey solana.PublicKey, tickLower, tickUpper int32, tickSpacing uint16) (lower, upper solana.PublicKey, err error) {
	lowerStart := GetWhirlpoolTickArrayStartIndexByTick(int64(tickLower), int64(tickSpacing))
	upperStart := GetWhirlpoolTickArrayStartIndexByTick(int64(tickUpper), int64(tickSpacing))
	lower, err = DeriveWhirlpoolTickArrayPDA(whirlpoolPubkey, lowerStart)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	upper, err = DeriveWhirlpoolTickArrayPDA(whirlpoolPubkey, upperStart)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	return lower, upper, nil
}

// DeriveMultipleWhirlpoolTickArrayPDAs derives the three tick arrays a swap traverses.
func DeriveMultipleWhirlpoolTickArrayPDAs(whirlpoolPubkey solana.PublicKey, currentTick int64, tickSpacing int64, aToB bool) (tickArray0, tickArray1, tickArray2 solana.PublicKey, err error) {
	tickCurrentIndex := int32(currentTick)
	tickSpacingI32 := int32(tickSpacing)
	ticksInArray := TICK_ARRAY_SIZE * tickSpacingI32

	startTickIndexBase := floorDivision(tickCurrentIndex, ticksInArray) * ticksInArray

	var offsets []int32
	if aToB {
		offsets = []int32{0, -1, -2}
	} else {
		// Already at the last initializable tick of the array: start from the next one.
		shifted := tickCurrentIndex+tickSpacingI32 >= startTickIndexBase+ticksInArray
		if shifted {
			offsets = []int32{1, 2, 3}
		} else {
			offsets = []int32{0, 1, 2}
		}
	}

	var pdas [3]solana.PublicKey
	for i, off := range offsets {
		pdas[i], err = DeriveWhirlpoolTickArrayPDA(whirlpoolPubkey, int64(startTickIndexBase+off*ticksInArray))
		if err != nil {
			return solana.PublicKey{}, solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("failed to derive tick_array%d: %w", i, err)
		}
	}
	return pdas[0], pdas[1], pdas[2], nil
}

// floorDivision rounds toward negative infinity.
func floorDivision(dividend, divisor int32) int32 {
	if (dividend < 0) != (divisor < 0) && dividend%divisor != 0 {
		return dividend/divisor - 1
	}
	return dividend / divisor
}

// DeriveWhirlpoolOraclePDA derives the oracle address. Seeds: ["oracle", whirlpool].
func DeriveWhirlpoolOraclePDA(whirlpoolPubkey solana.PublicKey) (solana.PublicKey, error) {
	seeds := [][]byte{
		[]byte(ORACLE_SEED),
		whirlpoolPubkey.Bytes(),
	}
	pda, _, err := solana.FindProgramAddress(seeds, ORCA_WHIRLPOOL_PROGRAM_ID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find program address for oracle: %w", err)
	}
	return pda, nil
}
