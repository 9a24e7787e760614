package orca

import (
	"bytes"
	"encoding/binary"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func TestDecodePosition(t *testing.T) {
	want := &WhirlpoolPosition{
		Whirlpool:            solana.NewWallet().PublicKey(),
		PositionMint:         solana.NewWallet().PublicKey(),
		Liquidity:            uint128.New(123456789, 7),
		TickLowerIndex:       -128,
		TickUpperIndex:       256,
		FeeGrowthCheckpointA: uint128.From64(11),
		FeeOwedA:             42,
		FeeGrowthCheckpointB: uint128.From64(12),
		FeeOwedB:             43,
	}
	want.RewardInfos[2].AmountOwed = 99

	data, err := want.Encode()
	require.NoError(t, err)
	require.Len(t, data, 216)
	assert.Equal(t, PositionLayoutV1, DetectPositionLayout(data))

	got, err := DecodePosition(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.InRange(-128))
	assert.False(t, got.InRange(256))

	padded := append(append([]byte{}, data...), make([]byte, 40)...)
	got, err = DecodePosition(padded)
	require.NoError(t, err)
	assert.Equal(t, want.Liquidity, got.Liquidity)
}

func TestDecodePositionRejectsUnknownLayouts(t *testing.T) {
	pos := &WhirlpoolPosition{TickLowerIndex: 0, TickUpperIndex: 64}
	data, err := pos.Encode()
	require.NoError(t, err)

	_, err = DecodePosition(data[:200])
	assert.ErrorIs(t, err, ErrUnknownPositionLayout)

	wrong := append([]byte{}, data...)
	copy(wrong, WhirlpoolAccountDiscriminator[:])
	_, err = DecodePosition(wrong)
	assert.ErrorIs(t, err, ErrUnknownPositionLayout)

	_, err = DecodePosition(nil)
	assert.ErrorIs(t, err, ErrUnknownPositionLayout)

	inverted := &WhirlpoolPosition{TickLowerIndex: 64, TickUpperIndex: 0}
	data, err = inverted.Encode()
	require.NoError(t, err)
	_, err = DecodePosition(data)
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestWhirlpoolPoolDecode(t *testing.T) {
	var pool WhirlpoolPool
	data := make([]byte, pool.Span())
	copy(data, WhirlpoolAccountDiscriminator[:])

	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()
	binary.LittleEndian.PutUint16(data[pool.Offset("TickSpacing"):], 64)
	binary.LittleEndian.PutUint16(data[pool.Offset("FeeRate"):], 3000)
	uint128.New(0, 1).PutBytes(data[pool.Offset("SqrtPrice"):])
	tick := int32(-42)
	binary.LittleEndian.PutUint32(data[pool.Offset("TickCurrentIndex"):], uint32(tick))
	copy(data[pool.Offset("TokenMintA"):], mintA.Bytes())
	copy(data[pool.Offset("TokenMintB"):], mintB.Bytes())

	require.NoError(t, pool.Decode(data))
	assert.Equal(t, uint64(653), pool.Span())
	assert.Equal(t, uint16(64), pool.TickSpacing)
	assert.Equal(t, uint16(3000), pool.FeeRate)
	assert.Equal(t, "18446744073709551616", pool.SqrtPrice.String())
	assert.Equal(t, int32(-42), pool.TickCurrentIndex)
	a, b := pool.GetTokens()
	assert.Equal(t, mintA, a)
	assert.Equal(t, mintB, b)

	assert.ErrorIs(t, pool.Decode(data[:600]), ErrInvalidAccountData)
	data[0] ^= 0xff
	assert.ErrorIs(t, pool.Decode(data), ErrInvalidAccountData)
}

func TestWhirlpoolTickArrayDecode(t *testing.T) {
	in := WhirlpoolTickArray{StartTickIndex: -5632, Whirlpool: solana.NewWallet().PublicKey()}
	in.Ticks[3].Initialized = true
	in.Ticks[3].LiquidityNet = uint128.Zero.SubWrap64(500) // -500
	in.Ticks[3].LiquidityGross = uint128.From64(500)

	buf := new(bytes.Buffer)
	buf.Write(TickArrayAccountDiscriminator[:])
	require.NoError(t, bin.NewBorshEncoder(buf).Encode(&in))
	require.Equal(t, tickArrayAccountSize, buf.Len())

	var out WhirlpoolTickArray
	require.NoError(t, out.Decode(buf.Bytes()))
	assert.Equal(t, in.StartTickIndex, out.StartTickIndex)
	assert.Equal(t, in.Whirlpool, out.Whirlpool)

	tick, err := out.TickAt(-5632+3*64, 64)
	require.NoError(t, err)
	assert.True(t, tick.Initialized)
	assert.Equal(t, int64(-500), tick.LiquidityNetBig().Int64())

	_, err = out.TickAt(-5632+1, 64)
	assert.ErrorIs(t, err, ErrInvalidTickIndex)
	_, err = out.TickAt(-5632+88*64, 64)
	assert.ErrorIs(t, err, ErrInvalidTickIndex)
}

func TestTickArrayStartIndex(t *testing.T) {
	assert.Equal(t, int64(0), GetWhirlpoolTickArrayStartIndexByTick(0, 64))
	assert.Equal(t, int64(0), GetWhirlpoolTickArrayStartIndexByTick(5631, 64))
	assert.Equal(t, int64(5632), GetWhirlpoolTickArrayStartIndexByTick(5632, 64))
	assert.Equal(t, int64(-5632), GetWhirlpoolTickArrayStartIndexByTick(-1, 64))
	assert.Equal(t, int64(-88), GetWhirlpoolTickArrayStartIndexByTick(-1, 1))
}

func TestDeriveSwapTickArrays(t *testing.T) {
	pool := solana.NewWallet().PublicKey()

	t0, t1, t2, err := DeriveMultipleWhirlpoolTickArrayPDAs(pool, 100, 64, true)
	require.NoError(t, err)
	want0, err := DeriveWhirlpoolTickArrayPDA(pool, 0)
	require.NoError(t, err)
	want1, err := DeriveWhirlpoolTickArrayPDA(pool, -5632)
	require.NoError(t, err)
	want2, err := DeriveWhirlpoolTickArrayPDA(pool, -11264)
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{want0, want1, want2}, []solana.PublicKey{t0, t1, t2})

	// Last initializable tick of the array shifts a b->a swap forward.
	t0, _, _, err = DeriveMultipleWhirlpoolTickArrayPDAs(pool, 5631-63, 64, false)
	require.NoError(t, err)
	next, err := DeriveWhirlpoolTickArrayPDA(pool, 5632)
	require.NoError(t, err)
	assert.Equal(t, next, t0)

	lower, upper, err := DerivePositionTickArrayPDAs(pool, -64, 5632, 64)
	require.NoError(t, err)
	assert.Equal(t, want1, lower)
	assert.Equal(t, next, upper)
}

func TestInstructionData(t *testing.T) {
	accts := PositionAccounts{
		Whirlpool:         solana.NewWallet().PublicKey(),
		Position:          solana.NewWallet().PublicKey(),
		PositionAuthority: solana.NewWallet().PublicKey(),
	}

	ix, err := BuildIncreaseLiquidityInstruction(accts, uint128.New(5, 1), 7, 9)
	require.NoError(t, err)
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+16+8+8)
	assert.Equal(t, IncreaseLiquidityDiscriminator, data[:8])
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(data[24:32]))
	assert.Equal(t, uint64(9), binary.LittleEndian.Uint64(data[32:40]))
	assert.Len(t, ix.Accounts(), 11)
	assert.True(t, ix.Accounts()[2].IsSigner)

	ix, err = BuildSwapInstruction(SwapAccounts{}, 100, 0, MAX_SQRT_PRICE_X64, true, false)
	require.NoError(t, err)
	data, err = ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+8+8+16+1+1)
	assert.Equal(t, SwapDiscriminator, data[:8])
	assert.Equal(t, byte(1), data[40])
	assert.Equal(t, byte(0), data[41])

	ix, err = BuildCollectFeesInstruction(accts)
	require.NoError(t, err)
	data, err = ix.Data()
	require.NoError(t, err)
	assert.Equal(t, CollectFeesDiscriminator, data)

	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	ix, position, err := BuildOpenPositionInstruction(owner, owner, accts.Whirlpool, mint, -128, 128)
	require.NoError(t, err)
	wantPosition, bump, err := DerivePositionPDA(mint)
	require.NoError(t, err)
	assert.Equal(t, wantPosition, position)
	data, err = ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+1+4+4)
	assert.Equal(t, bump, data[8])
	assert.Equal(t, int32(-128), int32(binary.LittleEndian.Uint32(data[9:13])))
}
