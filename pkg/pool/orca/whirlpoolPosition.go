package orca

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// PositionLayoutVersion identifies a Position account schema.
type PositionLayoutVersion uint8

const (
	PositionLayoutUnknown PositionLayoutVersion = iota
	// PositionLayoutV1 is the 216 byte layout with three reward slots.
	PositionLayoutV1
)

func (v PositionLayoutVersion) String() string {
	switch v {
	case PositionLayoutV1:
		return "v1"
	default:
		return "unknown"
	}
}

// WhirlpoolPosition mirrors the Orca Position account.
type WhirlpoolPosition struct {
	Whirlpool            solana.PublicKey
	PositionMint         solana.PublicKey
	Liquidity            uint128.Uint128
	TickLowerIndex       int32
	TickUpperIndex       int32
	FeeGrowthCheckpointA uint128.Uint128
	FeeOwedA             uint64
	FeeGrowthCheckpointB uint128.Uint128
	FeeOwedB             uint64
	RewardInfos          [3]PositionRewardInfo
}

type PositionRewardInfo struct {
	GrowthInsideCheckpoint uint128.Uint128
	AmountOwed             uint64
}

type positionSchema struct {
	version       PositionLayoutVersion
	discriminator [8]byte
	size          int
}

// Newest first. Data longer than size is accepted since accounts may be over-allocated.
var positionSchemas = []positionSchema{
	{version: PositionLayoutV1, discriminator: PositionAccountDiscriminator, size: 216},
}

// DetectPositionLayout returns the schema the raw account data matches.
func DetectPositionLayout(data []byte) PositionLayoutVersion {
	for _, s := range positionSchemas {
		if len(data) >= s.size && bytes.Equal(data[:8], s.discriminator[:]) {
			return s.version
		}
	}
	return PositionLayoutUnknown
}

// DecodePosition is the single decoder for Position accounts.
func DecodePosition(data []byte) (*WhirlpoolPosition, error) {
	version := DetectPositionLayout(data)
	switch version {
	case PositionLayoutV1:
		pos := &WhirlpoolPosition{}
		decoder := bin.NewBorshDecoder(data[8:])
		if err := decoder.Decode(pos); err != nil {
			return nil, fmt.Errorf("failed to decode position %s: %w", version, err)
		}
		if pos.TickLowerIndex >= pos.TickUpperIndex {
			return nil, fmt.Errorf("%w: tick range [%d, %d)", ErrInvalidAccountData, pos.TickLowerIndex, pos.TickUpperIndex)
		}
		return pos, nil
	default:
		n := len(data)
		if n > 8 {
			n = 8
		}
		return nil, fmt.Errorf("%w: %d bytes, discriminator %v", ErrUnknownPositionLayout, len(data), data[:n])
	}
}

// Encode serializes the position in the current layout, discriminator included.
func (p *WhirlpoolPosition) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(PositionAccountDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode position: %w", err)
	}
	return buf.Bytes(), nil
}

// InRange reports whether tick lies in [lower, upper).
func (p *WhirlpoolPosition) InRange(tick int32) bool {
	return p.TickLowerIndex <= tick && tick < p.TickUpperIndex
}

// DerivePositionPDA derives the Position account owned by a position mint.
func DerivePositionPDA(positionMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	seeds := [][]byte{
		[]byte(POSITION_SEED),
		positionMint.Bytes(),
	}
	pda, bump, err := solana.FindProgramAddress(seeds, ORCA_WHIRLPOOL_PROGRAM_ID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to find program address for position: %w", err)
	}
	return pda, bump, nil
}
