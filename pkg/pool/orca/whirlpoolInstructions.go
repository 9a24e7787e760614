package orca

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// PositionAccounts groups the accounts every position instruction touches.
type PositionAccounts struct {
	Whirlpool          solana.PublicKey
	Position           solana.PublicKey
	PositionMint       solana.PublicKey
	PositionTokenAcct  solana.PublicKey
	PositionAuthority  solana.PublicKey
	TokenOwnerAccountA solana.PublicKey
	TokenOwnerAccountB solana.PublicKey
	TokenVaultA        solana.PublicKey
	TokenVaultB        solana.PublicKey
	TickArrayLower     solana.PublicKey
	TickArrayUpper     solana.PublicKey
}

type openPositionArgs struct {
	PositionBump   uint8
	TickLowerIndex int32
	TickUpperIndex int32
}

type modifyLiquidityArgs struct {
	LiquidityAmount uint128.Uint128
	TokenA          uint64
	TokenB          uint64
}

type swapArgs struct {
	Amount                 uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         uint128.Uint128
	AmountSpecifiedIsInput bool
	AToB                   bool
}

func encodeInstructionData(discriminator []byte, args interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator)
	if args != nil {
		if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
			return nil, fmt.Errorf("failed to encode instruction args: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// BuildOpenPositionInstruction opens a position over [tickLower, tickUpper). positionMint must sign.
func BuildOpenPositionInstruction(
	funder solana.PublicKey,
	owner solana.PublicKey,
	whirlpool solana.PublicKey,
	positionMint solana.PublicKey,
	tickLower int32,
	tickUpper int32,
) (solana.Instruction, solana.PublicKey, error) {
	position, bump, err := DerivePositionPDA(positionMint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	positionTokenAccount, _, err := solana.FindAssociatedTokenAddress(owner, positionMint)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to derive position token account: %w", err)
	}
	data, err := encodeInstructionData(OpenPositionDiscriminator, openPositionArgs{
		PositionBump:   bump,
		TickLowerIndex: tickLower,
		TickUpperIndex: tickUpper,
	})
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(funder).WRITE().SIGNER(),
		solana.Meta(owner),
		solana.Meta(position).WRITE(),
		solana.Meta(positionMint).WRITE().SIGNER(),
		solana.Meta(positionTokenAccount).WRITE(),
		solana.Meta(whirlpool),
		solana.Meta(TOKEN_PROGRAM_ID),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(ASSOCIATED_TOKEN_PROGRAM_ID),
	}
	return solana.NewInstruction(ORCA_WHIRLPOOL_PROGRAM_ID, accounts, data), position, nil
}

// BuildClosePositionInstruction burns the position NFT and returns rent to receiver.
func BuildClosePositionInstruction(accts PositionAccounts, receiver solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeInstructionData(ClosePositionDiscriminator, nil)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(accts.PositionAuthority).SIGNER(),
		solana.Meta(receiver).WRITE(),
		solana.Meta(accts.Position).WRITE(),
		solana.Meta(accts.PositionMint).WRITE(),
		solana.Meta(accts.PositionTokenAcct).WRITE(),
		solana.Meta(TOKEN_PROGRAM_ID),
	}
	return solana.NewInstruction(ORCA_WHIRLPOOL_PROGRAM_ID, accounts, data), nil
}

func modifyLiquidityAccounts(accts PositionAccounts) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.Meta(accts.Whirlpool).WRITE(),
		solana.Meta(TOKEN_PROGRAM_ID),
		solana.Meta(accts.PositionAuthority).SIGNER(),
		solana.Meta(accts.Position).WRITE(),
		solana.Meta(accts.PositionTokenAcct),
		solana.Meta(accts.TokenOwnerAccountA).WRITE(),
		solana.Meta(accts.TokenOwnerAccountB).WRITE(),
		solana.Meta(accts.TokenVaultA).WRITE(),
		solana.Meta(accts.TokenVaultB).WRITE(),
		solana.Meta(accts.TickArrayLower).WRITE(),
		solana.Meta(accts.TickArrayUpper).WRITE(),
	}
}

// BuildIncreaseLiquidityInstruction deposits liquidity, pulling at most tokenMaxA/tokenMaxB.
func BuildIncreaseLiquidityInstruction(accts PositionAccounts, liquidity uint128.Uint128, tokenMaxA, tokenMaxB uint64) (solana.Instruction, error) {
	data, err := encodeInstructionData(IncreaseLiquidityDiscriminator, modifyLiquidityArgs{
		LiquidityAmount: liquidity,
		TokenA:          tokenMaxA,
		TokenB:          tokenMaxB,
	})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ORCA_WHIRLPOOL_PROGRAM_ID, modifyLiquidityAccounts(accts), data), nil
}

// BuildDecreaseLiquidityInstruction withdraws liquidity, requiring at least tokenMinA/tokenMinB.
func BuildDecreaseLiquidityInstruction(accts PositionAccounts, liquidity uint128.Uint128, tokenMinA, tokenMinB uint64) (solana.Instruction, error) {
	data, err := encodeInstructionData(DecreaseLiquidityDiscriminator, modifyLiquidityArgs{
		LiquidityAmount: liquidity,
		TokenA:          tokenMinA,
		TokenB:          tokenMinB,
	})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ORCA_WHIRLPOOL_PROGRAM_ID, modifyLiquidityAccounts(accts), data), nil
}

// BuildCollectFeesInstruction moves owed fees to the owner token accounts.
func BuildCollectFeesInstruction(accts PositionAccounts) (solana.Instruction, error) {
	data, err := encodeInstructionData(CollectFeesDiscriminator, nil)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(accts.Whirlpool),
		solana.Meta(accts.PositionAuthority).SIGNER(),
		solana.Meta(accts.Position).WRITE(),
		solana.Meta(accts.PositionTokenAcct),
		solana.Meta(accts.TokenOwnerAccountA).WRITE(),
		solana.Meta(accts.TokenVaultA).WRITE(),
		solana.Meta(accts.TokenOwnerAccountB).WRITE(),
		solana.Meta(accts.TokenVaultB).WRITE(),
		solana.Meta(TOKEN_PROGRAM_ID),
	}
	return solana.NewInstruction(ORCA_WHIRLPOOL_PROGRAM_ID, accounts, data), nil
}

// SwapAccounts lists the accounts of a swap against one pool.
type SwapAccounts struct {
	TokenAuthority     solana.PublicKey
	Whirlpool          solana.PublicKey
	TokenOwnerAccountA solana.PublicKey
	TokenVaultA        solana.PublicKey
	TokenOwnerAccountB solana.PublicKey
	TokenVaultB        solana.PublicKey
	TickArray0         solana.PublicKey
	TickArray1         solana.PublicKey
	TickArray2         solana.PublicKey
	Oracle             solana.PublicKey
}

// BuildSwapInstruction builds a Whirlpool swap.
func BuildSwapInstruction(
	accts SwapAccounts,
	amount uint64,
	otherAmountThreshold uint64,
	sqrtPriceLimit uint128.Uint128,
	amountSpecifiedIsInput bool,
	aToB bool,
) (solana.Instruction, error) {
	data, err := encodeInstructionData(SwapDiscriminator, swapArgs{
		Amount:                 amount,
		OtherAmountThreshold:   otherAmountThreshold,
		SqrtPriceLimit:         sqrtPriceLimit,
		AmountSpecifiedIsInput: amountSpecifiedIsInput,
		AToB:                   aToB,
	})
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(TOKEN_PROGRAM_ID),
		solana.Meta(accts.TokenAuthority).SIGNER(),
		solana.Meta(accts.Whirlpool).WRITE(),
		solana.Meta(accts.TokenOwnerAccountA).WRITE(),
		solana.Meta(accts.TokenVaultA).WRITE(),
		solana.Meta(accts.TokenOwnerAccountB).WRITE(),
		solana.Meta(accts.TokenVaultB).WRITE(),
		solana.Meta(accts.TickArray0).WRITE(),
		solana.Meta(accts.TickArray1).WRITE(),
		solana.Meta(accts.TickArray2).WRITE(),
		solana.Meta(accts.Oracle),
	}
	return solana.NewInstruction(ORCA_WHIRLPOOL_PROGRAM_ID, accounts, data), nil
}

// BuildSwapAccounts derives the tick arrays and oracle a swap from the pool's current tick needs.
func (pool *WhirlpoolPool) BuildSwapAccounts(authority, ownerA, ownerB solana.PublicKey, aToB bool) (SwapAccounts, error) {
	t0, t1, t2, err := DeriveMultipleWhirlpoolTickArrayPDAs(pool.PoolId, int64(pool.TickCurrentIndex), int64(pool.TickSpacing), aToB)
	if err != nil {
		return SwapAccounts{}, err
	}
	oracle, err := DeriveWhirlpoolOraclePDA(pool.PoolId)
	if err != nil {
		return SwapAccounts{}, err
	}
	return SwapAccounts{
		TokenAuthority:     authority,
		Whirlpool:          pool.PoolId,
		TokenOwnerAccountA: ownerA,
		TokenVaultA:        pool.TokenVaultA,
		TokenOwnerAccountB: ownerB,
		TokenVaultB:        pool.TokenVaultB,
		TickArray0:         t0,
		TickArray1:         t1,
		TickArray2:         t2,
		Oracle:             oracle,
	}, nil
}
