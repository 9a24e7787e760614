package protocol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/yimingWOW/bloom/pkg/pool/orca"
	"github.com/yimingWOW/bloom/pkg/vault"
	"go.uber.org/zap"
	"lukechampine.com/uint128"
)

// WhirlpoolAdapter drives one live Whirlpool from a keeper wallet. The keeper key is
// the vault authority: it owns the position NFT, the reserve token accounts and the
// delegated approvals users grant.
type WhirlpoolAdapter struct {
	proto  *OrcaWhirlpoolProtocol
	pool   solana.PublicKey
	keeper solana.PrivateKey
	logger *zap.Logger
}

var _ vault.PoolAdapter = (*WhirlpoolAdapter)(nil)

func NewWhirlpoolAdapter(proto *OrcaWhirlpoolProtocol, pool solana.PublicKey, keeper solana.PrivateKey, logger *zap.Logger) *WhirlpoolAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhirlpoolAdapter{
		proto:  proto,
		pool:   pool,
		keeper: keeper,
		logger: logger.With(zap.Stringer("pool", pool)),
	}
}

// signer returns the key that signs for auth. A program-derived authority can only
// sign inside the vault program, so it is rejected here.
func (a *WhirlpoolAdapter) signer(auth vault.Authority) (solana.PrivateKey, error) {
	if auth.Derived() {
		return nil, fmt.Errorf("%w: program-derived authority %s cannot sign off-chain", vault.ErrAuthorityMismatch, auth.Address())
	}
	if !auth.Pool().Equals(a.pool) || !auth.Address().Equals(a.keeper.PublicKey()) {
		return nil, fmt.Errorf("%w: keeper %s does not sign for %s", vault.ErrAuthorityMismatch, a.keeper.PublicKey(), auth)
	}
	return a.keeper, nil
}

func poolState(pool *orca.WhirlpoolPool) vault.PoolState {
	return vault.PoolState{
		Address:          pool.PoolId,
		SqrtPrice:        pool.SqrtPrice,
		TickCurrentIndex: pool.TickCurrentIndex,
		TickSpacing:      pool.TickSpacing,
		FeeRate:          pool.FeeRate,
		Liquidity:        pool.Liquidity,
		TokenMintA:       pool.TokenMintA,
		TokenMintB:       pool.TokenMintB,
	}
}

func (a *WhirlpoolAdapter) QueryState(ctx context.Context) (vault.PoolState, error) {
	pool, err := a.proto.FetchPoolByID(ctx, a.pool)
	if err != nil {
		return vault.PoolState{}, err
	}
	return poolState(pool), nil
}

func (a *WhirlpoolAdapter) FetchPosition(ctx context.Context, h vault.PositionHandle) (vault.Position, error) {
	pos, err := a.proto.FetchPosition(ctx, h.Address)
	if err != nil {
		return vault.Position{}, err
	}
	if !pos.Whirlpool.Equals(a.pool) {
		return vault.Position{}, fmt.Errorf("%w: position %s belongs to pool %s", vault.ErrPreconditionMismatch, h.Address, pos.Whirlpool)
	}
	return vault.Position{
		Handle:    h,
		Range:     vault.PriceRange{LowerTick: pos.TickLowerIndex, UpperTick: pos.TickUpperIndex},
		Liquidity: pos.Liquidity,
		FeeOwedA:  pos.FeeOwedA,
		FeeOwedB:  pos.FeeOwedB,
	}, nil
}

func (a *WhirlpoolAdapter) OpenPosition(ctx context.Context, auth vault.Authority, r vault.PriceRange) (vault.PositionHandle, error) {
	signer, err := a.signer(auth)
	if err != nil {
		return vault.PositionHandle{}, err
	}
	mint := solana.NewWallet()
	ix, position, err := orca.BuildOpenPositionInstruction(signer.PublicKey(), auth.Address(), a.pool, mint.PublicKey(), r.LowerTick, r.UpperTick)
	if err != nil {
		return vault.PositionHandle{}, err
	}
	tokenAccount, _, err := solana.FindAssociatedTokenAddress(auth.Address(), mint.PublicKey())
	if err != nil {
		return vault.PositionHandle{}, err
	}
	sig, err := a.proto.SolClient.Send(ctx, []solana.PrivateKey{signer, mint.PrivateKey}, ix)
	if err != nil {
		return vault.PositionHandle{}, fmt.Errorf("open position: %w", err)
	}
	a.logger.Info("position opened", zap.Stringer("position", position), zap.Stringer("range", r), zap.Stringer("signature", sig))
	return vault.PositionHandle{Address: position, Mint: mint.PublicKey(), TokenAccount: tokenAccount}, nil
}

// positionAccounts resolves the accounts of a position instruction whose token side
// is owner's associated token accounts.
func (a *WhirlpoolAdapter) positionAccounts(ctx context.Context, auth vault.Authority, h vault.PositionHandle, owner solana.PublicKey) (*orca.WhirlpoolPool, orca.PositionAccounts, error) {
	pool, err := a.proto.FetchPoolByID(ctx, a.pool)
	if err != nil {
		return nil, orca.PositionAccounts{}, err
	}
	pos, err := a.proto.FetchPosition(ctx, h.Address)
	if err != nil {
		return nil, orca.PositionAccounts{}, err
	}
	lower, upper, err := orca.DerivePositionTickArrayPDAs(a.pool, pos.TickLowerIndex, pos.TickUpperIndex, pool.TickSpacing)
	if err != nil {
		return nil, orca.PositionAccounts{}, err
	}
	ownerA, _, err := solana.FindAssociatedTokenAddress(owner, pool.TokenMintA)
	if err != nil {
		return nil, orca.PositionAccounts{}, err
	}
	ownerB, _, err := solana.FindAssociatedTokenAddress(owner, pool.TokenMintB)
	if err != nil {
		return nil, orca.PositionAccounts{}, err
	}
	return pool, orca.PositionAccounts{
		Whirlpool:          a.pool,
		Position:           h.Address,
		PositionMint:       h.Mint,
		PositionTokenAcct:  h.TokenAccount,
		PositionAuthority:  auth.Address(),
		TokenOwnerAccountA: ownerA,
		TokenOwnerAccountB: ownerB,
		TokenVaultA:        pool.TokenVaultA,
		TokenVaultB:        pool.TokenVaultB,
		TickArrayLower:     lower,
		TickArrayUpper:     upper,
	}, nil
}

func (a *WhirlpoolAdapter) ClosePosition(ctx context.Context, auth vault.Authority, h vault.PositionHandle) error {
	signer, err := a.signer(auth)
	if err != nil {
		return err
	}
	_, accts, err := a.positionAccounts(ctx, auth, h, auth.Address())
	if err != nil {
		return err
	}
	ix, err := orca.BuildClosePositionInstruction(accts, signer.PublicKey())
	if err != nil {
		return err
	}
	if _, err := a.proto.SolClient.Send(ctx, []solana.PrivateKey{signer}, ix); err != nil {
		return fmt.Errorf("close position %s: %w", h.Address, err)
	}
	return nil
}

// IncreaseLiquidity pulls from funder's associated token accounts. When funder is not
// the keeper, funder must have approved the keeper as delegate on both accounts.
func (a *WhirlpoolAdapter) IncreaseLiquidity(ctx context.Context, auth vault.Authority, h vault.PositionHandle, funder solana.PublicKey, liquidity uint128.Uint128, maxA, maxB uint64) error {
	signer, err := a.signer(auth)
	if err != nil {
		return err
	}
	_, accts, err := a.positionAccounts(ctx, auth, h, funder)
	if err != nil {
		return err
	}
	ix, err := orca.BuildIncreaseLiquidityInstruction(accts, liquidity, maxA, maxB)
	if err != nil {
		return err
	}
	if _, err := a.proto.SolClient.Send(ctx, []solana.PrivateKey{signer}, ix); err != nil {
		return fmt.Errorf("increase liquidity: %w", err)
	}
	return nil
}

func (a *WhirlpoolAdapter) DecreaseLiquidity(ctx context.Context, auth vault.Authority, h vault.PositionHandle, recipient solana.PublicKey, liquidity uint128.Uint128, minA, minB uint64) error {
	signer, err := a.signer(auth)
	if err != nil {
		return err
	}
	pool, accts, err := a.positionAccounts(ctx, auth, h, recipient)
	if err != nil {
		return err
	}
	if err := a.ensureTokenAccounts(ctx, recipient, pool); err != nil {
		return err
	}
	ix, err := orca.BuildDecreaseLiquidityInstruction(accts, liquidity, minA, minB)
	if err != nil {
		return err
	}
	if _, err := a.proto.SolClient.Send(ctx, []solana.PrivateKey{signer}, ix); err != nil {
		return fmt.Errorf("decrease liquidity: %w", err)
	}
	return nil
}

// CollectFees reports the fees as the recipient's balance change, since the position's
// owed amounts are only current after the pool updates them.
func (a *WhirlpoolAdapter) CollectFees(ctx context.Context, auth vault.Authority, h vault.PositionHandle, recipient solana.PublicKey) (uint64, uint64, error) {
	signer, err := a.signer(auth)
	if err != nil {
		return 0, 0, err
	}
	pool, accts, err := a.positionAccounts(ctx, auth, h, recipient)
	if err != nil {
		return 0, 0, err
	}
	if err := a.ensureTokenAccounts(ctx, recipient, pool); err != nil {
		return 0, 0, err
	}
	beforeA, beforeB, err := a.balances(ctx, recipient, pool)
	if err != nil {
		return 0, 0, err
	}
	ix, err := orca.BuildCollectFeesInstruction(accts)
	if err != nil {
		return 0, 0, err
	}
	if _, err := a.proto.SolClient.Send(ctx, []solana.PrivateKey{signer}, ix); err != nil {
		return 0, 0, fmt.Errorf("collect fees: %w", err)
	}
	afterA, afterB, err := a.balances(ctx, recipient, pool)
	if err != nil {
		return 0, 0, err
	}
	return afterA - beforeA, afterB - beforeB, nil
}

func (a *WhirlpoolAdapter) Swap(ctx context.Context, auth vault.Authority, owner solana.PublicKey, params vault.SwapParams) (vault.SwapResult, error) {
	signer, err := a.signer(auth)
	if err != nil {
		return vault.SwapResult{}, err
	}
	if !owner.Equals(signer.PublicKey()) {
		return vault.SwapResult{}, fmt.Errorf("%w: %s cannot sign for %s", vault.ErrAuthorityMismatch, signer.PublicKey(), owner)
	}
	pool, err := a.proto.FetchPoolByID(ctx, a.pool)
	if err != nil {
		return vault.SwapResult{}, err
	}
	if err := a.ensureTokenAccounts(ctx, owner, pool); err != nil {
		return vault.SwapResult{}, err
	}
	ownerA, _, err := solana.FindAssociatedTokenAddress(owner, pool.TokenMintA)
	if err != nil {
		return vault.SwapResult{}, err
	}
	ownerB, _, err := solana.FindAssociatedTokenAddress(owner, pool.TokenMintB)
	if err != nil {
		return vault.SwapResult{}, err
	}
	accts, err := pool.BuildSwapAccounts(signer.PublicKey(), ownerA, ownerB, params.AToB)
	if err != nil {
		return vault.SwapResult{}, err
	}
	ix, err := orca.BuildSwapInstruction(accts, params.Amount, params.OtherAmountThreshold, params.SqrtPriceLimit, params.AmountSpecifiedIsInput, params.AToB)
	if err != nil {
		return vault.SwapResult{}, err
	}

	inputMint := pool.TokenMintB
	if params.AToB {
		inputMint = pool.TokenMintA
	}
	// single segment only; tick crossings are not modelled
	if q, err := pool.Quote(inputMint, params.Amount); err == nil {
		a.logger.Debug("swap quote",
			zap.Uint64("amountIn", q.AmountIn),
			zap.Uint64("amountOut", q.AmountOut),
			zap.Uint64("fee", q.FeeAmount))
	}

	beforeA, beforeB, err := a.balances(ctx, owner, pool)
	if err != nil {
		return vault.SwapResult{}, err
	}
	sig, err := a.proto.SolClient.Send(ctx, []solana.PrivateKey{signer}, ix)
	if err != nil {
		return vault.SwapResult{}, fmt.Errorf("swap: %w", err)
	}
	afterA, afterB, err := a.balances(ctx, owner, pool)
	if err != nil {
		return vault.SwapResult{}, err
	}

	res := vault.SwapResult{BalanceA: afterA, BalanceB: afterB}
	if params.AToB {
		res.AmountIn, res.AmountOut = beforeA-afterA, afterB-beforeB
	} else {
		res.AmountIn, res.AmountOut = beforeB-afterB, afterA-beforeA
	}
	a.logger.Info("swap",
		zap.Bool("aToB", params.AToB),
		zap.Uint64("amountIn", res.AmountIn),
		zap.Uint64("amountOut", res.AmountOut),
		zap.Stringer("signature", sig))
	return res, nil
}

func (a *WhirlpoolAdapter) balances(ctx context.Context, owner solana.PublicKey, pool *orca.WhirlpoolPool) (uint64, uint64, error) {
	balA, err := a.proto.SolClient.GetUserTokenBalance(ctx, owner, pool.TokenMintA)
	if err != nil {
		return 0, 0, err
	}
	balB, err := a.proto.SolClient.GetUserTokenBalance(ctx, owner, pool.TokenMintB)
	if err != nil {
		return 0, 0, err
	}
	return balA, balB, nil
}

func (a *WhirlpoolAdapter) ensureTokenAccounts(ctx context.Context, owner solana.PublicKey, pool *orca.WhirlpoolPool) error {
	for _, mint := range []solana.PublicKey{pool.TokenMintA, pool.TokenMintB} {
		if _, err := a.proto.SolClient.EnsureTokenAccount(ctx, a.keeper, owner, mint); err != nil {
			return err
		}
	}
	return nil
}
