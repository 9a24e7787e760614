package vault

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// InitParams are the linkage addresses and the initial range of a new vault.
type InitParams struct {
	Address    solana.PublicKey
	Pool       solana.PublicKey
	TokenMintA solana.PublicKey
	TokenMintB solana.PublicKey
	ShareMint  solana.PublicKey
	Admin      solana.PublicKey
	LowerTick  int32
	UpperTick  int32
}

// Vault runs the public operations for one vault account. It holds no pool or
// position state between calls; every read is an explicit refresh.
// Callers must serialize operations on the same vault.
type Vault struct {
	account Account
	auth    Authority
	pool    PoolAdapter
	tokens  TokenRegistry
	logger  *zap.Logger
}

// Initialize checks linkage against the live pool and share mint, then opens the
// initial position over [LowerTick, UpperTick).
func Initialize(ctx context.Context, params InitParams, auth Authority, pool PoolAdapter, tokens TokenRegistry, logger *zap.Logger) (*Vault, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := auth.Check(params.Address, params.Pool); err != nil {
		return nil, err
	}

	state, err := pool.QueryState(ctx)
	if err != nil {
		return nil, fmt.Errorf("query pool: %w", err)
	}
	if !state.Address.IsZero() && !state.Address.Equals(params.Pool) {
		return nil, fmt.Errorf("%w: adapter serves pool %s, vault expects %s", ErrPreconditionMismatch, state.Address, params.Pool)
	}
	if !state.TokenMintA.Equals(params.TokenMintA) || !state.TokenMintB.Equals(params.TokenMintB) {
		return nil, fmt.Errorf("%w: pool pair %s/%s, vault pair %s/%s", ErrTokenMintMismatch,
			state.TokenMintA, state.TokenMintB, params.TokenMintA, params.TokenMintB)
	}
	r, err := NewPriceRange(params.LowerTick, params.UpperTick, state.TickSpacing)
	if err != nil {
		return nil, err
	}

	mintAuthority, err := tokens.MintAuthority(ctx, params.ShareMint)
	if err != nil {
		return nil, fmt.Errorf("share mint authority: %w", err)
	}
	if !mintAuthority.Equals(auth.Address()) {
		return nil, fmt.Errorf("%w: share mint %s controlled by %s", ErrInvalidPoolTokenMint, params.ShareMint, mintAuthority)
	}
	supply, err := tokens.Supply(ctx, params.ShareMint)
	if err != nil {
		return nil, fmt.Errorf("share supply: %w", err)
	}
	if supply != 0 {
		return nil, fmt.Errorf("%w: share mint %s already has supply %d", ErrInvalidPoolTokenMint, params.ShareMint, supply)
	}

	handle, err := pool.OpenPosition(ctx, auth, r)
	if err != nil {
		return nil, fmt.Errorf("open initial position %s: %w", r, err)
	}
	logger.Info("vault initialized",
		zap.Stringer("vault", params.Address),
		zap.Stringer("pool", params.Pool),
		zap.Stringer("position", handle.Address),
		zap.Stringer("range", r))

	return &Vault{
		account: Account{
			Address:    params.Address,
			Pool:       params.Pool,
			TokenMintA: params.TokenMintA,
			TokenMintB: params.TokenMintB,
			ShareMint:  params.ShareMint,
			Admin:      params.Admin,
			Position:   handle,
			Range:      r,
		},
		auth:   auth,
		pool:   pool,
		tokens: tokens,
		logger: logger,
	}, nil
}

// Load binds an existing vault account to its collaborators.
func Load(account Account, auth Authority, pool PoolAdapter, tokens TokenRegistry, logger *zap.Logger) (*Vault, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := auth.Check(account.Address, account.Pool); err != nil {
		return nil, err
	}
	if account.Position.IsZero() {
		return nil, fmt.Errorf("%w: vault %s has no position", ErrPreconditionMismatch, account.Address)
	}
	return &Vault{account: account, auth: auth, pool: pool, tokens: tokens, logger: logger}, nil
}

// Account returns a copy of the vault record.
func (v *Vault) Account() Account { return v.account }

func (v *Vault) Authority() Authority { return v.auth }

// RefreshPool re-reads the pool.
func (v *Vault) RefreshPool(ctx context.Context) (PoolState, error) {
	state, err := v.pool.QueryState(ctx)
	if err != nil {
		return PoolState{}, fmt.Errorf("refresh pool: %w", err)
	}
	return state, nil
}

// RefreshPosition re-reads the active position.
func (v *Vault) RefreshPosition(ctx context.Context) (Position, error) {
	pos, err := v.pool.FetchPosition(ctx, v.account.Position)
	if err != nil {
		return Position{}, fmt.Errorf("refresh position %s: %w", v.account.Position.Address, err)
	}
	return pos, nil
}

// activePosition re-reads the position. Its own range is authoritative over the
// recorded one.
func (v *Vault) activePosition(ctx context.Context) (Position, error) {
	pos, err := v.RefreshPosition(ctx)
	if err != nil {
		return Position{}, err
	}
	if pos.Range != v.account.Range {
		v.logger.Warn("recorded range differs from position",
			zap.Stringer("position", pos.Handle.Address),
			zap.Stringer("recorded", v.account.Range),
			zap.Stringer("actual", pos.Range))
	}
	return pos, nil
}

// RefreshReserves re-reads the vault's idle balances.
func (v *Vault) RefreshReserves(ctx context.Context) (Reserves, error) {
	a, err := v.tokens.BalanceOf(ctx, v.auth.Address(), v.account.TokenMintA)
	if err != nil {
		return Reserves{}, fmt.Errorf("refresh reserve A: %w", err)
	}
	b, err := v.tokens.BalanceOf(ctx, v.auth.Address(), v.account.TokenMintB)
	if err != nil {
		return Reserves{}, fmt.Errorf("refresh reserve B: %w", err)
	}
	return Reserves{TokenA: a, TokenB: b}, nil
}

func (v *Vault) decimals(ctx context.Context) (uint8, uint8, error) {
	decA, err := v.tokens.Decimals(ctx, v.account.TokenMintA)
	if err != nil {
		return 0, 0, fmt.Errorf("decimals A: %w", err)
	}
	decB, err := v.tokens.Decimals(ctx, v.account.TokenMintB)
	if err != nil {
		return 0, 0, fmt.Errorf("decimals B: %w", err)
	}
	return decA, decB, nil
}

func (v *Vault) rangeStatus(ctx context.Context, state PoolState, r PriceRange) (RangeStatus, error) {
	decA, decB, err := v.decimals(ctx)
	if err != nil {
		return RangeStatus{}, err
	}
	lowerSqrt, upperSqrt, err := r.SqrtPrices()
	if err != nil {
		return RangeStatus{}, err
	}
	return RangeStatus{
		LowerTick:    r.LowerTick,
		CurrentTick:  state.TickCurrentIndex,
		UpperTick:    r.UpperTick,
		LowerPrice:   SqrtPriceX64ToPrice(lowerSqrt, decA, decB),
		CurrentPrice: SqrtPriceX64ToPrice(state.SqrtPrice, decA, decB),
		UpperPrice:   SqrtPriceX64ToPrice(upperSqrt, decA, decB),
		InRange:      r.Contains(state.TickCurrentIndex),
	}, nil
}

// Status reports the active position's range against the current pool price.
func (v *Vault) Status(ctx context.Context) (RangeStatus, error) {
	state, err := v.RefreshPool(ctx)
	if err != nil {
		return RangeStatus{}, err
	}
	pos, err := v.activePosition(ctx)
	if err != nil {
		return RangeStatus{}, err
	}
	return v.rangeStatus(ctx, state, pos.Range)
}

// SuggestRange is RangeAround the pool's current tick.
func (v *Vault) SuggestRange(ctx context.Context, spreadPct float64) (PriceRange, error) {
	state, err := v.RefreshPool(ctx)
	if err != nil {
		return PriceRange{}, err
	}
	return RangeAround(state.TickCurrentIndex, state.TickSpacing, spreadPct)
}

// AddLiquidity deposits amountAIn of token A (with the matching token B) from user into
// the active position and mints shares to user. Both tokens are pulled by the pool under
// a delegated approval to the vault authority.
func (v *Vault) AddLiquidity(ctx context.Context, user solana.PublicKey, amountAIn uint64) (DepositReceipt, error) {
	state, err := v.RefreshPool(ctx)
	if err != nil {
		return DepositReceipt{}, err
	}
	pos, err := v.activePosition(ctx)
	if err != nil {
		return DepositReceipt{}, err
	}
	if !pos.Range.Contains(state.TickCurrentIndex) {
		return DepositReceipt{}, fmt.Errorf("%w: tick %d outside %s", ErrPositionOutOfRange, state.TickCurrentIndex, pos.Range)
	}
	_, upperSqrt, err := pos.Range.SqrtPrices()
	if err != nil {
		return DepositReceipt{}, err
	}
	liquidity, err := LiquidityFromTokenA(amountAIn, state.SqrtPrice, upperSqrt)
	if err != nil {
		return DepositReceipt{}, err
	}
	if liquidity.IsZero() {
		return DepositReceipt{}, fmt.Errorf("%w: %d token A buys no liquidity", ErrZeroLiquidity, amountAIn)
	}
	maxA, maxB, err := MaxTokenAmounts(state, pos.Range, liquidity)
	if err != nil {
		return DepositReceipt{}, err
	}
	v.logger.Info("deposit sized",
		zap.Stringer("user", user),
		zap.Uint64("amountAIn", amountAIn),
		zap.Stringer("liquidity", liquidity),
		zap.Uint64("maxA", maxA),
		zap.Uint64("maxB", maxB))

	supply, err := v.tokens.Supply(ctx, v.account.ShareMint)
	if err != nil {
		return DepositReceipt{}, fmt.Errorf("share supply: %w", err)
	}
	shares, err := CalculateShareMintAmount(liquidity, pos.Liquidity, supply)
	if err != nil {
		return DepositReceipt{}, err
	}

	if err := v.tokens.Approve(ctx, user, v.account.TokenMintA, v.auth.Address(), maxA); err != nil {
		return DepositReceipt{}, fmt.Errorf("approve token A: %w", err)
	}
	if err := v.tokens.Approve(ctx, user, v.account.TokenMintB, v.auth.Address(), maxB); err != nil {
		return DepositReceipt{}, fmt.Errorf("approve token B: %w", err)
	}
	if err := v.pool.IncreaseLiquidity(ctx, v.auth, v.account.Position, user, liquidity, maxA, maxB); err != nil {
		return DepositReceipt{}, fmt.Errorf("increase liquidity: %w", err)
	}
	if err := v.tokens.MintTo(ctx, v.auth, v.account.ShareMint, user, shares); err != nil {
		return DepositReceipt{}, fmt.Errorf("mint shares: %w", err)
	}
	v.logger.Info("shares minted",
		zap.Stringer("user", user),
		zap.Uint64("shares", shares),
		zap.Uint64("supplyBefore", supply))

	return DepositReceipt{Liquidity: liquidity, MaxAmountA: maxA, MaxAmountB: maxB, SharesMinted: shares}, nil
}

// RemoveLiquidity burns the user's whole share balance and pays out the proportional
// position liquidity. While the position is out of range it does nothing and succeeds.
func (v *Vault) RemoveLiquidity(ctx context.Context, user solana.PublicKey) (WithdrawReceipt, error) {
	state, err := v.RefreshPool(ctx)
	if err != nil {
		return WithdrawReceipt{}, err
	}
	pos, err := v.activePosition(ctx)
	if err != nil {
		return WithdrawReceipt{}, err
	}
	if !pos.Range.Contains(state.TickCurrentIndex) {
		v.logger.Warn("position out of range, withdrawal skipped",
			zap.Stringer("user", user),
			zap.Int32("tick", state.TickCurrentIndex),
			zap.Stringer("range", pos.Range))
		return WithdrawReceipt{}, nil
	}

	shares, err := v.tokens.BalanceOf(ctx, user, v.account.ShareMint)
	if err != nil {
		return WithdrawReceipt{}, fmt.Errorf("share balance: %w", err)
	}
	if shares == 0 {
		return WithdrawReceipt{}, fmt.Errorf("%w: %s", ErrNoShares, user)
	}
	supply, err := v.tokens.Supply(ctx, v.account.ShareMint)
	if err != nil {
		return WithdrawReceipt{}, fmt.Errorf("share supply: %w", err)
	}
	liquidity, err := CalculateRemoveLiquidityAmount(shares, supply, pos.Liquidity)
	if err != nil {
		return WithdrawReceipt{}, err
	}
	if liquidity.IsZero() {
		return WithdrawReceipt{}, fmt.Errorf("%w: %d of %d shares redeem nothing", ErrZeroLiquidity, shares, supply)
	}

	beforeA, beforeB, err := v.balancesOf(ctx, user)
	if err != nil {
		return WithdrawReceipt{}, err
	}
	if err := v.pool.DecreaseLiquidity(ctx, v.auth, v.account.Position, user, liquidity, 0, 0); err != nil {
		return WithdrawReceipt{}, fmt.Errorf("decrease liquidity: %w", err)
	}
	if err := v.tokens.Approve(ctx, user, v.account.ShareMint, v.auth.Address(), shares); err != nil {
		return WithdrawReceipt{}, fmt.Errorf("approve shares: %w", err)
	}
	if err := v.tokens.Burn(ctx, v.auth, v.account.ShareMint, user, shares); err != nil {
		return WithdrawReceipt{}, fmt.Errorf("burn shares: %w", err)
	}
	afterA, afterB, err := v.balancesOf(ctx, user)
	if err != nil {
		return WithdrawReceipt{}, err
	}

	receipt := WithdrawReceipt{
		SharesBurned: shares,
		Liquidity:    liquidity,
		AmountA:      afterA - beforeA,
		AmountB:      afterB - beforeB,
	}
	v.logger.Info("liquidity removed",
		zap.Stringer("user", user),
		zap.Uint64("shares", shares),
		zap.Stringer("liquidity", liquidity),
		zap.Uint64("amountA", receipt.AmountA),
		zap.Uint64("amountB", receipt.AmountB))
	return receipt, nil
}

func (v *Vault) balancesOf(ctx context.Context, owner solana.PublicKey) (uint64, uint64, error) {
	a, err := v.tokens.BalanceOf(ctx, owner, v.account.TokenMintA)
	if err != nil {
		return 0, 0, fmt.Errorf("balance A of %s: %w", owner, err)
	}
	b, err := v.tokens.BalanceOf(ctx, owner, v.account.TokenMintB)
	if err != nil {
		return 0, 0, fmt.Errorf("balance B of %s: %w", owner, err)
	}
	return a, b, nil
}
