package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/yimingWOW/bloom/pkg/pool/orca"
	"github.com/yimingWOW/bloom/pkg/vault"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"lukechampine.com/uint128"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionNotEmpty = errors.New("position still holds liquidity or fees")
	ErrNotPositionOwner = errors.New("signer does not own position")
	ErrSlippage         = errors.New("slippage tolerance exceeded")
	ErrExactOutput      = errors.New("exact-output swaps are not supported")
)

// WhirlpoolConfig describes a simulated pool. BackgroundLiquidity is full-range
// liquidity owned by nobody, standing in for other LPs.
type WhirlpoolConfig struct {
	Address             solana.PublicKey
	TokenMintA          solana.PublicKey
	TokenMintB          solana.PublicKey
	TickSpacing         uint16
	FeeRate             uint16
	Tick                int32
	BackgroundLiquidity uint128.Uint128
}

type position struct {
	handle    vault.PositionHandle
	owner     solana.PublicKey
	r         vault.PriceRange
	liquidity uint128.Uint128
	feeOwedA  uint64
	feeOwedB  uint64
}

// Whirlpool simulates one concentrated-liquidity pool on top of a Ledger. Token custody
// is the ledger balance of the pool address. Swap pricing uses the same step math as
// the on-chain program and crosses position boundaries one segment at a time.
type Whirlpool struct {
	cfg       WhirlpoolConfig
	ledger    *Ledger
	logger    *zap.Logger
	sqrtPrice uint128.Uint128
	tick      int32
	positions map[solana.PublicKey]*position
}

var _ vault.PoolAdapter = (*Whirlpool)(nil)

// NewWhirlpool creates a pool over mints already registered in ledger, priced at
// cfg's starting tick.
func NewWhirlpool(ledger *Ledger, cfg WhirlpoolConfig, logger *zap.Logger) (*Whirlpool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickSpacing == 0 {
		return nil, errors.New("tick spacing must be positive")
	}
	sqrtPrice, err := orca.SqrtPriceFromTickIndex(cfg.Tick)
	if err != nil {
		return nil, err
	}
	for _, mint := range []solana.PublicKey{cfg.TokenMintA, cfg.TokenMintB} {
		if _, ok := ledger.mints[mint]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMint, mint)
		}
	}
	return &Whirlpool{
		cfg:       cfg,
		ledger:    ledger,
		logger:    logger.With(zap.Stringer("pool", cfg.Address)),
		sqrtPrice: sqrtPrice,
		tick:      cfg.Tick,
		positions: map[solana.PublicKey]*position{},
	}, nil
}

func (w *Whirlpool) Address() solana.PublicKey { return w.cfg.Address }

func (w *Whirlpool) activeLiquidity() uint128.Uint128 {
	total := w.cfg.BackgroundLiquidity
	for _, p := range w.positions {
		if p.r.Contains(w.tick) {
			total = total.Add(p.liquidity)
		}
	}
	return total
}

func (w *Whirlpool) QueryState(context.Context) (vault.PoolState, error) {
	return vault.PoolState{
		Address:          w.cfg.Address,
		SqrtPrice:        w.sqrtPrice,
		TickCurrentIndex: w.tick,
		TickSpacing:      w.cfg.TickSpacing,
		FeeRate:          w.cfg.FeeRate,
		Liquidity:        w.activeLiquidity(),
		TokenMintA:       w.cfg.TokenMintA,
		TokenMintB:       w.cfg.TokenMintB,
	}, nil
}

func (w *Whirlpool) lookup(h vault.PositionHandle) (*position, error) {
	p, ok := w.positions[h.Address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, h.Address)
	}
	return p, nil
}

func (w *Whirlpool) owned(auth vault.Authority, h vault.PositionHandle) (*position, error) {
	if !auth.Pool().Equals(w.cfg.Address) {
		return nil, fmt.Errorf("%w: authority scoped to pool %s", vault.ErrAuthorityMismatch, auth.Pool())
	}
	p, err := w.lookup(h)
	if err != nil {
		return nil, err
	}
	if !p.owner.Equals(auth.Address()) {
		return nil, fmt.Errorf("%w: %s", ErrNotPositionOwner, auth.Address())
	}
	return p, nil
}

func (w *Whirlpool) FetchPosition(_ context.Context, h vault.PositionHandle) (vault.Position, error) {
	p, err := w.lookup(h)
	if err != nil {
		return vault.Position{}, err
	}
	return vault.Position{
		Handle:    p.handle,
		Range:     p.r,
		Liquidity: p.liquidity,
		FeeOwedA:  p.feeOwedA,
		FeeOwedB:  p.feeOwedB,
	}, nil
}

func (w *Whirlpool) OpenPosition(_ context.Context, auth vault.Authority, r vault.PriceRange) (vault.PositionHandle, error) {
	if !auth.Pool().Equals(w.cfg.Address) {
		return vault.PositionHandle{}, fmt.Errorf("%w: authority scoped to pool %s", vault.ErrAuthorityMismatch, auth.Pool())
	}
	if _, err := vault.NewPriceRange(r.LowerTick, r.UpperTick, w.cfg.TickSpacing); err != nil {
		return vault.PositionHandle{}, err
	}
	mint := solana.NewWallet().PublicKey()
	addr, _, err := orca.DerivePositionPDA(mint)
	if err != nil {
		return vault.PositionHandle{}, err
	}
	tokenAccount, _, err := solana.FindAssociatedTokenAddress(auth.Address(), mint)
	if err != nil {
		return vault.PositionHandle{}, err
	}
	h := vault.PositionHandle{Address: addr, Mint: mint, TokenAccount: tokenAccount}
	w.positions[addr] = &position{handle: h, owner: auth.Address(), r: r, liquidity: uint128.Zero}
	w.logger.Debug("position opened", zap.Stringer("position", addr), zap.Stringer("range", r))
	return h, nil
}

func (w *Whirlpool) ClosePosition(_ context.Context, auth vault.Authority, h vault.PositionHandle) error {
	p, err := w.owned(auth, h)
	if err != nil {
		return err
	}
	if !p.liquidity.IsZero() || p.feeOwedA != 0 || p.feeOwedB != 0 {
		return fmt.Errorf("%w: liquidity %s fees %d/%d", ErrPositionNotEmpty, p.liquidity, p.feeOwedA, p.feeOwedB)
	}
	delete(w.positions, h.Address)
	w.logger.Debug("position closed", zap.Stringer("position", h.Address))
	return nil
}

// pull moves tokens from funder into custody, through the signer's approval unless the
// signer is the funder.
func (w *Whirlpool) pull(signer, funder, mint solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if signer.Equals(funder) {
		return w.ledger.Transfer(funder, w.cfg.Address, mint, amount)
	}
	return w.ledger.TransferFrom(signer, funder, w.cfg.Address, mint, amount)
}

func (w *Whirlpool) IncreaseLiquidity(_ context.Context, auth vault.Authority, h vault.PositionHandle, funder solana.PublicKey, liquidity uint128.Uint128, maxA, maxB uint64) error {
	p, err := w.owned(auth, h)
	if err != nil {
		return err
	}
	amountA, amountB, err := orca.CalculateLiquidityTokenDeltas(w.tick, w.sqrtPrice, p.r.LowerTick, p.r.UpperTick, cosmath.NewIntFromBigInt(liquidity.Big()))
	if err != nil {
		return err
	}
	if amountA > maxA || amountB > maxB {
		return fmt.Errorf("%w: need %d/%d, max %d/%d", orca.ErrTokenMaxExceeded, amountA, amountB, maxA, maxB)
	}
	if err := w.pull(auth.Address(), funder, w.cfg.TokenMintA, amountA); err != nil {
		return err
	}
	if err := w.pull(auth.Address(), funder, w.cfg.TokenMintB, amountB); err != nil {
		return err
	}
	p.liquidity = p.liquidity.Add(liquidity)
	w.logger.Debug("liquidity increased",
		zap.Stringer("position", h.Address),
		zap.Stringer("liquidity", liquidity),
		zap.Uint64("amountA", amountA),
		zap.Uint64("amountB", amountB))
	return nil
}

func (w *Whirlpool) DecreaseLiquidity(_ context.Context, auth vault.Authority, h vault.PositionHandle, recipient solana.PublicKey, liquidity uint128.Uint128, minA, minB uint64) error {
	p, err := w.owned(auth, h)
	if err != nil {
		return err
	}
	if p.liquidity.Cmp(liquidity) < 0 {
		return fmt.Errorf("%w: withdraw %s of %s", orca.ErrLiquidityZero, liquidity, p.liquidity)
	}
	amountA, amountB, err := orca.CalculateLiquidityTokenDeltas(w.tick, w.sqrtPrice, p.r.LowerTick, p.r.UpperTick, cosmath.NewIntFromBigInt(liquidity.Big()).Neg())
	if err != nil {
		return err
	}
	if amountA < minA || amountB < minB {
		return fmt.Errorf("%w: got %d/%d, min %d/%d", ErrSlippage, amountA, amountB, minA, minB)
	}
	if err := w.ledger.Transfer(w.cfg.Address, recipient, w.cfg.TokenMintA, amountA); err != nil {
		return err
	}
	if err := w.ledger.Transfer(w.cfg.Address, recipient, w.cfg.TokenMintB, amountB); err != nil {
		return err
	}
	p.liquidity = p.liquidity.Sub(liquidity)
	w.logger.Debug("liquidity decreased",
		zap.Stringer("position", h.Address),
		zap.Stringer("liquidity", liquidity),
		zap.Uint64("amountA", amountA),
		zap.Uint64("amountB", amountB))
	return nil
}

func (w *Whirlpool) CollectFees(_ context.Context, auth vault.Authority, h vault.PositionHandle, recipient solana.PublicKey) (uint64, uint64, error) {
	p, err := w.owned(auth, h)
	if err != nil {
		return 0, 0, err
	}
	feeA, feeB := p.feeOwedA, p.feeOwedB
	if err := w.ledger.Transfer(w.cfg.Address, recipient, w.cfg.TokenMintA, feeA); err != nil {
		return 0, 0, err
	}
	if err := w.ledger.Transfer(w.cfg.Address, recipient, w.cfg.TokenMintB, feeB); err != nil {
		return 0, 0, err
	}
	p.feeOwedA, p.feeOwedB = 0, 0
	return feeA, feeB, nil
}

// Swap trades from owner's balance, signed by auth as the owner.
func (w *Whirlpool) Swap(ctx context.Context, auth vault.Authority, owner solana.PublicKey, params vault.SwapParams) (vault.SwapResult, error) {
	if !auth.Pool().Equals(w.cfg.Address) || !auth.Address().Equals(owner) {
		return vault.SwapResult{}, fmt.Errorf("%w: %s cannot sign for %s", vault.ErrAuthorityMismatch, auth.Address(), owner)
	}
	return w.swap(ctx, owner, params)
}

// Trade runs a swap for an outside trader, moving the price and paying fees to
// in-range positions.
func (w *Whirlpool) Trade(ctx context.Context, trader solana.PublicKey, amount uint64, aToB bool) (vault.SwapResult, error) {
	limit := orca.MAX_SQRT_PRICE_X64
	if aToB {
		limit = orca.MIN_SQRT_PRICE_X64
	}
	return w.swap(ctx, trader, vault.SwapParams{
		Amount:                 amount,
		SqrtPriceLimit:         limit,
		AmountSpecifiedIsInput: true,
		AToB:                   aToB,
	})
}

// MoveToTick sets the price directly, as if the market traded there elsewhere.
func (w *Whirlpool) MoveToTick(tick int32) error {
	sqrtPrice, err := orca.SqrtPriceFromTickIndex(tick)
	if err != nil {
		return err
	}
	w.sqrtPrice, w.tick = sqrtPrice, tick
	return nil
}

// boundary returns the next position bound in the swap direction, if any.
func (w *Whirlpool) boundary(aToB bool) (int32, bool) {
	var ticks []int32
	for _, p := range w.positions {
		ticks = append(ticks, p.r.LowerTick, p.r.UpperTick)
	}
	slices.Sort(ticks)
	if aToB {
		for i := len(ticks) - 1; i >= 0; i-- {
			if ticks[i] <= w.tick {
				return ticks[i], true
			}
		}
		return 0, false
	}
	for _, t := range ticks {
		if t > w.tick {
			return t, true
		}
	}
	return 0, false
}

func (w *Whirlpool) swap(_ context.Context, owner solana.PublicKey, params vault.SwapParams) (vault.SwapResult, error) {
	if !params.AmountSpecifiedIsInput {
		return vault.SwapResult{}, ErrExactOutput
	}
	limit := params.SqrtPriceLimit
	if limit.Cmp(orca.MIN_SQRT_PRICE_X64) < 0 || limit.Cmp(orca.MAX_SQRT_PRICE_X64) > 0 {
		return vault.SwapResult{}, fmt.Errorf("%w: limit %s", orca.ErrSqrtPriceOutOfBounds, limit)
	}
	mintIn, mintOut := w.cfg.TokenMintB, w.cfg.TokenMintA
	if params.AToB {
		mintIn, mintOut = mintOut, mintIn
	}
	if held := w.ledger.balances[holding{owner, mintIn}]; held < params.Amount {
		return vault.SwapResult{}, fmt.Errorf("%w: %s holds %d of %s, swaps %d", ErrInsufficientFunds, owner, held, mintIn, params.Amount)
	}

	remaining := params.Amount
	var totalIn, totalOut uint64
	for remaining > 0 && !w.sqrtPrice.Equals(limit) {
		if params.AToB {
			// at an exact bound the range below becomes active before trading on
			if atBound, err := orca.SqrtPriceFromTickIndex(w.tick); err == nil && atBound.Equals(w.sqrtPrice) {
				if _, ok := w.boundaryAt(w.tick); ok {
					w.tick--
				}
			}
		}
		target, targetTick, crossing, err := w.stepTarget(params.AToB, limit)
		if err != nil {
			return vault.SwapResult{}, err
		}
		active := w.activeLiquidity()
		if active.IsZero() {
			if !crossing {
				break
			}
			w.sqrtPrice = target
			w.tick = crossedTick(targetTick, params.AToB)
			continue
		}
		step, err := orca.ComputeSwapStep(w.sqrtPrice, target, active, remaining, w.cfg.FeeRate, params.AToB)
		if err != nil {
			return vault.SwapResult{}, err
		}
		consumed := step.AmountIn + step.FeeAmount
		if consumed > remaining {
			consumed = remaining
			step.FeeAmount = remaining - step.AmountIn
		}
		if consumed == 0 && step.NextSqrtPrice.Equals(w.sqrtPrice) {
			break
		}
		remaining -= consumed
		totalIn += consumed
		totalOut += step.AmountOut
		w.accrueFees(step.FeeAmount, active, params.AToB)

		w.sqrtPrice = step.NextSqrtPrice
		if crossing && step.NextSqrtPrice.Equals(target) {
			w.tick = crossedTick(targetTick, params.AToB)
		} else if w.tick, err = orca.TickIndexFromSqrtPrice(w.sqrtPrice); err != nil {
			return vault.SwapResult{}, err
		}
	}

	if totalOut < params.OtherAmountThreshold {
		return vault.SwapResult{}, fmt.Errorf("%w: out %d below %d", ErrSlippage, totalOut, params.OtherAmountThreshold)
	}
	if err := w.ledger.Transfer(owner, w.cfg.Address, mintIn, totalIn); err != nil {
		return vault.SwapResult{}, err
	}
	if err := w.ledger.Transfer(w.cfg.Address, owner, mintOut, totalOut); err != nil {
		return vault.SwapResult{}, err
	}
	w.logger.Debug("swap",
		zap.Bool("aToB", params.AToB),
		zap.Uint64("amountIn", totalIn),
		zap.Uint64("amountOut", totalOut),
		zap.Int32("tick", w.tick))

	return vault.SwapResult{
		AmountIn:  totalIn,
		AmountOut: totalOut,
		BalanceA:  w.ledger.balances[holding{owner, w.cfg.TokenMintA}],
		BalanceB:  w.ledger.balances[holding{owner, w.cfg.TokenMintB}],
	}, nil
}

func (w *Whirlpool) boundaryAt(tick int32) (int32, bool) {
	for _, p := range w.positions {
		if p.r.LowerTick == tick || p.r.UpperTick == tick {
			return tick, true
		}
	}
	return 0, false
}

// stepTarget picks the nearer of the price limit and the next position bound.
func (w *Whirlpool) stepTarget(aToB bool, limit uint128.Uint128) (uint128.Uint128, int32, bool, error) {
	t, ok := w.boundary(aToB)
	if !ok {
		return limit, 0, false, nil
	}
	bound, err := orca.SqrtPriceFromTickIndex(t)
	if err != nil {
		return uint128.Zero, 0, false, err
	}
	if aToB && bound.Cmp(limit) <= 0 || !aToB && bound.Cmp(limit) >= 0 {
		return limit, 0, false, nil
	}
	return bound, t, true, nil
}

// crossedTick is the current tick after the price lands exactly on bound t.
func crossedTick(t int32, aToB bool) int32 {
	if aToB {
		return t - 1
	}
	return t
}

// accrueFees splits a step's fee across in-range positions by liquidity share. The
// background share and rounding dust stay in custody.
func (w *Whirlpool) accrueFees(fee uint64, active uint128.Uint128, aToB bool) {
	if fee == 0 {
		return
	}
	total := cosmath.NewIntFromBigInt(active.Big())
	for _, p := range w.positions {
		if !p.r.Contains(w.tick) || p.liquidity.IsZero() {
			continue
		}
		share := cosmath.NewIntFromUint64(fee).Mul(cosmath.NewIntFromBigInt(p.liquidity.Big())).Quo(total).Uint64()
		if aToB {
			p.feeOwedA += share
		} else {
			p.feeOwedB += share
		}
	}
}

func (w *Whirlpool) clone() *Whirlpool {
	c := *w
	c.positions = make(map[solana.PublicKey]*position, len(w.positions))
	for k, p := range w.positions {
		cp := *p
		c.positions[k] = &cp
	}
	return &c
}

func (w *Whirlpool) restore(from *Whirlpool) {
	w.sqrtPrice = from.sqrtPrice
	w.tick = from.tick
	w.positions = from.positions
}

// Positions lists the open position addresses.
func (w *Whirlpool) Positions() []solana.PublicKey {
	return maps.Keys(w.positions)
}

// Mints returns the pool's token pair.
func (w *Whirlpool) Mints() (mintA, mintB solana.PublicKey) {
	return w.cfg.TokenMintA, w.cfg.TokenMintB
}
