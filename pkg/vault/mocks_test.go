package vault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"github.com/yimingWOW/bloom/pkg/pool/orca"
	"lukechampine.com/uint128"
)

type holding struct {
	owner solana.PublicKey
	mint  solana.PublicKey
}

type allowance struct {
	delegate solana.PublicKey
	amount   uint64
}

// memTokens is a token registry over plain maps that records every mutating call.
type memTokens struct {
	balances  map[holding]uint64
	approvals map[holding]allowance
	supply    map[solana.PublicKey]uint64
	decimals  map[solana.PublicKey]uint8
	authority map[solana.PublicKey]solana.PublicKey
	calls     []string
}

func newMemTokens() *memTokens {
	return &memTokens{
		balances:  map[holding]uint64{},
		approvals: map[holding]allowance{},
		supply:    map[solana.PublicKey]uint64{},
		decimals:  map[solana.PublicKey]uint8{},
		authority: map[solana.PublicKey]solana.PublicKey{},
	}
}

func (m *memTokens) credit(owner, mint solana.PublicKey, amount uint64) {
	m.balances[holding{owner, mint}] += amount
}

func (m *memTokens) debit(owner, mint solana.PublicKey, amount uint64) error {
	k := holding{owner, mint}
	if m.balances[k] < amount {
		return fmt.Errorf("insufficient funds: %s holds %d of %s, needs %d", owner, m.balances[k], mint, amount)
	}
	m.balances[k] -= amount
	return nil
}

func (m *memTokens) MintTo(_ context.Context, auth Authority, mint, to solana.PublicKey, amount uint64) error {
	m.calls = append(m.calls, "MintTo")
	if !m.authority[mint].Equals(auth.Address()) {
		return errors.New("mint authority mismatch")
	}
	m.credit(to, mint, amount)
	m.supply[mint] += amount
	return nil
}

func (m *memTokens) Burn(_ context.Context, auth Authority, mint, owner solana.PublicKey, amount uint64) error {
	m.calls = append(m.calls, "Burn")
	k := holding{owner, mint}
	a := m.approvals[k]
	if !a.delegate.Equals(auth.Address()) || a.amount < amount {
		return errors.New("burn not approved")
	}
	if err := m.debit(owner, mint, amount); err != nil {
		return err
	}
	m.approvals[k] = allowance{delegate: a.delegate, amount: a.amount - amount}
	m.supply[mint] -= amount
	return nil
}

func (m *memTokens) Approve(_ context.Context, owner, mint, delegate solana.PublicKey, amount uint64) error {
	m.calls = append(m.calls, "Approve")
	m.approvals[holding{owner, mint}] = allowance{delegate: delegate, amount: amount}
	return nil
}

func (m *memTokens) BalanceOf(_ context.Context, owner, mint solana.PublicKey) (uint64, error) {
	return m.balances[holding{owner, mint}], nil
}

func (m *memTokens) Supply(_ context.Context, mint solana.PublicKey) (uint64, error) {
	return m.supply[mint], nil
}

func (m *memTokens) Decimals(_ context.Context, mint solana.PublicKey) (uint8, error) {
	d, ok := m.decimals[mint]
	if !ok {
		return 0, fmt.Errorf("unknown mint %s", mint)
	}
	return d, nil
}

func (m *memTokens) MintAuthority(_ context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	return m.authority[mint], nil
}

type increaseCall struct {
	handle    PositionHandle
	funder    solana.PublicKey
	liquidity uint128.Uint128
	maxA      uint64
	maxB      uint64
	reserveA  uint64
	reserveB  uint64
	tick      int32
}

// recordingPool scripts the pool side and keeps the order of mutating calls.
type recordingPool struct {
	t         *testing.T
	tokens    *memTokens
	state     PoolState
	positions map[solana.PublicKey]*Position
	calls     []string
	queries   int

	withdrawA, withdrawB uint64
	feeA, feeB           uint64

	swaps     []SwapParams
	increases []increaseCall
	onSwap    func(p *recordingPool, owner solana.PublicKey, params SwapParams) (SwapResult, error)
}

func newRecordingPool(t *testing.T, tokens *memTokens, state PoolState) *recordingPool {
	return &recordingPool{t: t, tokens: tokens, state: state, positions: map[solana.PublicKey]*Position{}}
}

func (p *recordingPool) moveTo(tick int32) {
	sqrt, err := orca.SqrtPriceFromTickIndex(tick)
	require.NoError(p.t, err)
	p.state.TickCurrentIndex = tick
	p.state.SqrtPrice = sqrt
}

func (p *recordingPool) QueryState(context.Context) (PoolState, error) {
	p.queries++
	return p.state, nil
}

func (p *recordingPool) FetchPosition(_ context.Context, h PositionHandle) (Position, error) {
	pos, ok := p.positions[h.Address]
	if !ok {
		return Position{}, fmt.Errorf("position %s not found", h.Address)
	}
	return *pos, nil
}

func (p *recordingPool) OpenPosition(_ context.Context, _ Authority, r PriceRange) (PositionHandle, error) {
	p.calls = append(p.calls, "OpenPosition")
	h := PositionHandle{
		Address:      solana.NewWallet().PublicKey(),
		Mint:         solana.NewWallet().PublicKey(),
		TokenAccount: solana.NewWallet().PublicKey(),
	}
	p.positions[h.Address] = &Position{Handle: h, Range: r}
	return h, nil
}

func (p *recordingPool) ClosePosition(_ context.Context, _ Authority, h PositionHandle) error {
	p.calls = append(p.calls, "ClosePosition")
	pos, ok := p.positions[h.Address]
	if !ok || !pos.Liquidity.IsZero() {
		return errors.New("position not empty")
	}
	delete(p.positions, h.Address)
	return nil
}

func (p *recordingPool) IncreaseLiquidity(_ context.Context, _ Authority, h PositionHandle, funder solana.PublicKey, liquidity uint128.Uint128, maxA, maxB uint64) error {
	p.calls = append(p.calls, "IncreaseLiquidity")
	p.increases = append(p.increases, increaseCall{
		handle:    h,
		funder:    funder,
		liquidity: liquidity,
		maxA:      maxA,
		maxB:      maxB,
		reserveA:  p.tokens.balances[holding{funder, p.state.TokenMintA}],
		reserveB:  p.tokens.balances[holding{funder, p.state.TokenMintB}],
		tick:      p.state.TickCurrentIndex,
	})
	if err := p.tokens.debit(funder, p.state.TokenMintA, maxA); err != nil {
		return err
	}
	if err := p.tokens.debit(funder, p.state.TokenMintB, maxB); err != nil {
		return err
	}
	pos := p.positions[h.Address]
	pos.Liquidity = pos.Liquidity.Add(liquidity)
	return nil
}

func (p *recordingPool) DecreaseLiquidity(_ context.Context, _ Authority, h PositionHandle, recipient solana.PublicKey, liquidity uint128.Uint128, _, _ uint64) error {
	p.calls = append(p.calls, "DecreaseLiquidity")
	pos := p.positions[h.Address]
	if pos.Liquidity.Cmp(liquidity) < 0 {
		return errors.New("liquidity underflow")
	}
	pos.Liquidity = pos.Liquidity.Sub(liquidity)
	p.tokens.credit(recipient, p.state.TokenMintA, p.withdrawA)
	p.tokens.credit(recipient, p.state.TokenMintB, p.withdrawB)
	return nil
}

func (p *recordingPool) CollectFees(_ context.Context, _ Authority, _ PositionHandle, recipient solana.PublicKey) (uint64, uint64, error) {
	p.calls = append(p.calls, "CollectFees")
	p.tokens.credit(recipient, p.state.TokenMintA, p.feeA)
	p.tokens.credit(recipient, p.state.TokenMintB, p.feeB)
	return p.feeA, p.feeB, nil
}

func (p *recordingPool) Swap(_ context.Context, _ Authority, owner solana.PublicKey, params SwapParams) (SwapResult, error) {
	p.calls = append(p.calls, "Swap")
	p.swaps = append(p.swaps, params)
	if p.onSwap != nil {
		return p.onSwap(p, owner, params)
	}
	return SwapResult{}, nil
}

// swapAtPar trades 1:1 less 1%, then moves the pool to tick.
func swapAtPar(tick int32) func(p *recordingPool, owner solana.PublicKey, params SwapParams) (SwapResult, error) {
	return func(p *recordingPool, owner solana.PublicKey, params SwapParams) (SwapResult, error) {
		in, out := p.state.TokenMintB, p.state.TokenMintA
		if params.AToB {
			in, out = out, in
		}
		if err := p.tokens.debit(owner, in, params.Amount); err != nil {
			return SwapResult{}, err
		}
		received := params.Amount / 100 * 99
		p.tokens.credit(owner, out, received)
		p.moveTo(tick)
		return SwapResult{
			AmountIn:  params.Amount,
			AmountOut: received,
			BalanceA:  p.tokens.balances[holding{owner, p.state.TokenMintA}],
			BalanceB:  p.tokens.balances[holding{owner, p.state.TokenMintB}],
		}, nil
	}
}

type fixture struct {
	ctx    context.Context
	pool   *recordingPool
	tokens *memTokens
	auth   Authority
	params InitParams
	vault  *Vault
	user   solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens := newMemTokens()
	f := &fixture{
		ctx:    context.Background(),
		tokens: tokens,
		user:   solana.NewWallet().PublicKey(),
		params: InitParams{
			Address:    solana.NewWallet().PublicKey(),
			Pool:       solana.NewWallet().PublicKey(),
			TokenMintA: solana.NewWallet().PublicKey(),
			TokenMintB: solana.NewWallet().PublicKey(),
			ShareMint:  solana.NewWallet().PublicKey(),
			Admin:      solana.NewWallet().PublicKey(),
			LowerTick:  -128,
			UpperTick:  128,
		},
	}
	f.auth = NewKeeperAuthority(f.params.Address, f.params.Pool, solana.NewWallet().PublicKey())
	tokens.decimals[f.params.TokenMintA] = 6
	tokens.decimals[f.params.TokenMintB] = 6
	tokens.decimals[f.params.ShareMint] = 6
	tokens.authority[f.params.ShareMint] = f.auth.Address()

	f.pool = newRecordingPool(t, tokens, PoolState{
		Address:     f.params.Pool,
		TickSpacing: 64,
		FeeRate:     3000,
		TokenMintA:  f.params.TokenMintA,
		TokenMintB:  f.params.TokenMintB,
	})
	f.pool.moveTo(0)
	return f
}

func (f *fixture) initialize(t *testing.T) *Vault {
	t.Helper()
	v, err := Initialize(f.ctx, f.params, f.auth, f.pool, f.tokens, nil)
	require.NoError(t, err)
	f.vault = v
	f.pool.calls = nil
	f.tokens.calls = nil
	return v
}

func (f *fixture) reserves() Reserves {
	return Reserves{
		TokenA: f.tokens.balances[holding{f.auth.Address(), f.params.TokenMintA}],
		TokenB: f.tokens.balances[holding{f.auth.Address(), f.params.TokenMintB}],
	}
}
