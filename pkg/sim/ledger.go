package sim

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/gagliardetto/solana-go"
	"github.com/yimingWOW/bloom/pkg/vault"
)

var (
	ErrUnknownMint       = errors.New("unknown mint")
	ErrMintExists        = errors.New("mint already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotApproved       = errors.New("delegate not approved")
	ErrMintAuthority     = errors.New("signer is not the mint authority")
)

type holding struct {
	owner solana.PublicKey
	mint  solana.PublicKey
}

type approval struct {
	delegate solana.PublicKey
	amount   uint64
}

type mintInfo struct {
	decimals  uint8
	authority solana.PublicKey
	supply    uint64
}

// Ledger is an in-memory token program: mints, balances and single-delegate approvals
// keyed by (owner, mint).
type Ledger struct {
	mints     map[solana.PublicKey]mintInfo
	balances  map[holding]uint64
	approvals map[holding]approval
}

var _ vault.TokenRegistry = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		mints:     map[solana.PublicKey]mintInfo{},
		balances:  map[holding]uint64{},
		approvals: map[holding]approval{},
	}
}

func (l *Ledger) CreateMint(mint solana.PublicKey, decimals uint8, authority solana.PublicKey) error {
	if _, ok := l.mints[mint]; ok {
		return fmt.Errorf("%w: %s", ErrMintExists, mint)
	}
	l.mints[mint] = mintInfo{decimals: decimals, authority: authority}
	return nil
}

// Faucet creates tokens out of thin air for owner.
func (l *Ledger) Faucet(owner, mint solana.PublicKey, amount uint64) error {
	info, ok := l.mints[mint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	info.supply += amount
	l.mints[mint] = info
	l.balances[holding{owner, mint}] += amount
	return nil
}

// Transfer moves tokens signed by the owner.
func (l *Ledger) Transfer(from, to, mint solana.PublicKey, amount uint64) error {
	if _, ok := l.mints[mint]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	src := holding{from, mint}
	if l.balances[src] < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientFunds, from, l.balances[src], mint, amount)
	}
	l.balances[src] -= amount
	l.balances[holding{to, mint}] += amount
	return nil
}

// TransferFrom moves tokens signed by an approved delegate and spends the approval.
func (l *Ledger) TransferFrom(delegate, from, to, mint solana.PublicKey, amount uint64) error {
	if err := l.spend(delegate, from, mint, amount); err != nil {
		return err
	}
	return l.Transfer(from, to, mint, amount)
}

func (l *Ledger) spend(delegate, owner, mint solana.PublicKey, amount uint64) error {
	k := holding{owner, mint}
	a, ok := l.approvals[k]
	if !ok || !a.delegate.Equals(delegate) || a.amount < amount {
		return fmt.Errorf("%w: %s for %d of %s owned by %s", ErrNotApproved, delegate, amount, mint, owner)
	}
	a.amount -= amount
	if a.amount == 0 {
		delete(l.approvals, k)
	} else {
		l.approvals[k] = a
	}
	return nil
}

func (l *Ledger) MintTo(_ context.Context, auth vault.Authority, mint, to solana.PublicKey, amount uint64) error {
	info, ok := l.mints[mint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	if !info.authority.Equals(auth.Address()) {
		return fmt.Errorf("%w: %s", ErrMintAuthority, auth.Address())
	}
	info.supply += amount
	l.mints[mint] = info
	l.balances[holding{to, mint}] += amount
	return nil
}

func (l *Ledger) Burn(_ context.Context, auth vault.Authority, mint, owner solana.PublicKey, amount uint64) error {
	info, ok := l.mints[mint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	k := holding{owner, mint}
	if l.balances[k] < amount {
		return fmt.Errorf("%w: burn %d of %d", ErrInsufficientFunds, amount, l.balances[k])
	}
	if !owner.Equals(auth.Address()) {
		if err := l.spend(auth.Address(), owner, mint, amount); err != nil {
			return err
		}
	}
	l.balances[k] -= amount
	info.supply -= amount
	l.mints[mint] = info
	return nil
}

// Approve replaces any existing approval on (owner, mint).
func (l *Ledger) Approve(_ context.Context, owner, mint, delegate solana.PublicKey, amount uint64) error {
	if _, ok := l.mints[mint]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	l.approvals[holding{owner, mint}] = approval{delegate: delegate, amount: amount}
	return nil
}

func (l *Ledger) BalanceOf(_ context.Context, owner, mint solana.PublicKey) (uint64, error) {
	return l.balances[holding{owner, mint}], nil
}

func (l *Ledger) Supply(_ context.Context, mint solana.PublicKey) (uint64, error) {
	info, ok := l.mints[mint]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	return info.supply, nil
}

func (l *Ledger) Decimals(_ context.Context, mint solana.PublicKey) (uint8, error) {
	info, ok := l.mints[mint]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	return info.decimals, nil
}

func (l *Ledger) MintAuthority(_ context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	info, ok := l.mints[mint]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	return info.authority, nil
}

func (l *Ledger) clone() *Ledger {
	return &Ledger{
		mints:     maps.Clone(l.mints),
		balances:  maps.Clone(l.balances),
		approvals: maps.Clone(l.approvals),
	}
}

func (l *Ledger) restore(from *Ledger) {
	l.mints = from.mints
	l.balances = from.balances
	l.approvals = from.approvals
}
