package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/yimingWOW/bloom/pkg/sol"
	"github.com/yimingWOW/bloom/pkg/vault"
)

var ErrMissingSigner = errors.New("no signing key for owner")

// SPLTokens is the token registry over the SPL token program. Balances live in
// associated token accounts. Approve needs the owner's key, so owners that approve
// through this registry must be registered with AddSigner.
type SPLTokens struct {
	client  *sol.Client
	keeper  solana.PrivateKey
	signers map[solana.PublicKey]solana.PrivateKey
}

var _ vault.TokenRegistry = (*SPLTokens)(nil)

func NewSPLTokens(client *sol.Client, keeper solana.PrivateKey) *SPLTokens {
	t := &SPLTokens{
		client:  client,
		keeper:  keeper,
		signers: map[solana.PublicKey]solana.PrivateKey{},
	}
	t.AddSigner(keeper)
	return t
}

func (t *SPLTokens) AddSigner(key solana.PrivateKey) {
	t.signers[key.PublicKey()] = key
}

func (t *SPLTokens) signerFor(owner solana.PublicKey) (solana.PrivateKey, error) {
	key, ok := t.signers[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSigner, owner)
	}
	return key, nil
}

func (t *SPLTokens) authoritySigner(auth vault.Authority) (solana.PrivateKey, error) {
	if auth.Derived() {
		return nil, fmt.Errorf("%w: program-derived authority %s cannot sign off-chain", vault.ErrAuthorityMismatch, auth.Address())
	}
	return t.signerFor(auth.Address())
}

func (t *SPLTokens) MintTo(ctx context.Context, auth vault.Authority, mint, to solana.PublicKey, amount uint64) error {
	signer, err := t.authoritySigner(auth)
	if err != nil {
		return err
	}
	dest, err := t.client.EnsureTokenAccount(ctx, t.keeper, to, mint)
	if err != nil {
		return err
	}
	ix := token.NewMintToInstruction(amount, mint, dest, auth.Address(), nil).Build()
	if _, err := t.client.Send(ctx, []solana.PrivateKey{t.keeper, signer}, ix); err != nil {
		return fmt.Errorf("mint %d of %s to %s: %w", amount, mint, to, err)
	}
	return nil
}

func (t *SPLTokens) Burn(ctx context.Context, auth vault.Authority, mint, owner solana.PublicKey, amount uint64) error {
	signer, err := t.authoritySigner(auth)
	if err != nil {
		return err
	}
	source, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return err
	}
	// the authority burns as the owner's approved delegate
	ix := token.NewBurnInstruction(amount, source, mint, auth.Address(), nil).Build()
	if _, err := t.client.Send(ctx, []solana.PrivateKey{t.keeper, signer}, ix); err != nil {
		return fmt.Errorf("burn %d of %s from %s: %w", amount, mint, owner, err)
	}
	return nil
}

func (t *SPLTokens) Approve(ctx context.Context, owner, mint, delegate solana.PublicKey, amount uint64) error {
	signer, err := t.signerFor(owner)
	if err != nil {
		return err
	}
	source, err := t.client.EnsureTokenAccount(ctx, t.keeper, owner, mint)
	if err != nil {
		return err
	}
	ix := token.NewApproveInstruction(amount, source, delegate, owner, nil).Build()
	if _, err := t.client.Send(ctx, []solana.PrivateKey{t.keeper, signer}, ix); err != nil {
		return fmt.Errorf("approve %s for %d of %s: %w", delegate, amount, mint, err)
	}
	return nil
}

func (t *SPLTokens) BalanceOf(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	return t.client.GetUserTokenBalance(ctx, owner, mint)
}

func (t *SPLTokens) Supply(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	m, err := t.client.GetMint(ctx, mint)
	if err != nil {
		return 0, err
	}
	return m.Supply, nil
}

func (t *SPLTokens) Decimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	m, err := t.client.GetMint(ctx, mint)
	if err != nil {
		return 0, err
	}
	return m.Decimals, nil
}

// MintAuthority returns the zero key for a mint with no authority.
func (t *SPLTokens) MintAuthority(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	m, err := t.client.GetMint(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if m.MintAuthority == nil {
		return solana.PublicKey{}, nil
	}
	return *m.MintAuthority, nil
}
