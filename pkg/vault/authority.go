package vault

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var shareMintSeed = []byte("pool_token")

// Authority is the capability that signs pool and token operations for exactly one
// (vault, pool) pair. It is either the vault program's PDA or an off-chain keeper key.
type Authority struct {
	address solana.PublicKey
	vault   solana.PublicKey
	pool    solana.PublicKey
	bump    uint8
	derived bool
}

// DeriveAuthority returns the program-derived authority for pool. Seeds: [pool].
func DeriveAuthority(programID, vault, pool solana.PublicKey) (Authority, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{pool.Bytes()}, programID)
	if err != nil {
		return Authority{}, fmt.Errorf("derive vault authority: %w", err)
	}
	return Authority{address: addr, vault: vault, pool: pool, bump: bump, derived: true}, nil
}

// NewKeeperAuthority scopes an off-chain signer to one vault and pool.
func NewKeeperAuthority(vault, pool, signer solana.PublicKey) Authority {
	return Authority{address: signer, vault: vault, pool: pool}
}

func (a Authority) Address() solana.PublicKey { return a.address }
func (a Authority) Vault() solana.PublicKey   { return a.vault }
func (a Authority) Pool() solana.PublicKey    { return a.pool }

// Bump is the PDA bump seed; zero for keeper authorities.
func (a Authority) Bump() uint8 { return a.bump }

func (a Authority) Derived() bool { return a.derived }

// Check fails unless the authority was scoped to exactly this vault and pool.
func (a Authority) Check(vault, pool solana.PublicKey) error {
	if a.address.IsZero() {
		return fmt.Errorf("%w: empty authority", ErrAuthorityMismatch)
	}
	if !a.vault.Equals(vault) || !a.pool.Equals(pool) {
		return fmt.Errorf("%w: scoped to vault %s pool %s, used for vault %s pool %s",
			ErrAuthorityMismatch, a.vault, a.pool, vault, pool)
	}
	return nil
}

func (a Authority) String() string {
	kind := "keeper"
	if a.derived {
		kind = "pda"
	}
	return fmt.Sprintf("%s(%s)", kind, a.address)
}

// DeriveShareMint returns the share mint PDA. Seeds: ["pool_token", vault].
func DeriveShareMint(programID, vault solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{shareMintSeed, vault.Bytes()}, programID)
}

// DeriveReserveAccount returns the vault's reserve token account for mint. Seeds: [vault, mint].
func DeriveReserveAccount(programID, vault, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{vault.Bytes(), mint.Bytes()}, programID)
}
