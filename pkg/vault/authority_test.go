package vault

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAuthority(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	vaultAddr := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	auth, err := DeriveAuthority(program, vaultAddr, pool)
	require.NoError(t, err)
	assert.True(t, auth.Derived())
	assert.NoError(t, auth.Check(vaultAddr, pool))

	again, err := DeriveAuthority(program, solana.NewWallet().PublicKey(), pool)
	require.NoError(t, err)
	// seeded by pool only
	assert.Equal(t, auth.Address(), again.Address())
	assert.Equal(t, auth.Bump(), again.Bump())

	assert.ErrorIs(t, auth.Check(vaultAddr, solana.NewWallet().PublicKey()), ErrAuthorityMismatch)
	assert.ErrorIs(t, auth.Check(solana.NewWallet().PublicKey(), pool), ErrAuthorityMismatch)
	assert.ErrorIs(t, Authority{}.Check(vaultAddr, pool), ErrAuthorityMismatch)
}

func TestKeeperAuthority(t *testing.T) {
	signer := solana.NewWallet().PublicKey()
	vaultAddr := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	auth := NewKeeperAuthority(vaultAddr, pool, signer)
	assert.False(t, auth.Derived())
	assert.Equal(t, signer, auth.Address())
	assert.Equal(t, uint8(0), auth.Bump())
	assert.NoError(t, auth.Check(vaultAddr, pool))
	assert.Contains(t, auth.String(), "keeper(")
}

func TestDeriveVaultAccounts(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	vaultAddr := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	shareMint, _, err := DeriveShareMint(program, vaultAddr)
	require.NoError(t, err)
	want, _, err := solana.FindProgramAddress([][]byte{[]byte("pool_token"), vaultAddr.Bytes()}, program)
	require.NoError(t, err)
	assert.Equal(t, want, shareMint)

	reserveA, _, err := DeriveReserveAccount(program, vaultAddr, mintA)
	require.NoError(t, err)
	reserveB, _, err := DeriveReserveAccount(program, vaultAddr, mintB)
	require.NoError(t, err)
	assert.NotEqual(t, reserveA, reserveB)
}
