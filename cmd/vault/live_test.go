package main

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yimingWOW/bloom/internal/config"
	"github.com/yimingWOW/bloom/pkg/vault"
)

func TestResolveShareMint(t *testing.T) {
	log := zaptest.NewLogger(t)
	program := solana.NewWallet().PublicKey()
	vaultAddr := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()
	derived, _, err := vault.DeriveShareMint(program, vaultAddr)
	require.NoError(t, err)

	t.Run("explicit mint", func(t *testing.T) {
		mint := solana.NewWallet().PublicKey()
		got, err := resolveShareMint(config.Config{ShareMint: mint.String()}, vaultAddr, pool, mintA, mintB, log)
		require.NoError(t, err)
		assert.Equal(t, mint, got)
	})
	t.Run("missing mint", func(t *testing.T) {
		_, err := resolveShareMint(config.Config{}, vaultAddr, pool, mintA, mintB, log)
		assert.ErrorContains(t, err, "share-mint")
	})
	t.Run("derived from program", func(t *testing.T) {
		got, err := resolveShareMint(config.Config{ProgramID: program.String()}, vaultAddr, pool, mintA, mintB, log)
		require.NoError(t, err)
		assert.Equal(t, derived, got)
	})
	t.Run("matches program", func(t *testing.T) {
		cfg := config.Config{ProgramID: program.String(), ShareMint: derived.String()}
		got, err := resolveShareMint(cfg, vaultAddr, pool, mintA, mintB, log)
		require.NoError(t, err)
		assert.Equal(t, derived, got)
	})
	t.Run("not the program's mint", func(t *testing.T) {
		cfg := config.Config{ProgramID: program.String(), ShareMint: solana.NewWallet().PublicKey().String()}
		_, err := resolveShareMint(cfg, vaultAddr, pool, mintA, mintB, log)
		assert.ErrorIs(t, err, vault.ErrInvalidPoolTokenMint)
	})
	t.Run("bad program id", func(t *testing.T) {
		_, err := resolveShareMint(config.Config{ProgramID: "not-base58!"}, vaultAddr, pool, mintA, mintB, log)
		assert.Error(t, err)
	})
}
