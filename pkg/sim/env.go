package sim

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"lukechampine.com/uint128"
)

// custodySeed funds pool custody so background liquidity can always pay out.
const custodySeed = uint64(1) << 62

// EnvConfig describes the token pair and the pool NewEnv creates. BackgroundLiquidity
// is full-range liquidity owned by other LPs.
type EnvConfig struct {
	DecimalsA           uint8
	DecimalsB           uint8
	TickSpacing         uint16
	FeeRate             uint16
	Tick                int32
	BackgroundLiquidity uint128.Uint128
}

// Env is a single-writer execution environment: one ledger, one pool, and an
// all-or-nothing wrapper around each invocation.
type Env struct {
	mu     sync.Mutex
	Ledger *Ledger
	Pool   *Whirlpool
}

// NewEnv creates both token mints and the pool, with fresh addresses.
func NewEnv(cfg EnvConfig, logger *zap.Logger) (*Env, error) {
	ledger := NewLedger()
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()
	poolAddr := solana.NewWallet().PublicKey()
	if err := ledger.CreateMint(mintA, cfg.DecimalsA, solana.PublicKey{}); err != nil {
		return nil, err
	}
	if err := ledger.CreateMint(mintB, cfg.DecimalsB, solana.PublicKey{}); err != nil {
		return nil, err
	}
	pool, err := NewWhirlpool(ledger, WhirlpoolConfig{
		Address:             poolAddr,
		TokenMintA:          mintA,
		TokenMintB:          mintB,
		TickSpacing:         cfg.TickSpacing,
		FeeRate:             cfg.FeeRate,
		Tick:                cfg.Tick,
		BackgroundLiquidity: cfg.BackgroundLiquidity,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := ledger.Faucet(poolAddr, mintA, custodySeed); err != nil {
		return nil, err
	}
	if err := ledger.Faucet(poolAddr, mintB, custodySeed); err != nil {
		return nil, err
	}
	return &Env{Ledger: ledger, Pool: pool}, nil
}

// Atomically runs fn with exclusive access. If fn fails, every ledger and pool change it
// made is rolled back.
func (e *Env) Atomically(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ledger := e.Ledger.clone()
	pool := e.Pool.clone()
	if err := fn(); err != nil {
		e.Ledger.restore(ledger)
		e.Pool.restore(pool)
		return err
	}
	return nil
}
