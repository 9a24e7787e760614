package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	"github.com/yimingWOW/bloom/internal/config"
	"github.com/yimingWOW/bloom/pkg/sim"
	"github.com/yimingWOW/bloom/pkg/vault"
)

type simulation struct {
	env    *sim.Env
	vault  *vault.Vault
	users  []solana.PublicKey
	logger *zap.Logger
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signalContext()
	defer stop()

	s, err := newSimulation(ctx, cfg, log)
	if err != nil {
		return err
	}
	summary, err := s.run(ctx, cfg)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func newSimulation(ctx context.Context, cfg config.Config, log *zap.Logger) (*simulation, error) {
	env, err := sim.NewEnv(sim.EnvConfig{
		DecimalsA:           cfg.Sim.DecimalsA,
		DecimalsB:           cfg.Sim.DecimalsB,
		TickSpacing:         cfg.Sim.TickSpacing,
		FeeRate:             cfg.Sim.FeeRate,
		Tick:                cfg.Sim.Tick,
		BackgroundLiquidity: uint128.From64(cfg.Sim.BackgroundLiquidity),
	}, log)
	if err != nil {
		return nil, err
	}

	keeper := solana.NewWallet().PublicKey()
	vaultAddr := solana.NewWallet().PublicKey()
	auth := vault.NewKeeperAuthority(vaultAddr, env.Pool.Address(), keeper)
	shareMint := solana.NewWallet().PublicKey()
	if err := env.Ledger.CreateMint(shareMint, cfg.Sim.DecimalsA, auth.Address()); err != nil {
		return nil, err
	}

	r, err := vault.RangeAround(cfg.Sim.Tick, cfg.Sim.TickSpacing, cfg.SpreadPct)
	if err != nil {
		return nil, err
	}
	mintA, mintB := env.Pool.Mints()
	v, err := vault.Initialize(ctx, vault.InitParams{
		Address:    vaultAddr,
		Pool:       env.Pool.Address(),
		TokenMintA: mintA,
		TokenMintB: mintB,
		ShareMint:  shareMint,
		Admin:      keeper,
		LowerTick:  r.LowerTick,
		UpperTick:  r.UpperTick,
	}, auth, env.Pool, env.Ledger, log)
	if err != nil {
		return nil, fmt.Errorf("initialize vault: %w", err)
	}
	return &simulation{env: env, vault: v, logger: log}, nil
}

type simSummary struct {
	Initial   statusView     `json:"initial"`
	Deposits  []depositView  `json:"deposits"`
	Drifted   statusView     `json:"drifted"`
	Rebalance *reportView    `json:"rebalance,omitempty"`
	Error     string         `json:"rebalance_error,omitempty"`
	Final     statusView     `json:"final"`
	Withdraws []withdrawView `json:"withdraws"`

	err error
}

func (s *simulation) run(ctx context.Context, cfg config.Config) (*simSummary, error) {
	summary := &simSummary{}
	mintA, mintB := s.env.Pool.Mints()

	status, err := s.vault.Status(ctx)
	if err != nil {
		return nil, err
	}
	summary.Initial = newStatusView(status)

	for i := 0; i < cfg.Sim.Users; i++ {
		user := solana.NewWallet().PublicKey()
		// enough of both tokens to pair the deposit at any in-range price
		if err := s.env.Ledger.Faucet(user, mintA, cfg.Sim.Deposit*10); err != nil {
			return nil, err
		}
		if err := s.env.Ledger.Faucet(user, mintB, cfg.Sim.Deposit*10); err != nil {
			return nil, err
		}
		var receipt vault.DepositReceipt
		err := s.env.Atomically(func() error {
			var err error
			receipt, err = s.vault.AddLiquidity(ctx, user, cfg.Sim.Deposit)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("deposit for user %d: %w", i, err)
		}
		s.users = append(s.users, user)
		summary.Deposits = append(summary.Deposits, newDepositView(user, receipt))
	}

	if cfg.Sim.TradeVolume > 0 {
		trader := solana.NewWallet().PublicKey()
		if err := s.env.Ledger.Faucet(trader, mintA, cfg.Sim.TradeVolume); err != nil {
			return nil, err
		}
		res, err := s.env.Pool.Trade(ctx, trader, cfg.Sim.TradeVolume, true)
		if err != nil {
			return nil, fmt.Errorf("trade: %w", err)
		}
		if _, err := s.env.Pool.Trade(ctx, trader, res.AmountOut, false); err != nil {
			return nil, fmt.Errorf("trade back: %w", err)
		}
	}

	state, err := s.vault.RefreshPool(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.env.Pool.MoveToTick(state.TickCurrentIndex + cfg.Sim.ShiftTicks); err != nil {
		return nil, err
	}
	status, err = s.vault.Status(ctx)
	if err != nil {
		return nil, err
	}
	summary.Drifted = newStatusView(status)

	target, err := s.target(ctx, cfg)
	if err != nil {
		return nil, err
	}
	err = s.env.Atomically(func() error {
		report, err := s.vault.Rebalance(ctx, target.LowerTick, target.UpperTick)
		if report != nil {
			view := newReportView(report)
			summary.Rebalance = &view
		}
		return err
	})
	if err != nil {
		// the environment rolled back; report and carry on with the old position
		summary.Error, summary.err = err.Error(), err
		s.logger.Warn("rebalance aborted", zap.Error(err), zap.Bool("fatal", vault.IsFatal(err)))
	}

	status, err = s.vault.Status(ctx)
	if err != nil {
		return nil, err
	}
	summary.Final = newStatusView(status)

	for _, user := range s.users {
		var receipt vault.WithdrawReceipt
		err := s.env.Atomically(func() error {
			var err error
			receipt, err = s.vault.RemoveLiquidity(ctx, user)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("withdraw for %s: %w", user, err)
		}
		summary.Withdraws = append(summary.Withdraws, newWithdrawView(user, receipt))
	}
	return summary, nil
}

// target is the configured range, or one built around the drifted price.
func (s *simulation) target(ctx context.Context, cfg config.Config) (vault.PriceRange, error) {
	if cfg.HasRange() {
		return vault.PriceRange{LowerTick: cfg.LowerTick, UpperTick: cfg.UpperTick}, nil
	}
	if cfg.Sim.RangeMode == config.RangeAround {
		return s.vault.SuggestRange(ctx, cfg.SpreadPct)
	}
	state, err := s.vault.RefreshPool(ctx)
	if err != nil {
		return vault.PriceRange{}, err
	}
	return vault.RangeAbove(state.TickCurrentIndex, state.TickSpacing, cfg.SpreadPct)
}
