package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yimingWOW/bloom/internal/config"
	"github.com/yimingWOW/bloom/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:          "vault",
		Short:        "Concentrated-liquidity vault keeper for Orca Whirlpools",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Float64("spread-pct", 5, "range half-width in percent of price when no ticks are given")
	root.PersistentFlags().Int32("lower-tick", 0, "explicit lower tick (inclusive)")
	root.PersistentFlags().Int32("upper-tick", 0, "explicit upper tick (exclusive)")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run deposit, drift, rebalance and withdraw against an in-memory pool",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().Int32("sim-tick", 0, "starting pool tick")
	simulateCmd.Flags().Uint16("sim-tick-spacing", 64, "pool tick spacing")
	simulateCmd.Flags().Uint16("sim-fee-rate", 3000, "pool fee rate, hundredths of a basis point")
	simulateCmd.Flags().Uint("sim-decimals-a", 6, "token A decimals")
	simulateCmd.Flags().Uint("sim-decimals-b", 6, "token B decimals")
	simulateCmd.Flags().Uint64("sim-liquidity", 1_000_000_000_000, "full-range liquidity of other LPs")
	simulateCmd.Flags().Uint64("sim-deposit", 100_000_000, "token A each user deposits")
	simulateCmd.Flags().Int("sim-users", 3, "number of depositors")
	simulateCmd.Flags().Uint64("sim-trade-volume", 1_000_000_000, "token A an outside trader swaps while in range")
	simulateCmd.Flags().Int32("sim-shift-ticks", 1000, "ticks the market moves before rebalancing")
	simulateCmd.Flags().String("sim-range-mode", config.RangeAbove, "rebalance target when no ticks are given: above (from the price up) or around")
	root.AddCommand(simulateCmd)

	liveFlags := func(cmd *cobra.Command) *cobra.Command {
		cmd.Flags().String("rpc", "", "Solana RPC URL")
		cmd.Flags().String("keypair", "", "keeper keypair file (solana-keygen JSON)")
		cmd.Flags().String("pool", "", "Whirlpool address")
		cmd.Flags().String("state-file", "./data/vault.json", "vault state file")
		cmd.Flags().Uint("max-retries", 5, "maximum RPC read attempts")
		cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
		cmd.Flags().Duration("confirm-timeout", 60*time.Second, "transaction confirmation timeout")
		return cmd
	}

	initCmd := liveFlags(&cobra.Command{
		Use:   "init",
		Short: "Initialize a vault over a live Whirlpool and open its first position",
		RunE:  runInit,
	})
	initCmd.Flags().String("vault", "", "vault address (random when empty)")
	initCmd.Flags().String("token-a", "", "token A mint")
	initCmd.Flags().String("token-b", "", "token B mint")
	initCmd.Flags().String("share-mint", "", "share mint, with the keeper as mint authority and zero supply")
	initCmd.Flags().String("program-id", "", "vault program; when set the share mint must be its derived address")
	root.AddCommand(initCmd)

	root.AddCommand(liveFlags(&cobra.Command{
		Use:   "status",
		Short: "Report the vault position against the current pool price",
		RunE:  runStatus,
	}))

	root.AddCommand(liveFlags(&cobra.Command{
		Use:   "rebalance",
		Short: "Move liquidity into a new range if the position is out of range",
		RunE:  runRebalance,
	}))

	depositCmd := liveFlags(&cobra.Command{
		Use:   "deposit",
		Short: "Deposit token A (and matching token B) from the keeper wallet",
		RunE:  runDeposit,
	})
	depositCmd.Flags().Uint64("amount", 0, "token A amount in base units")
	root.AddCommand(depositCmd)

	root.AddCommand(liveFlags(&cobra.Command{
		Use:   "withdraw",
		Short: "Burn the keeper wallet's shares and withdraw its liquidity",
		RunE:  runWithdraw,
	}))

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "List Whirlpools for a token pair",
		RunE:  runPools,
	}
	poolsCmd.Flags().String("rpc", "", "Solana RPC URL")
	poolsCmd.Flags().String("token-a", "", "token A mint")
	poolsCmd.Flags().String("token-b", "", "token B mint")
	root.AddCommand(poolsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
