package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yimingWOW/bloom/internal/config"
	"github.com/yimingWOW/bloom/internal/state"
	"github.com/yimingWOW/bloom/pkg/protocol"
	"github.com/yimingWOW/bloom/pkg/sol"
	"github.com/yimingWOW/bloom/pkg/vault"
)

// keeper bundles the on-chain wiring for one keeper keypair and pool.
type keeper struct {
	key    solana.PrivateKey
	pool   solana.PublicKey
	client *sol.Client
	proto  *protocol.OrcaWhirlpoolProtocol
	store  *state.Store
	logger *zap.Logger
}

func newKeeper(cfg config.Config, log *zap.Logger) (*keeper, error) {
	if cfg.Keypair == "" {
		return nil, errors.New("keypair is required")
	}
	if cfg.Pool == "" {
		return nil, errors.New("pool is required")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.Keypair)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	pool, err := solana.PublicKeyFromBase58(cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("parse pool: %w", err)
	}
	client, err := sol.NewClient(sol.Config{
		Endpoint:       cfg.RPCURL,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, log)
	if err != nil {
		return nil, err
	}
	return &keeper{
		key:    key,
		pool:   pool,
		client: client,
		proto:  protocol.NewOrcaWhirlpool(client),
		store:  state.NewStore(cfg.StateFile),
		logger: log,
	}, nil
}

func (k *keeper) Close() {
	k.client.Close()
}

func (k *keeper) authority(vaultAddr solana.PublicKey) vault.Authority {
	return vault.NewKeeperAuthority(vaultAddr, k.pool, k.key.PublicKey())
}

func (k *keeper) adapters() (*protocol.WhirlpoolAdapter, *protocol.SPLTokens) {
	return protocol.NewWhirlpoolAdapter(k.proto, k.pool, k.key, k.logger), protocol.NewSPLTokens(k.client, k.key)
}

// load restores the vault from the state file.
func (k *keeper) load() (*vault.Vault, error) {
	account, err := k.store.Load()
	if err != nil {
		return nil, err
	}
	if !account.Pool.Equals(k.pool) {
		return nil, fmt.Errorf("%w: state is for pool %s, configured pool is %s", vault.ErrPreconditionMismatch, account.Pool, k.pool)
	}
	pool, tokens := k.adapters()
	return vault.Load(account, k.authority(account.Address), pool, tokens, k.logger)
}

func withKeeper(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, k *keeper) error) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	k, err := newKeeper(cfg, log)
	if err != nil {
		return err
	}
	defer k.Close()

	ctx, stop := signalContext()
	defer stop()
	return fn(ctx, cfg, k)
}

func runInit(cmd *cobra.Command, _ []string) error {
	return withKeeper(cmd, func(ctx context.Context, cfg config.Config, k *keeper) error {
		if _, err := k.store.Load(); err == nil {
			return fmt.Errorf("vault state already exists at %s", cfg.StateFile)
		} else if !errors.Is(err, state.ErrNoState) {
			return err
		}

		vaultAddr := solana.NewWallet().PublicKey()
		if cfg.Vault != "" {
			var err error
			if vaultAddr, err = solana.PublicKeyFromBase58(cfg.Vault); err != nil {
				return fmt.Errorf("parse vault: %w", err)
			}
		}
		pool, err := k.proto.FetchPoolByID(ctx, k.pool)
		if err != nil {
			return err
		}
		mintA, mintB := pool.TokenMintA, pool.TokenMintB
		if cfg.TokenA != "" && cfg.TokenA != mintA.String() {
			return fmt.Errorf("%w: pool token A is %s", vault.ErrPreconditionMismatch, mintA)
		}
		if cfg.TokenB != "" && cfg.TokenB != mintB.String() {
			return fmt.Errorf("%w: pool token B is %s", vault.ErrPreconditionMismatch, mintB)
		}
		shareMint, err := resolveShareMint(cfg, vaultAddr, k.pool, mintA, mintB, k.logger)
		if err != nil {
			return err
		}

		r := vault.PriceRange{LowerTick: cfg.LowerTick, UpperTick: cfg.UpperTick}
		if !cfg.HasRange() {
			if r, err = vault.RangeAround(pool.TickCurrentIndex, pool.TickSpacing, cfg.SpreadPct); err != nil {
				return err
			}
		}

		poolAdapter, tokens := k.adapters()
		v, err := vault.Initialize(ctx, vault.InitParams{
			Address:    vaultAddr,
			Pool:       k.pool,
			TokenMintA: mintA,
			TokenMintB: mintB,
			ShareMint:  shareMint,
			Admin:      k.key.PublicKey(),
			LowerTick:  r.LowerTick,
			UpperTick:  r.UpperTick,
		}, k.authority(vaultAddr), poolAdapter, tokens, k.logger)
		if err != nil {
			return err
		}
		if err := k.store.Save(v.Account()); err != nil {
			return err
		}
		return printJSON(state.FromAccount(v.Account()))
	})
}

// resolveShareMint picks the share mint for init. With a program ID the mint must be
// the program's derived address for the vault; the other program accounts are logged
// so the operator can create them.
func resolveShareMint(cfg config.Config, vaultAddr, pool, mintA, mintB solana.PublicKey, log *zap.Logger) (solana.PublicKey, error) {
	if cfg.ProgramID == "" {
		if cfg.ShareMint == "" {
			return solana.PublicKey{}, errors.New("share-mint is required without program-id")
		}
		mint, err := solana.PublicKeyFromBase58(cfg.ShareMint)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("parse share mint: %w", err)
		}
		return mint, nil
	}

	program, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("parse program id: %w", err)
	}
	derived, _, err := vault.DeriveShareMint(program, vaultAddr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive share mint: %w", err)
	}
	if cfg.ShareMint != "" && cfg.ShareMint != derived.String() {
		return solana.PublicKey{}, fmt.Errorf("%w: share mint %s, program derives %s", vault.ErrInvalidPoolTokenMint, cfg.ShareMint, derived)
	}

	auth, err := vault.DeriveAuthority(program, vaultAddr, pool)
	if err != nil {
		return solana.PublicKey{}, err
	}
	reserveA, _, err := vault.DeriveReserveAccount(program, vaultAddr, mintA)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive reserve A: %w", err)
	}
	reserveB, _, err := vault.DeriveReserveAccount(program, vaultAddr, mintB)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive reserve B: %w", err)
	}
	log.Info("program accounts",
		zap.Stringer("program", program),
		zap.Stringer("authority", auth),
		zap.Stringer("shareMint", derived),
		zap.Stringer("reserveA", reserveA),
		zap.Stringer("reserveB", reserveB))
	return derived, nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withKeeper(cmd, func(ctx context.Context, _ config.Config, k *keeper) error {
		v, err := k.load()
		if err != nil {
			return err
		}
		status, err := v.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(newStatusView(status))
	})
}

func runRebalance(cmd *cobra.Command, _ []string) error {
	return withKeeper(cmd, func(ctx context.Context, cfg config.Config, k *keeper) error {
		v, err := k.load()
		if err != nil {
			return err
		}
		r := vault.PriceRange{LowerTick: cfg.LowerTick, UpperTick: cfg.UpperTick}
		if !cfg.HasRange() {
			if r, err = v.SuggestRange(ctx, cfg.SpreadPct); err != nil {
				return err
			}
		}

		report, rebalanceErr := v.Rebalance(ctx, r.LowerTick, r.UpperTick)
		account := v.Account()
		if report != nil {
			// a failure past the close leaves the opened position as the one the vault holds
			account = report.Settle(account)
		}
		if err := k.store.Save(account); err != nil {
			k.logger.Error("save vault state", zap.Error(err))
		}
		if report != nil {
			if err := printJSON(newReportView(report)); err != nil {
				return err
			}
		}
		return rebalanceErr
	})
}

func runDeposit(cmd *cobra.Command, _ []string) error {
	return withKeeper(cmd, func(ctx context.Context, _ config.Config, k *keeper) error {
		amount, _ := cmd.Flags().GetUint64("amount")
		if amount == 0 {
			return errors.New("amount is required")
		}
		v, err := k.load()
		if err != nil {
			return err
		}
		receipt, err := v.AddLiquidity(ctx, k.key.PublicKey(), amount)
		if err != nil {
			return err
		}
		return printJSON(newDepositView(k.key.PublicKey(), receipt))
	})
}

func runWithdraw(cmd *cobra.Command, _ []string) error {
	return withKeeper(cmd, func(ctx context.Context, _ config.Config, k *keeper) error {
		v, err := k.load()
		if err != nil {
			return err
		}
		receipt, err := v.RemoveLiquidity(ctx, k.key.PublicKey())
		if err != nil {
			return err
		}
		return printJSON(newWithdrawView(k.key.PublicKey(), receipt))
	})
}

type poolView struct {
	Address     string  `json:"address"`
	TokenMintA  string  `json:"token_mint_a"`
	TokenMintB  string  `json:"token_mint_b"`
	TickSpacing uint16  `json:"tick_spacing"`
	FeeRate     uint16  `json:"fee_rate"`
	Tick        int32   `json:"tick"`
	Liquidity   string  `json:"liquidity"`
	Price       float64 `json:"price"`
}

// runPools lists the Whirlpools for a token pair. It needs only an RPC endpoint.
func runPools(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	if cfg.TokenA == "" || cfg.TokenB == "" {
		return errors.New("token-a and token-b are required")
	}

	client, err := sol.NewClient(sol.Config{
		Endpoint:     cfg.RPCURL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signalContext()
	defer stop()

	pools, err := protocol.NewOrcaWhirlpool(client).FetchPoolsByPair(ctx, cfg.TokenA, cfg.TokenB)
	if err != nil {
		return err
	}
	views := make([]poolView, 0, len(pools))
	for _, p := range pools {
		mintA, err := client.GetMint(ctx, p.TokenMintA)
		if err != nil {
			return err
		}
		mintB, err := client.GetMint(ctx, p.TokenMintB)
		if err != nil {
			return err
		}
		views = append(views, poolView{
			Address:     p.PoolId.String(),
			TokenMintA:  p.TokenMintA.String(),
			TokenMintB:  p.TokenMintB.String(),
			TickSpacing: p.TickSpacing,
			FeeRate:     p.FeeRate,
			Tick:        p.TickCurrentIndex,
			Liquidity:   p.Liquidity.String(),
			Price:       vault.SqrtPriceX64ToPrice(p.SqrtPrice, mintA.Decimals, mintB.Decimals),
		})
	}
	return printJSON(views)
}
