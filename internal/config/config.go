package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Range modes for the simulated rebalance target.
const (
	RangeAround = "around"
	RangeAbove  = "above"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	Keypair        string
	Pool           string
	Vault          string
	TokenA         string
	TokenB         string
	ShareMint      string
	ProgramID      string
	StateFile      string
	SpreadPct      float64
	LowerTick      int32
	UpperTick      int32
	MaxRetries     uint
	RetryBackoff   time.Duration
	ConfirmTimeout time.Duration
	LogLevel       string

	Sim SimConfig
}

// SimConfig parameterizes the in-memory simulation.
type SimConfig struct {
	Tick                int32
	TickSpacing         uint16
	FeeRate             uint16
	DecimalsA           uint8
	DecimalsB           uint8
	BackgroundLiquidity uint64
	Deposit             uint64
	Users               int
	TradeVolume         uint64
	ShiftTicks          int32
	RangeMode           string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("state-file", "./data/vault.json")
	v.SetDefault("spread-pct", 5.0)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("confirm-timeout", 60*time.Second)
	v.SetDefault("log-level", "info")

	v.SetDefault("sim-tick", 0)
	v.SetDefault("sim-tick-spacing", 64)
	v.SetDefault("sim-fee-rate", 3000)
	v.SetDefault("sim-decimals-a", 6)
	v.SetDefault("sim-decimals-b", 6)
	v.SetDefault("sim-liquidity", uint64(1_000_000_000_000))
	v.SetDefault("sim-deposit", uint64(100_000_000))
	v.SetDefault("sim-users", 3)
	v.SetDefault("sim-trade-volume", uint64(1_000_000_000))
	v.SetDefault("sim-shift-ticks", 1000)
	v.SetDefault("sim-range-mode", RangeAbove)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:         v.GetString("rpc"),
		Keypair:        v.GetString("keypair"),
		Pool:           v.GetString("pool"),
		Vault:          v.GetString("vault"),
		TokenA:         v.GetString("token-a"),
		TokenB:         v.GetString("token-b"),
		ShareMint:      v.GetString("share-mint"),
		ProgramID:      v.GetString("program-id"),
		StateFile:      v.GetString("state-file"),
		SpreadPct:      v.GetFloat64("spread-pct"),
		LowerTick:      v.GetInt32("lower-tick"),
		UpperTick:      v.GetInt32("upper-tick"),
		MaxRetries:     v.GetUint("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		ConfirmTimeout: v.GetDuration("confirm-timeout"),
		LogLevel:       v.GetString("log-level"),
		Sim: SimConfig{
			Tick:                v.GetInt32("sim-tick"),
			TickSpacing:         v.GetUint16("sim-tick-spacing"),
			FeeRate:             v.GetUint16("sim-fee-rate"),
			DecimalsA:           uint8(v.GetUint("sim-decimals-a")),
			DecimalsB:           uint8(v.GetUint("sim-decimals-b")),
			BackgroundLiquidity: v.GetUint64("sim-liquidity"),
			Deposit:             v.GetUint64("sim-deposit"),
			Users:               v.GetInt("sim-users"),
			TradeVolume:         v.GetUint64("sim-trade-volume"),
			ShiftTicks:          v.GetInt32("sim-shift-ticks"),
			RangeMode:           v.GetString("sim-range-mode"),
		},
	}
	switch cfg.Sim.RangeMode {
	case RangeAround, RangeAbove:
	default:
		return Config{}, fmt.Errorf("sim-range-mode %q: want %q or %q", cfg.Sim.RangeMode, RangeAround, RangeAbove)
	}

	return cfg, nil
}

// HasRange reports whether an explicit tick range was configured.
func (c Config) HasRange() bool {
	return c.LowerTick != 0 || c.UpperTick != 0
}
