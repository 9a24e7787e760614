package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yimingWOW/bloom/internal/config"
	"github.com/yimingWOW/bloom/pkg/vault"
)

func simConfig() config.Config {
	return config.Config{
		SpreadPct: 5,
		Sim: config.SimConfig{
			TickSpacing:         64,
			FeeRate:             3000,
			DecimalsA:           6,
			DecimalsB:           6,
			BackgroundLiquidity: 1_000_000_000_000,
			Deposit:             100_000_000,
			Users:               3,
			TradeVolume:         1_000_000_000,
			ShiftTicks:          1000,
			RangeMode:           config.RangeAbove,
		},
	}
}

func runSim(t *testing.T, cfg config.Config) *simSummary {
	t.Helper()
	ctx := context.Background()
	s, err := newSimulation(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	summary, err := s.run(ctx, cfg)
	require.NoError(t, err)
	return summary
}

func TestSimulationRun(t *testing.T) {
	summary := runSim(t, simConfig())

	assert.True(t, summary.Initial.InRange)
	require.Len(t, summary.Deposits, 3)
	for _, d := range summary.Deposits {
		assert.NotZero(t, d.SharesMinted)
		assert.NotEqual(t, "0", d.Liquidity)
	}
	assert.False(t, summary.Drifted.InRange)
	assert.Greater(t, summary.Drifted.CurrentTick, summary.Initial.UpperTick)

	require.Empty(t, summary.Error)
	require.NotNil(t, summary.Rebalance)
	assert.True(t, summary.Rebalance.Rebalanced)
	assert.True(t, summary.Final.InRange)
	assert.Equal(t, int32(960), summary.Final.LowerTick)
	assert.LessOrEqual(t, summary.Final.LowerTick, summary.Drifted.CurrentTick)

	require.Len(t, summary.Withdraws, 3)
	for _, w := range summary.Withdraws {
		assert.NotZero(t, w.SharesBurned)
		assert.NotZero(t, w.AmountA)
		assert.NotZero(t, w.AmountB)
	}
}

// A range centred on the drifted price needs about half the value in token A. The
// single swap sized at the pre-swap price leaves the deposit short of token B.
func TestSimulationCentredRangeMiscalculates(t *testing.T) {
	cfg := simConfig()
	cfg.Sim.RangeMode = config.RangeAround
	summary := runSim(t, cfg)

	require.NotNil(t, summary.Rebalance)
	assert.False(t, summary.Rebalance.Rebalanced)
	assert.ErrorIs(t, summary.err, vault.ErrMiscalculation)
	assert.NotEmpty(t, summary.Error)
	// rolled back: the old range is still in place and withdrawals are skipped
	assert.Equal(t, summary.Drifted, summary.Final)
	require.Len(t, summary.Withdraws, 3)
	for _, w := range summary.Withdraws {
		assert.Zero(t, w.SharesBurned)
	}
}
