package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/services/exit"
	"MicroTrader/internal/services/strategy"
	"MicroTrader/internal/testutil"
	"MicroTrader/pkg/logger"
	"MicroTrader/pkg/util"
)

func cycleBars(tail ...float64) []models.Bar {
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	closes := make([]float64, 30, 30+len(tail))
	for i := range closes {
		closes[i] = 100
	}
	closes = append(closes, tail...)
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{
			Time: start.Add(time.Duration(i) * time.Minute), Open: c, High: c + 0.05, Low: c - 0.05, Close: c, Volume: 1000,
		}
	}
	return out
}

func risingDaily(n int) []models.Bar {
	out := make([]models.Bar, n)
	p := 50.0
	for i := range out {
		out[i] = models.Bar{Time: t0.AddDate(0, 0, i-n), Open: p, High: p * 1.01, Low: p * 0.99, Close: p, Volume: 1e6}
		p *= 1.01
	}
	return out
}

func newCycleHarness(t *testing.T, acct models.Account) (*harness, *Cycle) {
	t.Helper()
	h := newHarness(t, acct)
	h.md.Intraday["SPY"] = cycleBars()
	h.md.Intraday["AAA"] = cycleBars(100.4, 100.8, 101.2, 101.6, 102.0)
	h.md.Daily["AAA"] = risingDaily(40)
	h.md.Prices["AAA"] = 102

	afternoon := func() time.Time { return time.Date(2026, 3, 2, 14, 0, 0, 0, util.Eastern) }
	gen := strategy.NewGenerator(strategy.DefaultConfig(), h.md,
		&testutil.Classifier{Probs: map[string]float64{"AAA": 0.8}}, testutil.Sentiment{}, h.gate, logger.Nop(),
		strategy.WithEntryFilter(func([]models.Bar) bool { return true }),
		strategy.WithReversalDetector(func([]models.Bar) float64 { return 0 }),
		strategy.WithClock(afternoon),
	)
	exits := exit.NewEngine(exit.DefaultConfig(), h.gate, h.md, logger.Nop(),
		exit.WithClock(h.clock.Now),
		exit.WithExitFilter(func([]models.Bar) bool { return false }),
	)
	c := NewCycle(
		CycleConfig{Universe: []string{"AAA"}, RegimeSymbol: "SPY"},
		h.md, h.broker, h.store,
		strategy.NewCrashDetector(h.md, "SPY", logger.Nop()),
		NewPnLTracker(h.broker, h.store, h.clock.Now, nil),
		exits, gen, h.gate, h.exec, nil, logger.Nop(),
	)
	c.now = h.clock.Now
	return h, c
}

func TestCycleExitsThenEnters(t *testing.T) {
	ctx := context.Background()
	h, c := newCycleHarness(t, richAccount)
	h.broker.Positions["ZZZ"] = models.Position{Symbol: "ZZZ", Qty: 10, EntryPrice: 100, CurrentPrice: 103}
	require.NoError(t, h.store.SetEntryTimestamp(ctx, "OLD", t0.Add(-time.Hour)))

	rep := c.RunOnce(ctx)

	assert.False(t, rep.Crash)
	require.NotNil(t, rep.EquityReturnPct)
	assert.Equal(t, []string{"ZZZ"}, h.broker.Closed)
	require.Len(t, rep.Exits, 1)
	assert.Equal(t, "take_profit", h.trades.ByStatus(models.StatusClosed)[0].Reason)

	ts, _ := h.store.GetEntryTimestamp(ctx, "OLD")
	assert.Nil(t, ts, "state of symbols no longer held is cleared")

	require.Len(t, rep.Signals, 1)
	require.Len(t, rep.Entries, 1)
	assert.True(t, rep.Entries[0].Submitted, rep.Entries[0].Reason)
	require.Len(t, h.broker.Submitted, 1)
	o := h.broker.Submitted[0]
	assert.Equal(t, 19, o.Qty)
	assert.Equal(t, 101.39, o.StopLossPrice)
	assert.Equal(t, 103.84, o.TakeProfitPrice)
	assert.Equal(t, 1, rep.OpenPositions)
	assert.Len(t, h.trades.ByStatus(models.StatusSignal), 1)
}

func TestCycleDailyLossBlocksEntries(t *testing.T) {
	h, c := newCycleHarness(t, models.Account{Equity: 96_000, LastEquity: 100_000, BuyingPower: 96_000})
	rep := c.RunOnce(context.Background())

	require.Len(t, rep.Entries, 1)
	assert.Equal(t, models.SkipDailyLossLimit, rep.Entries[0].Code)
	assert.Empty(t, h.broker.Submitted)
}

func TestCyclePositionListFailureHalts(t *testing.T) {
	h, c := newCycleHarness(t, richAccount)
	h.broker.PositionsErr = errors.New("timeout")
	rep := c.RunOnce(context.Background())
	assert.Empty(t, rep.Signals)
	assert.Equal(t, models.HaltListPositionsFailed, h.halt.Snapshot().Code)
}

func TestCycleRecoversFromPanic(t *testing.T) {
	h, c := newCycleHarness(t, richAccount)
	c.gen = nil
	assert.NotPanics(t, func() { c.RunOnce(context.Background()) })
	assert.Empty(t, h.broker.Submitted)
}
