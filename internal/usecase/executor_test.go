package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	"MicroTrader/internal/services/risk"
	"MicroTrader/internal/testutil"
	"MicroTrader/pkg/logger"
)

var t0 = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type harness struct {
	clock  *testutil.Clock
	broker *testutil.Broker
	md     *testutil.MarketData
	store  *testutil.Store
	trades *testutil.TradeLog
	halt   *HaltState
	gate   *risk.Gate
	exec   *Executor
}

func testRiskConfig() risk.Config {
	cfg := risk.DefaultConfig()
	cfg.DailyBudget = 6000
	cfg.MaxPositionPct = 0
	return cfg
}

func newHarness(t *testing.T, acct models.Account, mutate ...func(*ExecutorConfig)) *harness {
	t.Helper()
	h := &harness{
		clock:  testutil.NewClock(t0),
		broker: testutil.NewBroker(acct),
		md:     testutil.NewMarketData(),
		store:  testutil.NewStore(),
		trades: &testutil.TradeLog{},
		gate:   risk.NewGate(testRiskConfig()),
	}
	h.halt = NewHaltState(300*time.Second, h.clock.Now)
	cfg := DefaultExecutorConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	seq := 0
	h.exec = NewExecutor(cfg, h.broker, h.md, h.store, NewPendingBook(h.store), h.halt, h.gate, h.trades, logger.Nop(),
		WithExecutorClock(h.clock.Now),
		WithOrderIDs(func() string { seq++; return fmt.Sprintf("cid-%d", seq) }),
	)
	return h
}

func buy(symbol string, qty int) models.TradeIntent {
	return models.TradeIntent{
		Symbol:          symbol,
		Action:          models.ActionBuy,
		RequestedQty:    qty,
		EntryPrice:      50,
		StopLossPrice:   49,
		TakeProfitPrice: 52,
		SignalType:      models.SignalMomentum,
		DataSource:      models.DataSourceIntraday,
	}
}

var richAccount = models.Account{Equity: 100_000, LastEquity: 100_000, BuyingPower: 100_000}

func TestExecuteCapsRequestedQtyAtSizedQty(t *testing.T) {
	h := newHarness(t, richAccount)
	res := h.exec.Execute(context.Background(), buy("aaa", 100), false)

	require.True(t, res.Submitted, res.Reason)
	assert.Equal(t, 40, res.Qty)
	require.Len(t, h.broker.Submitted, 1)
	o := h.broker.Submitted[0]
	assert.Equal(t, "AAA", o.Symbol)
	assert.Equal(t, 40, o.Qty)
	assert.Equal(t, 49.0, o.StopLossPrice)
	assert.Equal(t, 52.0, o.TakeProfitPrice)
	assert.Equal(t, "cid-1", o.ClientOrderID)

	// Not filled yet: tracked as pending, no entry timestamp.
	assert.Equal(t, 1, h.exec.Pending().Len())
	ts, _ := h.store.GetEntryTimestamp(context.Background(), "AAA")
	assert.Nil(t, ts)
	assert.Len(t, h.trades.ByStatus(models.StatusPending), 1)
}

func TestExecuteSmallerRequestWins(t *testing.T) {
	h := newHarness(t, richAccount)
	res := h.exec.Execute(context.Background(), buy("AAA", 10), false)
	require.True(t, res.Submitted)
	assert.Equal(t, 10, res.Qty)
}

func TestExecuteBuyingPowerInsufficient(t *testing.T) {
	h := newHarness(t, models.Account{Equity: 100_000, BuyingPower: 500})
	res := h.exec.Execute(context.Background(), buy("AAA", 100), false)

	assert.True(t, res.Skipped)
	assert.Equal(t, models.SkipBuyingPowerInsufficient, res.Code)
	assert.Empty(t, h.broker.Submitted)
	assert.False(t, h.halt.Snapshot().Halted)
	require.Len(t, h.trades.ByStatus(models.StatusSkipped), 1)
	assert.Equal(t, "buying_power_insufficient", h.trades.ByStatus(models.StatusSkipped)[0].Extra["code"])
}

func TestSubmitFailureHaltsUntilCooldown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, richAccount)
	h.broker.SubmitErr = errors.New("503 service unavailable")

	res := h.exec.Execute(ctx, buy("AAA", 100), false)
	assert.True(t, res.Skipped)
	assert.Equal(t, models.HaltSubmitFailed, res.Code)

	snap := h.halt.Snapshot()
	assert.True(t, snap.Halted)
	assert.Contains(t, snap.Reason, "alpaca_submit_failed")
	assert.Len(t, h.trades.ByStatus(models.StatusHalted), 1)

	h.broker.SubmitErr = nil
	res = h.exec.Execute(ctx, buy("BBB", 100), false)
	assert.True(t, res.Skipped)
	assert.Contains(t, res.Reason, "alpaca_submit_failed")
	assert.Empty(t, h.broker.Submitted)

	h.clock.Advance(301 * time.Second)
	res = h.exec.Execute(ctx, buy("BBB", 100), false)
	assert.True(t, res.Submitted)
	assert.False(t, h.halt.Snapshot().Halted)
	assert.Len(t, h.trades.ByStatus(models.StatusHaltCleared), 1)
}

func TestBrokerReadFailuresHalt(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, richAccount)
	h.broker.PositionsErr = errors.New("timeout")
	res := h.exec.Execute(ctx, buy("AAA", 1), false)
	assert.Equal(t, models.HaltListPositionsFailed, res.Code)
	assert.True(t, h.halt.Snapshot().Halted)

	h = newHarness(t, richAccount)
	h.broker.AccountErr = errors.New("timeout")
	res = h.exec.Execute(ctx, buy("AAA", 1), false)
	assert.Equal(t, models.HaltGetAccountFailed, res.Code)
	assert.Contains(t, h.halt.Snapshot().Reason, "alpaca_get_account_failed: timeout")
}

func TestRateLimitedBrokerSkipsWithoutHalt(t *testing.T) {
	ctx := context.Background()
	limited := fmt.Errorf("alpaca: %w", repository.ErrRateLimited)

	cases := []struct {
		name   string
		set    func(b *testutil.Broker)
		prefix string
	}{
		{"list positions", func(b *testutil.Broker) { b.PositionsErr = limited }, string(models.HaltListPositionsFailed)},
		{"get account", func(b *testutil.Broker) { b.AccountErr = limited }, string(models.HaltGetAccountFailed)},
		{"submit", func(b *testutil.Broker) { b.SubmitErr = limited }, string(models.HaltSubmitFailed)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, richAccount)
			tc.set(h.broker)

			res := h.exec.Execute(ctx, buy("AAA", 5), false)
			assert.True(t, res.Skipped)
			assert.Equal(t, models.SkipRateLimited, res.Code)
			assert.Contains(t, res.Reason, tc.prefix)
			assert.False(t, h.halt.Snapshot().Halted)
			assert.Empty(t, h.trades.ByStatus(models.StatusHalted))

			h.broker.PositionsErr, h.broker.AccountErr, h.broker.SubmitErr = nil, nil, nil
			assert.True(t, h.exec.Execute(ctx, buy("BBB", 5), false).Submitted)
		})
	}
}

func TestExecuteSkips(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		setup  func(h *harness)
		intent func() models.TradeIntent
		crash  bool
		code   models.SkipReason
	}{
		{
			name:   "missing symbol",
			intent: func() models.TradeIntent { return buy("  ", 1) },
			code:   models.SkipMissingSymbol,
		},
		{
			name: "unsupported action",
			intent: func() models.TradeIntent {
				in := buy("AAA", 1)
				in.Action = "SHORT"
				return in
			},
			code: models.SkipUnsupportedAction,
		},
		{
			name: "position exists",
			setup: func(h *harness) {
				h.broker.Positions["AAA"] = models.Position{Symbol: "AAA", Qty: 5}
			},
			intent: func() models.TradeIntent { return buy("AAA", 1) },
			code:   models.SkipPositionExists,
		},
		{
			name: "max positions in crash mode",
			setup: func(h *harness) {
				for _, s := range []string{"X1", "X2", "X3"} {
					h.broker.Positions[s] = models.Position{Symbol: s, Qty: 1}
				}
			},
			intent: func() models.TradeIntent { return buy("AAA", 1) },
			crash:  true,
			code:   models.SkipMaxPositionsReached,
		},
		{
			name: "max positions counts pending entries",
			setup: func(h *harness) {
				h.broker.Positions["X1"] = models.Position{Symbol: "X1", Qty: 1}
				for i, s := range []string{"x1", "X2", "X3", "X4", "X5"} {
					_ = h.exec.Pending().Add(context.Background(), models.PendingEntry{
						OrderID:     fmt.Sprintf("seed-%d", i),
						Symbol:      s,
						SubmittedAt: t0,
					})
				}
			},
			intent: func() models.TradeIntent { return buy("AAA", 1) },
			code:   models.SkipMaxPositionsReached,
		},
		{
			name: "price unavailable",
			intent: func() models.TradeIntent {
				in := buy("AAA", 1)
				in.EntryPrice = 0
				return in
			},
			code: models.SkipPriceUnavailable,
		},
		{
			name: "invalid bracket",
			intent: func() models.TradeIntent {
				in := buy("AAA", 1)
				in.StopLossPrice = 51
				return in
			},
			code: models.SkipInvalidBracket,
		},
		{
			name:   "risk sizing blocked",
			setup:  func(h *harness) { h.broker.Account = models.Account{BuyingPower: 1000} },
			intent: func() models.TradeIntent { return buy("AAA", 1) },
			code:   models.SkipRiskSizingBlocked,
		},
		{
			name:   "buying power unavailable",
			setup:  func(h *harness) { h.broker.Account = models.Account{Equity: 100_000} },
			intent: func() models.TradeIntent { return buy("AAA", 1) },
			code:   models.SkipBuyingPowerUnavailable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, richAccount)
			if tc.setup != nil {
				tc.setup(h)
			}
			res := h.exec.Execute(ctx, tc.intent(), tc.crash)
			assert.True(t, res.Skipped)
			assert.False(t, res.Submitted)
			assert.Equal(t, tc.code, res.Code)
			assert.Empty(t, h.broker.Submitted)
			assert.False(t, h.halt.Snapshot().Halted)
		})
	}
}

func TestExecuteWithoutBroker(t *testing.T) {
	h := newHarness(t, richAccount)
	e := NewExecutor(DefaultExecutorConfig(), nil, h.md, h.store, NewPendingBook(nil), h.halt, h.gate, h.trades, nil)
	res := e.Execute(context.Background(), buy("AAA", 1), false)
	assert.Equal(t, models.SkipTradingClientUnavailable, res.Code)
	res = e.Close(context.Background(), "AAA", "stop_loss")
	assert.Equal(t, models.SkipTradingClientUnavailable, res.Code)
}

func TestExecuteDefaultBracketFromFetchedPrice(t *testing.T) {
	h := newHarness(t, richAccount)
	h.md.Prices["AAA"] = 100
	in := models.TradeIntent{Symbol: "AAA", Action: models.ActionBuy}
	res := h.exec.Execute(context.Background(), in, false)
	require.True(t, res.Submitted, res.Reason)
	o := h.broker.Submitted[0]
	assert.Equal(t, 99.40, o.StopLossPrice)
	assert.Equal(t, 101.80, o.TakeProfitPrice)
	// 2000 cap / 100 = 20 shares; risk allows 1000/0.6.
	assert.Equal(t, 20, o.Qty)
}

func TestExecutePercentOverrides(t *testing.T) {
	h := newHarness(t, richAccount)
	in := buy("AAA", 0)
	in.StopLossPrice, in.TakeProfitPrice = 0, 0
	in.StopLossPct, in.TakeProfitPct = 0.02, 0.05
	in.MaxHoldMinutes = models.IntPtr(30)
	h.broker.SubmitStatus = models.OrderFilled
	h.broker.FillPrice = 50.01
	h.broker.FillTime = t0.Add(time.Second)

	res := h.exec.Execute(context.Background(), in, false)
	require.True(t, res.Submitted, res.Reason)
	o := h.broker.Submitted[0]
	assert.Equal(t, 49.0, o.StopLossPrice)
	assert.Equal(t, 52.5, o.TakeProfitPrice)

	meta, _ := h.store.GetEntryMetadata(context.Background(), "AAA")
	require.NotNil(t, meta)
	assert.Equal(t, 0.02, *meta.StopLossPct)
	assert.Equal(t, 0.05, *meta.TakeProfitPct)
	assert.Equal(t, 30, *meta.MaxHoldMinutes)
	assert.Equal(t, models.SignalMomentum, meta.SignalType)
}

func TestImmediateFillRecordsEntry(t *testing.T) {
	h := newHarness(t, richAccount)
	h.broker.SubmitStatus = models.OrderFilled
	h.broker.FillTime = t0.Add(2 * time.Second)

	res := h.exec.Execute(context.Background(), buy("AAA", 5), false)
	require.True(t, res.Submitted)
	ts, _ := h.store.GetEntryTimestamp(context.Background(), "AAA")
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(t0.Add(2*time.Second)))
	assert.Zero(t, h.exec.Pending().Len())
	assert.Len(t, h.trades.ByStatus(models.StatusFilled), 1)
}

func TestPendingEntryBlocksReentry(t *testing.T) {
	h := newHarness(t, richAccount)
	require.True(t, h.exec.Execute(context.Background(), buy("AAA", 5), false).Submitted)
	res := h.exec.Execute(context.Background(), buy("AAA", 5), false)
	assert.Equal(t, models.SkipPositionExists, res.Code)
}

func TestPendingEntriesCountTowardPositionCap(t *testing.T) {
	h := newHarness(t, richAccount)
	ctx := context.Background()
	for _, s := range []string{"AAA", "BBB", "CCC", "DDD", "EEE"} {
		require.True(t, h.exec.Execute(ctx, buy(s, 5), false).Submitted, s)
	}
	require.Equal(t, 5, h.exec.Pending().Len())
	assert.Empty(t, h.broker.Positions)

	for _, s := range []string{"FFF", "GGG", "HHH"} {
		res := h.exec.Execute(ctx, buy(s, 5), false)
		assert.Equal(t, models.SkipMaxPositionsReached, res.Code, s)
		assert.Equal(t, "0 open, 5 pending", res.Reason)
	}
	assert.Len(t, h.broker.Submitted, 5)
}

func TestOccupiedSlots(t *testing.T) {
	ctx := context.Background()
	book := NewPendingBook(nil)
	require.NoError(t, book.Add(ctx, models.PendingEntry{OrderID: "1", Symbol: "aaa"}))
	require.NoError(t, book.Add(ctx, models.PendingEntry{OrderID: "2", Symbol: "BBB"}))
	require.NoError(t, book.Add(ctx, models.PendingEntry{OrderID: "3", Symbol: "BBB"}))
	positions := []models.Position{{Symbol: "AAA"}, {Symbol: "CCC"}}

	assert.Equal(t, 3, occupiedSlots(positions, book))
	assert.Equal(t, 2, occupiedSlots(positions, nil))
	assert.Zero(t, occupiedSlots(nil, NewPendingBook(nil)))
}

func TestDryRun(t *testing.T) {
	h := newHarness(t, richAccount, func(c *ExecutorConfig) { c.DryRun = true })
	res := h.exec.Execute(context.Background(), buy("AAA", 100), false)
	assert.True(t, res.Skipped)
	assert.Equal(t, models.SkipDryRun, res.Code)
	assert.Equal(t, 40, res.Qty)
	assert.Empty(t, h.broker.Submitted)
	assert.Len(t, h.trades.ByStatus(models.StatusDryRun), 1)
}

func TestSellRoutesToClose(t *testing.T) {
	h := newHarness(t, richAccount)
	res := h.exec.Execute(context.Background(), models.TradeIntent{Symbol: "AAA", Action: models.ActionSell}, false)
	assert.Equal(t, models.ActionClose, res.Action)
	assert.Equal(t, models.SkipNoPosition, res.Code)
	assert.Equal(t, "sell_signal_close_only", res.Reason)
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("success clears entry state", func(t *testing.T) {
		h := newHarness(t, richAccount)
		h.broker.Positions["AAA"] = models.Position{Symbol: "AAA", Qty: 10, EntryPrice: 100, CurrentPrice: 102}
		_ = h.store.SetEntryTimestamp(ctx, "AAA", t0)
		_ = h.store.SetEntryMetadata(ctx, "AAA", models.EntryMetadata{SignalType: models.SignalMomentum})

		res := h.exec.Close(ctx, "AAA", "take_profit")
		assert.True(t, res.Submitted)
		assert.Equal(t, []string{"AAA"}, h.broker.Closed)
		ts, _ := h.store.GetEntryTimestamp(ctx, "AAA")
		assert.Nil(t, ts)

		closed := h.trades.ByStatus(models.StatusClosed)
		require.Len(t, closed, 1)
		assert.InDelta(t, 20.0, *closed[0].PnL, 1e-9)
		assert.InDelta(t, 0.02, *closed[0].PnLPct, 1e-9)
	})

	t.Run("fully held position is skipped", func(t *testing.T) {
		h := newHarness(t, richAccount)
		h.broker.Positions["AAA"] = models.Position{Symbol: "AAA", Qty: 10, HeldForOrders: 10, EntryPrice: 100, CurrentPrice: 99}
		_ = h.store.SetEntryTimestamp(ctx, "AAA", t0)
		res := h.exec.Close(ctx, "AAA", "time_exit")
		assert.Equal(t, models.SkipPositionHeld, res.Code)
		assert.Empty(t, h.broker.Closed)
		assert.False(t, h.halt.Snapshot().Halted)
		assert.Len(t, h.trades.ByStatus(models.StatusSkipped), 1)

		ts, _ := h.store.GetEntryTimestamp(ctx, "AAA")
		require.NotNil(t, ts)
		assert.True(t, ts.Equal(t0))
	})

	t.Run("benign broker error is a skip", func(t *testing.T) {
		h := newHarness(t, richAccount)
		h.broker.Positions["AAA"] = models.Position{Symbol: "AAA", Qty: 10, EntryPrice: 100, CurrentPrice: 99}
		h.broker.CloseErr = fmt.Errorf("close AAA: %w", repository.ErrNoPosition)
		res := h.exec.Close(ctx, "AAA", "stop_loss")
		assert.Equal(t, models.SkipPositionUnavailable, res.Code)
		assert.False(t, h.halt.Snapshot().Halted)
	})

	t.Run("other broker error halts", func(t *testing.T) {
		h := newHarness(t, richAccount)
		h.broker.Positions["AAA"] = models.Position{Symbol: "AAA", Qty: 10, EntryPrice: 100, CurrentPrice: 99}
		h.broker.CloseErr = errors.New("gateway timeout")
		res := h.exec.Close(ctx, "AAA", "stop_loss")
		assert.Equal(t, models.HaltCloseFailed, res.Code)
		assert.Contains(t, h.halt.Snapshot().Reason, "alpaca_close_failed")
	})

	t.Run("halt does not block exits", func(t *testing.T) {
		h := newHarness(t, richAccount)
		h.halt.Trip(models.HaltSubmitFailed, errors.New("boom"))
		h.broker.Positions["AAA"] = models.Position{Symbol: "AAA", Qty: 10, EntryPrice: 100, CurrentPrice: 99}
		res := h.exec.Close(ctx, "AAA", "stop_loss")
		assert.True(t, res.Submitted)
	})
}

func TestIsBenignCloseError(t *testing.T) {
	assert.False(t, IsBenignCloseError(nil))
	assert.True(t, IsBenignCloseError(errors.New("422: insufficient qty available for order")))
	assert.True(t, IsBenignCloseError(errors.New("404 Position does not exist")))
	assert.False(t, IsBenignCloseError(errors.New("500 internal error")))
}
