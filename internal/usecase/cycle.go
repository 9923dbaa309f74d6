package usecase

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	"MicroTrader/internal/services/exit"
	"MicroTrader/internal/services/risk"
	"MicroTrader/internal/services/strategy"
	"MicroTrader/pkg/logger"
)

// CycleConfig drives the decision loop.
type CycleConfig struct {
	Universe      []string
	Interval      time.Duration
	SymbolDelay   time.Duration
	RegimeSymbol  string
	DailyLookback int
}

// CycleReport summarises one pass.
type CycleReport struct {
	Started         time.Time
	Crash           bool
	EquityReturnPct *float64
	Regime          models.Regime
	Reconcile       ReconcileReport
	Exits           []models.ExecutionResult
	Signals         []models.Signal
	Entries         []models.ExecutionResult
	OpenPositions   int
}

// Cycle is the single-threaded decision loop: crash probe, P&L, fill
// reconciliation, exits, then new entries.
type Cycle struct {
	cfg     CycleConfig
	md      repository.MarketData
	broker  repository.Broker
	store   repository.PortfolioStore
	crash   *strategy.CrashDetector
	pnl     *PnLTracker
	exits   *exit.Engine
	gen     *strategy.Generator
	gate    *risk.Gate
	exec    *Executor
	metrics repository.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewCycle wires the loop.
func NewCycle(
	cfg CycleConfig,
	md repository.MarketData,
	broker repository.Broker,
	store repository.PortfolioStore,
	crash *strategy.CrashDetector,
	pnl *PnLTracker,
	exits *exit.Engine,
	gen *strategy.Generator,
	gate *risk.Gate,
	exec *Executor,
	metrics repository.Metrics,
	log *logger.Logger,
) *Cycle {
	if log == nil {
		log = logger.Nop()
	}
	return &Cycle{
		cfg:     cfg,
		md:      md,
		broker:  broker,
		store:   store,
		crash:   crash,
		pnl:     pnl,
		exits:   exits,
		gen:     gen,
		gate:    gate,
		exec:    exec,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// Run executes a cycle immediately and then on every interval tick until
// ctx is cancelled.
func (c *Cycle) Run(ctx context.Context) error {
	interval := c.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	if err := c.exec.Pending().Load(ctx); err != nil {
		c.log.Warn("pending entries not restored", logger.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		c.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes one pass. A panic inside the pass is logged and
// swallowed so the loop keeps running.
func (c *Cycle) RunOnce(ctx context.Context) (rep CycleReport) {
	rep.Started = c.now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("cycle panic",
				logger.String("panic", fmt.Sprint(r)),
				logger.String("stack", string(debug.Stack())))
			c.recordError("cycle_panic")
		}
		if c.metrics != nil {
			c.metrics.RecordLatency("cycle", c.now().Sub(rep.Started).Seconds())
		}
	}()

	rep.Crash = c.crash.Detect(ctx).Crash

	pnl, err := c.pnl.Update(ctx)
	if err != nil {
		c.log.Warn("pnl tracker unavailable", logger.Error(err))
		c.recordError("pnl")
	}
	rep.EquityReturnPct = pnl.ReturnPct

	rep.Reconcile = c.exec.Reconcile(ctx)

	if c.broker == nil {
		c.log.Warn("trading client unavailable, cycle skipped")
		return rep
	}
	positions, err := c.broker.GetAllPositions(ctx)
	if err != nil {
		c.exec.trip(ctx, "", models.ActionClose, models.HaltListPositionsFailed, err)
		return rep
	}

	c.syncEntryState(ctx, positions)

	open := occupiedSlots(positions, c.exec.Pending())
	for _, p := range positions {
		if ctx.Err() != nil {
			return rep
		}
		pos := c.withState(ctx, p)
		d := c.exits.Evaluate(ctx, pos, rep.Crash)
		c.pause(ctx)
		if !d.Exit {
			continue
		}
		res := c.exec.Close(ctx, pos.Symbol, d.Reason)
		rep.Exits = append(rep.Exits, res)
		if res.Submitted || res.Code == models.SkipPositionUnavailable {
			open--
		}
	}

	rep.Regime = c.regime(ctx)
	rep.Signals = c.gen.Generate(ctx, strategy.Request{
		Universe:        c.cfg.Universe,
		CrashMode:       rep.Crash,
		EquityReturnPct: pnl.ReturnPct,
		Regime:          rep.Regime,
	})

	for _, sig := range rep.Signals {
		if ctx.Err() != nil {
			break
		}
		res := c.admit(ctx, sig, len(rep.Signals), open, pnl, rep.Crash)
		rep.Entries = append(rep.Entries, res)
		if res.Submitted {
			open++
		}
	}

	rep.OpenPositions = open
	if c.metrics != nil {
		c.metrics.SetOpenPositions(open)
	}
	c.log.Info("cycle complete",
		logger.Bool("crash", rep.Crash),
		logger.Int("signals", len(rep.Signals)),
		logger.Int("entries", countSubmitted(rep.Entries)),
		logger.Int("exits", countSubmitted(rep.Exits)),
		logger.Int("open", open))
	return rep
}

// admit runs the gate for one signal and, when admitted, sizes the request
// from the per-signal allocation and hands it to the executor.
func (c *Cycle) admit(ctx context.Context, sig models.Signal, nSignals, open int, pnl PnLSnapshot, crash bool) models.ExecutionResult {
	c.exec.record(ctx, models.TradeEvent{
		Symbol: sig.Symbol,
		Action: string(models.ActionBuy),
		Status: models.StatusSignal,
		Reason: sig.Reason,
		Extra: map[string]any{
			"type":        string(sig.Type),
			"score":       sig.Score,
			"probability": sig.Probability,
			"regime":      sig.RegimeScore,
		},
	})

	maxNotional := c.gate.MaxPositionNotional(pnl.Equity, crash)
	allocation := maxNotional
	if budget := c.gate.Config().DailyBudget; budget > 0 && nSignals > 0 {
		allocation = math.Min(budget/float64(nSignals), maxNotional)
	}
	if ok, code := c.gate.Admit(open, allocation, crash, pnl.Equity, pnl.ReturnPct); !ok {
		return c.exec.skip(ctx, sig.Symbol, models.ActionBuy, code, "")
	}

	price, err := c.md.GetPrice(ctx, sig.Symbol)
	if err != nil {
		return c.exec.skip(ctx, sig.Symbol, models.ActionBuy, models.SkipPriceUnavailable,
			fmt.Sprintf("%s: %v", models.SkipPriceUnavailable, err))
	}
	if !(price > 0) {
		return c.exec.skip(ctx, sig.Symbol, models.ActionBuy, models.SkipInvalidEntryPrice, fmt.Sprintf("entry=%v", price))
	}
	qty := int(math.Floor(allocation / price))
	if qty < 1 {
		return c.exec.skip(ctx, sig.Symbol, models.ActionBuy, models.SkipRiskSizingBlocked,
			fmt.Sprintf("allocation=%.2f price=%.2f", allocation, price))
	}

	intent := models.IntentFromSignal(sig)
	intent.RequestedQty = qty
	intent.EntryPrice = price
	return c.exec.Execute(ctx, intent, crash)
}

// syncEntryState clears stored entry state for symbols the broker no longer
// holds, e.g. positions closed by a bracket leg.
func (c *Cycle) syncEntryState(ctx context.Context, positions []models.Position) {
	if c.store == nil {
		return
	}
	tracked, err := c.store.TrackedSymbols(ctx)
	if err != nil {
		c.log.Warn("tracked symbols unavailable", logger.Error(err))
		return
	}
	open := make(map[string]bool, len(positions))
	for _, p := range positions {
		open[models.NormalizeSymbol(p.Symbol)] = true
	}
	for _, sym := range tracked {
		if open[sym] {
			continue
		}
		c.exec.clearEntry(ctx, sym)
		c.log.Info("cleared stale entry state", logger.String("symbol", sym))
	}
}

func (c *Cycle) withState(ctx context.Context, p models.Position) models.Position {
	if c.store == nil {
		return p
	}
	sym := models.NormalizeSymbol(p.Symbol)
	ts, err := c.store.GetEntryTimestamp(ctx, sym)
	if err != nil {
		c.log.Warn("entry timestamp unavailable", logger.String("symbol", sym), logger.Error(err))
	}
	meta, err := c.store.GetEntryMetadata(ctx, sym)
	if err != nil {
		c.log.Warn("entry metadata unavailable", logger.String("symbol", sym), logger.Error(err))
	}
	return p.WithState(ts, meta)
}

func (c *Cycle) regime(ctx context.Context) models.Regime {
	if c.cfg.RegimeSymbol == "" {
		return models.Regime{Label: models.RegimeNeutral}
	}
	limit := c.cfg.DailyLookback
	if limit <= 0 {
		limit = 60
	}
	bars, err := c.md.GetDailyAggregates(ctx, c.cfg.RegimeSymbol, limit)
	if err != nil {
		c.log.Warn("regime data unavailable", logger.String("symbol", c.cfg.RegimeSymbol), logger.Error(err))
		return models.Regime{Symbol: c.cfg.RegimeSymbol, Label: models.RegimeNeutral}
	}
	r := strategy.ComputeRegime(c.cfg.RegimeSymbol, bars)
	c.log.Info("regime",
		logger.String("label", string(r.Label)),
		logger.Float("score", r.Score))
	return r
}

func (c *Cycle) pause(ctx context.Context) {
	if c.cfg.SymbolDelay <= 0 {
		return
	}
	t := time.NewTimer(c.cfg.SymbolDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Cycle) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}

func countSubmitted(rs []models.ExecutionResult) int {
	n := 0
	for _, r := range rs {
		if r.Submitted {
			n++
		}
	}
	return n
}
