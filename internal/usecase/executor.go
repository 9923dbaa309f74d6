package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	"MicroTrader/internal/services/risk"
	"MicroTrader/pkg/logger"
)

const sellCloseReason = "sell_signal_close_only"

// ExecutorConfig is the execution surface.
type ExecutorConfig struct {
	DryRun          bool
	PendingTTL      time.Duration
	SlippageWarnPct float64
	TimeInForce     string
}

// DefaultExecutorConfig returns production execution settings.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PendingTTL:      time.Hour,
		SlippageWarnPct: 0.005,
		TimeInForce:     "day",
	}
}

// Executor turns intents into bracket orders, closes positions and
// reconciles asynchronous fills. Every skip and halt is written to the
// trade log with its reason code.
type Executor struct {
	cfg     ExecutorConfig
	broker  repository.Broker
	md      repository.MarketData
	store   repository.PortfolioStore
	pending *PendingBook
	halt    *HaltState
	gate    *risk.Gate
	trades  repository.TradeLogger
	metrics repository.Metrics
	log     *logger.Logger
	now     func() time.Time
	newID   func() string
}

// ExecutorOption customises an Executor.
type ExecutorOption func(*Executor)

// WithExecutorClock injects the wall clock.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithOrderIDs replaces the client order id generator.
func WithOrderIDs(f func() string) ExecutorOption {
	return func(e *Executor) { e.newID = f }
}

// WithExecutorMetrics records skip, order and halt counters.
func WithExecutorMetrics(m repository.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor wires an executor. broker may be nil, in which case every
// attempt is skipped as trading_client_unavailable.
func NewExecutor(
	cfg ExecutorConfig,
	broker repository.Broker,
	md repository.MarketData,
	store repository.PortfolioStore,
	pending *PendingBook,
	halt *HaltState,
	gate *risk.Gate,
	trades repository.TradeLogger,
	log *logger.Logger,
	opts ...ExecutorOption,
) *Executor {
	if log == nil {
		log = logger.Nop()
	}
	e := &Executor{
		cfg:     cfg,
		broker:  broker,
		md:      md,
		store:   store,
		pending: pending,
		halt:    halt,
		gate:    gate,
		trades:  trades,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Halt returns the shared halt state.
func (e *Executor) Halt() *HaltState { return e.halt }

// Pending returns the pending-entry book.
func (e *Executor) Pending() *PendingBook { return e.pending }

// ClearHalt lifts an active halt before its cooldown and audits the
// transition. It reports whether a halt was active.
func (e *Executor) ClearHalt(ctx context.Context, reason string) bool {
	if !e.halt.Clear() {
		return false
	}
	e.log.Warn("execution halt cleared manually", logger.String("reason", reason))
	e.record(ctx, models.TradeEvent{Action: "halt", Status: models.StatusHaltCleared, Reason: reason})
	return true
}

// ExecuteAll runs intents in order and returns one result per intent.
func (e *Executor) ExecuteAll(ctx context.Context, intents []models.TradeIntent, crashMode bool) []models.ExecutionResult {
	out := make([]models.ExecutionResult, 0, len(intents))
	for _, in := range intents {
		out = append(out, e.Execute(ctx, in, crashMode))
	}
	return out
}

// Execute handles one intent. BUY walks the entry checks and submits a
// bracket order; SELL and CLOSE route to Close.
func (e *Executor) Execute(ctx context.Context, in models.TradeIntent, crashMode bool) models.ExecutionResult {
	in.Symbol = models.NormalizeSymbol(in.Symbol)
	if in.Symbol == "" {
		return e.skip(ctx, in.Symbol, in.Action, models.SkipMissingSymbol, "")
	}

	switch in.Action {
	case models.ActionSell, models.ActionClose:
		reason := in.Reason
		if reason == "" && in.Action == models.ActionSell {
			reason = sellCloseReason
		}
		return e.Close(ctx, in.Symbol, reason)
	case models.ActionBuy:
	default:
		return e.skip(ctx, in.Symbol, in.Action, models.SkipUnsupportedAction, string(in.Action))
	}

	if e.broker == nil {
		return e.skip(ctx, in.Symbol, in.Action, models.SkipTradingClientUnavailable, "")
	}

	snap, cleared := e.halt.Check()
	if cleared {
		e.record(ctx, models.TradeEvent{Action: "halt", Status: models.StatusHaltCleared})
		e.log.Info("halt cleared")
	}
	if snap.Halted {
		return e.skip(ctx, in.Symbol, in.Action, snap.Code, snap.Reason)
	}

	positions, err := e.broker.GetAllPositions(ctx)
	if err != nil {
		return e.trip(ctx, in.Symbol, in.Action, models.HaltListPositionsFailed, err)
	}
	if n := occupiedSlots(positions, e.pending); n >= e.gate.MaxPositions(crashMode) {
		return e.skip(ctx, in.Symbol, in.Action, models.SkipMaxPositionsReached,
			fmt.Sprintf("%d open, %d pending", len(positions), n-len(positions)))
	}
	for _, p := range positions {
		if models.NormalizeSymbol(p.Symbol) == in.Symbol {
			return e.skip(ctx, in.Symbol, in.Action, models.SkipPositionExists, "")
		}
	}
	if e.pending != nil && e.pending.HasSymbol(in.Symbol) {
		return e.skip(ctx, in.Symbol, in.Action, models.SkipPositionExists, "entry pending")
	}

	entry := in.EntryPrice
	if entry <= 0 {
		price, err := e.md.GetPrice(ctx, in.Symbol)
		if err != nil {
			return e.skip(ctx, in.Symbol, in.Action, models.SkipPriceUnavailable,
				fmt.Sprintf("%s: %v", models.SkipPriceUnavailable, err))
		}
		entry = price
	}
	if !(entry > 0) || math.IsInf(entry, 0) {
		return e.skip(ctx, in.Symbol, in.Action, models.SkipInvalidEntryPrice, fmt.Sprintf("entry=%v", entry))
	}

	stop, take := e.bracketPrices(in, entry, crashMode)
	if !(stop < entry && entry < take) {
		return e.skip(ctx, in.Symbol, in.Action, models.SkipInvalidBracket,
			fmt.Sprintf("stop=%.2f entry=%.2f take=%.2f", stop, entry, take))
	}

	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return e.trip(ctx, in.Symbol, in.Action, models.HaltGetAccountFailed, err)
	}

	cfg := e.gate.Config()
	riskPct := cfg.MaxRiskPct
	if v, ok := risk.CoercePct(in.MaxRiskPct); ok {
		riskPct = v
	}
	if crashMode && cfg.CrashRiskScale > 0 {
		riskPct *= cfg.CrashRiskScale
	}
	maxNotional := e.gate.MaxPositionNotional(acct.Equity, crashMode)
	qty := risk.SizePosition(entry, stop, acct.Equity, riskPct, maxNotional, 1)
	if in.RequestedQty > 0 && in.RequestedQty < qty {
		qty = in.RequestedQty
	}
	if qty <= 0 {
		return e.skip(ctx, in.Symbol, in.Action, models.SkipRiskSizingBlocked,
			fmt.Sprintf("equity=%.2f max_notional=%.2f", acct.Equity, maxNotional))
	}

	notional := float64(qty) * entry
	if acct.BuyingPower <= 0 {
		return e.skip(ctx, in.Symbol, in.Action, models.SkipBuyingPowerUnavailable, "")
	}
	if notional > acct.BuyingPower {
		return e.skip(ctx, in.Symbol, in.Action, models.SkipBuyingPowerInsufficient,
			fmt.Sprintf("notional=%.2f buying_power=%.2f", notional, acct.BuyingPower))
	}

	order := models.BracketOrder{
		ClientOrderID:   e.newID(),
		Symbol:          in.Symbol,
		Qty:             qty,
		Side:            models.SideBuy,
		TimeInForce:     e.cfg.TimeInForce,
		TakeProfitPrice: take,
		StopLossPrice:   stop,
	}
	ev := models.TradeEvent{
		Symbol:     in.Symbol,
		Action:     string(in.Action),
		Reason:     in.Reason,
		Qty:        float64(qty),
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: take,
		Extra:      map[string]any{"signal_type": string(in.SignalType), "score": in.Score},
	}

	if e.cfg.DryRun {
		ev.Status = models.StatusDryRun
		e.record(ctx, ev)
		e.log.Info("dry run order",
			logger.String("symbol", in.Symbol),
			logger.Int("qty", qty),
			logger.Float("entry", entry),
			logger.Float("stop", stop),
			logger.Float("take", take))
		e.count(func(m repository.Metrics) { m.RecordSkip(string(in.Action), string(models.SkipDryRun)) })
		return models.ExecutionResult{Symbol: in.Symbol, Action: in.Action, Skipped: true, Qty: qty, Code: models.SkipDryRun}
	}

	placed, err := e.broker.SubmitOrder(ctx, order)
	if err != nil {
		return e.trip(ctx, in.Symbol, in.Action, models.HaltSubmitFailed, err)
	}

	ev.OrderID = placed.ID
	ev.Status = models.StatusSubmitted
	e.record(ctx, ev)
	e.count(func(m repository.Metrics) { m.RecordOrder(string(in.Action), models.StatusSubmitted) })
	e.log.Info("order submitted",
		logger.String("symbol", in.Symbol),
		logger.String("order_id", placed.ID),
		logger.Int("qty", qty))

	meta := e.entryMetadata(in, entry, placed.ID)
	if placed.Status.IsFilled() {
		filledAt := e.now()
		if placed.FilledAt != nil {
			filledAt = *placed.FilledAt
		}
		e.recordEntry(ctx, in.Symbol, filledAt, meta)
		fill := ev
		fill.Status = models.StatusFilled
		fill.Price = placed.FilledAvgPrice
		e.record(ctx, fill)
	} else if e.pending != nil {
		p := models.PendingEntry{
			OrderID:       placed.ID,
			Symbol:        in.Symbol,
			SubmittedAt:   e.now(),
			ExpectedPrice: entry,
			Metadata:      meta,
		}
		if err := e.pending.Add(ctx, p); err != nil {
			e.log.Warn("pending entry not persisted", logger.String("symbol", in.Symbol), logger.Error(err))
		}
		pend := ev
		pend.Status = models.StatusPending
		e.record(ctx, pend)
	}

	return models.ExecutionResult{
		Symbol:    in.Symbol,
		Action:    in.Action,
		Submitted: true,
		OrderID:   placed.ID,
		Qty:       qty,
	}
}

// bracketPrices resolves stop and take-profit: explicit price, else an
// explicit percent, else the default table. All are rounded to cents.
func (e *Executor) bracketPrices(in models.TradeIntent, entry float64, crashMode bool) (float64, float64) {
	var stop, take float64
	switch {
	case in.StopLossPrice > 0:
		stop = risk.RoundPrice(in.StopLossPrice)
	default:
		if v, ok := risk.CoercePct(in.StopLossPct); ok {
			stop = risk.PriceFromPct(entry, -v)
		} else {
			stop = e.gate.StopLossPrice(entry, crashMode)
		}
	}
	switch {
	case in.TakeProfitPrice > 0:
		take = risk.RoundPrice(in.TakeProfitPrice)
	default:
		if v, ok := risk.CoercePct(in.TakeProfitPct); ok {
			take = risk.PriceFromPct(entry, v)
		} else {
			take = e.gate.TakeProfitPrice(entry, crashMode)
		}
	}
	return stop, take
}

func (e *Executor) entryMetadata(in models.TradeIntent, entry float64, orderID string) models.EntryMetadata {
	meta := models.EntryMetadata{
		SignalType:    in.SignalType,
		DataSource:    in.DataSource,
		ExpectedPrice: entry,
		OrderID:       orderID,
	}
	if v, ok := risk.CoercePct(in.StopLossPct); ok {
		meta.StopLossPct = models.FloatPtr(v)
	}
	if v, ok := risk.CoercePct(in.TakeProfitPct); ok {
		meta.TakeProfitPct = models.FloatPtr(v)
	}
	if v, ok := risk.CoerceMinutes(in.MaxHoldMinutes); ok {
		meta.MaxHoldMinutes = models.IntPtr(v)
	}
	return meta
}

func (e *Executor) recordEntry(ctx context.Context, symbol string, ts time.Time, meta models.EntryMetadata) {
	if e.store == nil {
		return
	}
	if err := e.store.SetEntryTimestamp(ctx, symbol, ts); err != nil {
		e.log.Warn("entry timestamp not stored", logger.String("symbol", symbol), logger.Error(err))
	}
	if err := e.store.SetEntryMetadata(ctx, symbol, meta); err != nil {
		e.log.Warn("entry metadata not stored", logger.String("symbol", symbol), logger.Error(err))
	}
}

func (e *Executor) skip(ctx context.Context, symbol string, action models.Action, code models.SkipReason, detail string) models.ExecutionResult {
	reason := detail
	if reason == "" {
		reason = string(code)
	}
	e.record(ctx, models.TradeEvent{
		Symbol: symbol,
		Action: string(action),
		Status: models.StatusSkipped,
		Reason: reason,
		Extra:  map[string]any{"code": string(code)},
	})
	e.count(func(m repository.Metrics) { m.RecordSkip(string(action), string(code)) })
	e.log.Info("execution skipped",
		logger.String("symbol", symbol),
		logger.String("action", string(action)),
		logger.String("code", string(code)),
		logger.String("reason", reason))
	return models.ExecutionResult{Symbol: symbol, Action: action, Skipped: true, Code: code, Reason: reason}
}

// trip halts entries after a broker failure. A call the client refused
// locally for lack of request budget never reached the broker, so it only
// skips this attempt.
func (e *Executor) trip(ctx context.Context, symbol string, action models.Action, code models.SkipReason, err error) models.ExecutionResult {
	if errors.Is(err, repository.ErrRateLimited) {
		e.log.Warn("broker call rate limited, skipped",
			logger.String("symbol", symbol),
			logger.String("code", string(code)),
			logger.Error(err))
		return e.skip(ctx, symbol, action, models.SkipRateLimited, fmt.Sprintf("%s: %v", code, err))
	}
	reason := e.halt.Trip(code, err)
	e.record(ctx, models.TradeEvent{
		Symbol: symbol,
		Action: string(action),
		Status: models.StatusHalted,
		Reason: reason,
		Extra:  map[string]any{"code": string(code)},
	})
	e.count(func(m repository.Metrics) { m.RecordHalt(string(code)) })
	e.log.Error("broker failure, entries halted",
		logger.String("symbol", symbol),
		logger.String("code", string(code)),
		logger.Error(err))
	return models.ExecutionResult{Symbol: symbol, Action: action, Skipped: true, Code: code, Reason: reason}
}

func (e *Executor) record(ctx context.Context, ev models.TradeEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	if e.trades == nil {
		return
	}
	if err := e.trades.LogTrade(ctx, ev); err != nil {
		e.log.Warn("trade log write failed", logger.String("symbol", ev.Symbol), logger.Error(err))
	}
}

func (e *Executor) count(f func(repository.Metrics)) {
	if e.metrics != nil {
		f(e.metrics)
	}
}
