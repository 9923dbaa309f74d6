// Package exit decides, per open position, whether to close it now.
package exit

import (
	"context"
	"fmt"
	"math"
	"time"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	"MicroTrader/internal/services/risk"
	"MicroTrader/internal/services/technicals"
	"MicroTrader/pkg/logger"
)

// Exit reasons.
const (
	ReasonHold            = ""
	ReasonMissingPrice    = "missing_price"
	ReasonTakeProfit      = "take_profit"
	ReasonStopLoss        = "stop_loss"
	ReasonTimeStop        = "time_stop"
	ReasonTrailingStop    = "trailing_stop"
	ReasonTechnical       = "technical_exit"
	ReasonDataUnavailable = "data_unavailable"
)

// trailATRScale damps the ATR multiple for the trailing distance.
const trailATRScale = 0.6

// Config is the trailing-stop and failure-counter surface.
type Config struct {
	ATRMultiplier         float64
	TrailMinPct           float64
	TrailMaxPct           float64
	CrashTrailMinPct      float64
	CrashTrailMaxPct      float64
	FailureWindow         time.Duration
	FailureThreshold      int
	IntradayWindowMinutes int
}

// DefaultConfig returns the production exit parameters.
func DefaultConfig() Config {
	return Config{
		ATRMultiplier:         2.5,
		TrailMinPct:           0.004,
		TrailMaxPct:           0.025,
		CrashTrailMinPct:      0.003,
		CrashTrailMaxPct:      0.015,
		FailureWindow:         600 * time.Second,
		FailureThreshold:      2,
		IntradayWindowMinutes: 120,
	}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Exit   bool
	Reason string
}

// FilterFunc is a technical exit filter over intraday bars.
type FilterFunc func([]models.Bar) bool

// Engine evaluates open positions.
type Engine struct {
	cfg      Config
	gate     *risk.Gate
	md       repository.MarketData
	failures *FailureTracker
	filter   FilterFunc
	now      func() time.Time
	log      *logger.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithExitFilter replaces the technical exit filter.
func WithExitFilter(f FilterFunc) Option {
	return func(e *Engine) { e.filter = f }
}

// WithClock injects the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFailureTracker shares a failure tracker across engines.
func WithFailureTracker(t *FailureTracker) Option {
	return func(e *Engine) { e.failures = t }
}

// NewEngine creates an exit engine.
func NewEngine(cfg Config, gate *risk.Gate, md repository.MarketData, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		cfg:    cfg,
		gate:   gate,
		md:     md,
		filter: technicals.PassesExitFilter,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.failures == nil {
		e.failures = NewFailureTracker(cfg.FailureWindow)
	}
	return e
}

// Failures exposes the per-symbol failure counter.
func (e *Engine) Failures() *FailureTracker { return e.failures }

// ShouldExit reports whether pos should be closed now.
func (e *Engine) ShouldExit(ctx context.Context, pos models.Position, crashMode bool) bool {
	return e.Evaluate(ctx, pos, crashMode).Exit
}

// Evaluate runs the exit checks in order: missing price, take-profit,
// stop-loss, time-stop, then for intraday positions the trailing stop and
// the technical filter.
func (e *Engine) Evaluate(ctx context.Context, pos models.Position, crashMode bool) Decision {
	price, entry := pos.CurrentPrice, pos.EntryPrice
	if !(price > 0) || !(entry > 0) || !technicals.Finite(price) || !technicals.Finite(entry) {
		return Decision{Exit: true, Reason: ReasonMissingPrice}
	}

	table := e.gate.Bracket(crashMode)
	sl := table.StopLossPct
	if pos.StopLossPct != nil {
		if v, ok := risk.CoercePct(*pos.StopLossPct); ok {
			sl = v
		}
	}
	tp := table.TakeProfitPct
	if pos.TakeProfitPct != nil {
		if v, ok := risk.CoercePct(*pos.TakeProfitPct); ok {
			tp = v
		}
	}

	gain := price/entry - 1
	if gain >= tp {
		return Decision{Exit: true, Reason: ReasonTakeProfit}
	}
	if gain <= -sl {
		return Decision{Exit: true, Reason: ReasonStopLoss}
	}

	// Unknown age never forces a time exit.
	if pos.EntryTimestamp != nil {
		hold := table.MaxHoldMinutes
		if v, ok := risk.CoerceMinutes(pos.MaxHoldMinutes); ok {
			hold = v
		}
		elapsed := e.now().Sub(*pos.EntryTimestamp).Minutes()
		if hold > 0 && elapsed >= float64(hold) {
			return Decision{Exit: true, Reason: ReasonTimeStop}
		}
	}

	if pos.DataSource == models.DataSourceDaily {
		return Decision{}
	}

	bars, err := e.md.GetAggregates(ctx, pos.Symbol, e.cfg.IntradayWindowMinutes, true)
	if err == nil && len(bars) == 0 {
		err = repository.ErrNoData
	}
	if err != nil {
		n := e.failures.Record(pos.Symbol, e.now())
		e.log.Warn("exit data unavailable",
			logger.String("symbol", pos.Symbol),
			logger.Int("failures", n),
			logger.Error(err))
		if n >= e.cfg.FailureThreshold {
			e.failures.Reset(pos.Symbol)
			return Decision{Exit: true, Reason: ReasonDataUnavailable}
		}
		return Decision{}
	}
	e.failures.Reset(pos.Symbol)

	if stop, ok := e.trailingStop(bars, pos, crashMode); ok && price <= stop {
		e.log.Info("trailing stop hit",
			logger.String("symbol", pos.Symbol),
			logger.Float("price", price),
			logger.Float("stop", stop))
		return Decision{Exit: true, Reason: ReasonTrailingStop}
	}

	if e.filter != nil && e.filter(bars) {
		return Decision{Exit: true, Reason: ReasonTechnical}
	}
	return Decision{}
}

// trailingStop returns high_water - clamp(ATR*mult*0.6, entry*min, entry*max).
func (e *Engine) trailingStop(bars []models.Bar, pos models.Position, crashMode bool) (float64, bool) {
	atr := technicals.ATR(bars, 14)
	if !(atr > 0) {
		return 0, false
	}
	minPct, maxPct := e.cfg.TrailMinPct, e.cfg.TrailMaxPct
	if crashMode {
		minPct, maxPct = e.cfg.CrashTrailMinPct, e.cfg.CrashTrailMaxPct
	}

	high := math.Inf(-1)
	for _, b := range bars {
		if pos.EntryTimestamp != nil && b.Time.Before(*pos.EntryTimestamp) {
			continue
		}
		high = math.Max(high, b.Close)
	}
	if math.IsInf(high, -1) {
		high = pos.EntryPrice
	}

	distance := technicals.Clamp(atr*e.cfg.ATRMultiplier*trailATRScale, pos.EntryPrice*minPct, pos.EntryPrice*maxPct)
	return high - distance, true
}

// String renders a decision for logs.
func (d Decision) String() string {
	if !d.Exit {
		return "hold"
	}
	return fmt.Sprintf("exit:%s", d.Reason)
}
