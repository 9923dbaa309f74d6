package risk

import (
	"github.com/shopspring/decimal"

	"MicroTrader/internal/domain/models"
)

// crashBudgetShare is the fraction of the daily budget spread across crash-mode slots.
const crashBudgetShare = 0.80

// Gate is the admission controller for new positions.
type Gate struct {
	cfg Config
}

// NewGate creates a gate over cfg.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Config returns the gate's risk surface.
func (g *Gate) Config() Config { return g.cfg }

// DailyLossExceeded reports whether the day's equity return breached the loss
// limit. An absent return never trips it; a limit <= 0 disables the breaker.
func (g *Gate) DailyLossExceeded(equityReturnPct *float64) bool {
	if equityReturnPct == nil || g.cfg.MaxDailyLossPct <= 0 {
		return false
	}
	return *equityReturnPct <= -g.cfg.MaxDailyLossPct
}

// MaxPositions returns the crash-aware open position cap.
func (g *Gate) MaxPositions(crashMode bool) int {
	if crashMode {
		return g.cfg.CrashMaxPositions
	}
	return g.cfg.MaxPositions
}

// MaxPositionNotional returns the per-position notional cap. Equity <= 0 is
// treated as unknown, in which case the budget-derived cap applies alone.
func (g *Gate) MaxPositionNotional(equity float64, crashMode bool) float64 {
	var fixed float64
	if crashMode {
		slots := g.cfg.CrashMaxPositions
		if slots <= 0 {
			slots = 1
		}
		fixed = crashBudgetShare * g.cfg.DailyBudget / float64(slots)
	} else {
		fixed = g.cfg.DailyBudget / 3
	}
	if g.cfg.MaxPositionPct > 0 && equity > 0 && finite(equity) {
		if pct := equity * g.cfg.MaxPositionPct; pct < fixed {
			return pct
		}
	}
	return fixed
}

// Admit returns whether a new position may open and, when not, the reason code.
func (g *Gate) Admit(currentPositions int, allocation float64, crashMode bool, equity float64, equityReturnPct *float64) (bool, models.SkipReason) {
	if g.DailyLossExceeded(equityReturnPct) {
		return false, models.SkipDailyLossLimit
	}
	if currentPositions >= g.MaxPositions(crashMode) {
		return false, models.SkipMaxPositionsReached
	}
	if allocation > g.MaxPositionNotional(equity, crashMode) {
		return false, models.SkipNotionalCap
	}
	return true, models.SkipNone
}

// CanOpenPosition is Admit without the reason.
func (g *Gate) CanOpenPosition(currentPositions int, allocation float64, crashMode bool, equity float64, equityReturnPct *float64) bool {
	ok, _ := g.Admit(currentPositions, allocation, crashMode, equity, equityReturnPct)
	return ok
}

// Bracket returns the default exit table row.
func (g *Gate) Bracket(crashMode bool) Bracket {
	if crashMode {
		return Bracket{
			StopLossPct:    g.cfg.CrashStopLossPct,
			TakeProfitPct:  g.cfg.CrashTakeProfitPct,
			MaxHoldMinutes: g.cfg.CrashMaxHoldMinutes,
		}
	}
	return Bracket{
		StopLossPct:    g.cfg.StopLossPct,
		TakeProfitPct:  g.cfg.TakeProfitPct,
		MaxHoldMinutes: g.cfg.DefaultMaxHoldMinutes,
	}
}

// StopLossPrice is entry reduced by the default stop percent, in cents.
func (g *Gate) StopLossPrice(entry float64, crashMode bool) float64 {
	return PriceFromPct(entry, -g.Bracket(crashMode).StopLossPct)
}

// TakeProfitPrice is entry raised by the default take-profit percent, in cents.
func (g *Gate) TakeProfitPrice(entry float64, crashMode bool) float64 {
	return PriceFromPct(entry, g.Bracket(crashMode).TakeProfitPct)
}

// PriceFromPct returns entry*(1+pct) rounded half away from zero to cents.
func PriceFromPct(entry, pct float64) float64 {
	return RoundPrice(entry * (1 + pct))
}

// RoundPrice rounds to 2 decimals without binary float drift.
func RoundPrice(p float64) float64 {
	if !finite(p) {
		return p
	}
	v, _ := decimal.NewFromFloat(p).Round(2).Float64()
	return v
}

// CoercePct accepts a percent override only inside (0, 1).
func CoercePct(v float64) (float64, bool) {
	if !finite(v) || v <= 0 || v >= 1 {
		return 0, false
	}
	return v, true
}

// CoerceMinutes accepts a minute override only when positive.
func CoerceMinutes(v *int) (int, bool) {
	if v == nil || *v <= 0 {
		return 0, false
	}
	return *v, true
}
