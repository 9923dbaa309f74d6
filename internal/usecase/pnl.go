package usecase

import (
	"context"
	"fmt"
	"time"

	"MicroTrader/internal/domain/repository"
	"MicroTrader/pkg/logger"
	"MicroTrader/pkg/util"
)

// PnLSnapshot is the day's equity return as of one update.
type PnLSnapshot struct {
	Day       string   `json:"day"`
	Equity    float64  `json:"equity"`
	DayStart  float64  `json:"day_start"`
	ReturnPct *float64 `json:"equity_return_pct,omitempty"`
}

// PnLTracker keeps the exchange-day starting equity and reports the return
// the daily-loss breaker consumes.
type PnLTracker struct {
	broker repository.Broker
	store  repository.EquityStore
	now    func() time.Time
	log    *logger.Logger
}

// NewPnLTracker creates a tracker. now may be nil.
func NewPnLTracker(broker repository.Broker, store repository.EquityStore, now func() time.Time, log *logger.Logger) *PnLTracker {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PnLTracker{broker: broker, store: store, now: now, log: log}
}

// Update reads account equity and returns (equity - day_start) / day_start.
// The day start is seeded once per New York date from the broker's prior
// close equity, or from current equity when the broker omits it.
func (t *PnLTracker) Update(ctx context.Context) (PnLSnapshot, error) {
	snap := PnLSnapshot{Day: util.SessionDay(t.now())}
	if t.broker == nil {
		return snap, fmt.Errorf("pnl update: broker unavailable")
	}
	acct, err := t.broker.GetAccount(ctx)
	if err != nil {
		return snap, fmt.Errorf("pnl update: %w", err)
	}
	snap.Equity = acct.Equity
	if acct.Equity <= 0 {
		return snap, nil
	}

	start, ok, err := t.store.GetDayStartEquity(ctx, snap.Day)
	if err != nil {
		return snap, fmt.Errorf("pnl day start: %w", err)
	}
	if !ok || start <= 0 {
		start = acct.LastEquity
		if start <= 0 {
			start = acct.Equity
		}
		if err := t.store.SetDayStartEquity(ctx, snap.Day, start); err != nil {
			t.log.Warn("day start equity not stored", logger.String("day", snap.Day), logger.Error(err))
		}
	}
	snap.DayStart = start
	ret := (acct.Equity - start) / start
	snap.ReturnPct = &ret
	return snap, nil
}
