package models

import "time"

// TradeEvent is one append-only audit record. Every admitted signal, skip,
// fill and halt transition produces one.
type TradeEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	Symbol     string         `json:"symbol"`
	Action     string         `json:"action"`
	Status     string         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Qty        float64        `json:"qty,omitempty"`
	Price      float64        `json:"price,omitempty"`
	EntryPrice float64        `json:"entry_price,omitempty"`
	StopLoss   float64        `json:"stop_loss,omitempty"`
	TakeProfit float64        `json:"take_profit,omitempty"`
	OrderID    string         `json:"order_id,omitempty"`
	PnL        *float64       `json:"pnl,omitempty"`
	PnLPct     *float64       `json:"pnl_pct,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Trade event statuses.
const (
	StatusSkipped     = "skipped"
	StatusSubmitted   = "submitted"
	StatusFilled      = "filled"
	StatusPending     = "pending"
	StatusClosed      = "closed"
	StatusDryRun      = "dry_run"
	StatusHalted      = "halted"
	StatusHaltCleared = "halt_cleared"
	StatusExpired     = "pending_expired"
	StatusDropped     = "pending_dropped"
	StatusSignal      = "signal"
)
