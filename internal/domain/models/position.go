package models

import (
	"strings"
	"time"
)

// Position is the canonical open-position record. Broker adapters normalise
// their wire payloads into it; nothing downstream sees a broker type.
type Position struct {
	Symbol         string     `json:"symbol"`
	Qty            float64    `json:"qty"`
	HeldForOrders  float64    `json:"held_for_orders"`
	EntryPrice     float64    `json:"entry_price"`
	CurrentPrice   float64    `json:"current_price"`
	UnrealizedPL   float64    `json:"unrealized_pl"`
	EntryTimestamp *time.Time `json:"entry_timestamp,omitempty"`
	StopLossPct    *float64   `json:"stop_loss_pct,omitempty"`
	TakeProfitPct  *float64   `json:"take_profit_pct,omitempty"`
	MaxHoldMinutes *int       `json:"max_hold_minutes,omitempty"`
	DataSource     DataSource `json:"data_source,omitempty"`
}

// Available returns the quantity not reserved by working orders.
func (p Position) Available() float64 { return p.Qty - p.HeldForOrders }

// WithState overlays persisted entry state onto a broker position.
func (p Position) WithState(ts *time.Time, meta *EntryMetadata) Position {
	if ts != nil {
		t := *ts
		p.EntryTimestamp = &t
	}
	if meta == nil {
		return p
	}
	if meta.StopLossPct != nil {
		p.StopLossPct = meta.StopLossPct
	}
	if meta.TakeProfitPct != nil {
		p.TakeProfitPct = meta.TakeProfitPct
	}
	if meta.MaxHoldMinutes != nil {
		p.MaxHoldMinutes = meta.MaxHoldMinutes
	}
	if meta.DataSource != "" {
		p.DataSource = meta.DataSource
	}
	return p
}

// EntryMetadata is the per-symbol exit profile persisted when an entry fills.
type EntryMetadata struct {
	SignalType     SignalType `json:"signal_type,omitempty"`
	StopLossPct    *float64   `json:"stop_loss_pct,omitempty"`
	TakeProfitPct  *float64   `json:"take_profit_pct,omitempty"`
	MaxHoldMinutes *int       `json:"max_hold_minutes,omitempty"`
	DataSource     DataSource `json:"data_source,omitempty"`
	ExpectedPrice  float64    `json:"expected_price,omitempty"`
	OrderID        string     `json:"order_id,omitempty"`
}

// PendingEntry tracks a submitted entry order the broker has not filled yet.
type PendingEntry struct {
	OrderID       string        `json:"order_id"`
	Symbol        string        `json:"symbol"`
	SubmittedAt   time.Time     `json:"submitted_at"`
	ExpectedPrice float64       `json:"expected_price"`
	Metadata      EntryMetadata `json:"entry_metadata"`
}

// Expired reports whether the entry outlived ttl at now.
func (p PendingEntry) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(p.SubmittedAt) > ttl
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
