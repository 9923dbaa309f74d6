package models

// Action is the requested trade direction for an intent.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionClose Action = "CLOSE"
)

// SkipReason is the machine-readable code attached to every skipped or
// halted execution attempt.
type SkipReason string

const (
	SkipNone                     SkipReason = ""
	SkipMissingSymbol            SkipReason = "missing_symbol"
	SkipUnsupportedAction        SkipReason = "unsupported_action"
	SkipTradingClientUnavailable SkipReason = "trading_client_unavailable"
	SkipMaxPositionsReached      SkipReason = "max_positions_reached"
	SkipPositionExists           SkipReason = "position_exists"
	SkipPriceUnavailable         SkipReason = "price_unavailable"
	SkipInvalidEntryPrice        SkipReason = "invalid_entry_price"
	SkipInvalidBracket           SkipReason = "invalid_bracket"
	SkipRiskSizingBlocked        SkipReason = "risk_sizing_blocked"
	SkipBuyingPowerUnavailable   SkipReason = "buying_power_unavailable"
	SkipBuyingPowerInsufficient  SkipReason = "buying_power_insufficient"
	SkipDryRun                   SkipReason = "dry_run"
	SkipNoPosition               SkipReason = "no_position"
	SkipPositionHeld             SkipReason = "position_held"
	SkipPositionUnavailable      SkipReason = "position_unavailable"
	SkipDailyLossLimit           SkipReason = "daily_loss_limit"
	SkipNotionalCap              SkipReason = "notional_cap"
	SkipRateLimited              SkipReason = "rate_limited"

	// Halting broker failures. The halt reason string is prefixed by these.
	HaltListPositionsFailed SkipReason = "alpaca_list_positions_failed"
	HaltGetAccountFailed    SkipReason = "alpaca_get_account_failed"
	HaltSubmitFailed        SkipReason = "alpaca_submit_failed"
	HaltCloseFailed         SkipReason = "alpaca_close_failed"
)

// IsHalt reports whether the code belongs to a broker failure that halts entries.
func (r SkipReason) IsHalt() bool {
	switch r {
	case HaltListPositionsFailed, HaltGetAccountFailed, HaltSubmitFailed, HaltCloseFailed:
		return true
	default:
		return false
	}
}

// TradeIntent is what the execution adapter consumes. Zero numeric fields
// mean "not provided"; the adapter falls back to fetched prices and the
// default bracket table.
type TradeIntent struct {
	Symbol          string
	Action          Action
	Reason          string
	Score           float64
	SignalType      SignalType
	DataSource      DataSource
	RequestedQty    int
	EntryPrice      float64
	StopLossPrice   float64
	TakeProfitPrice float64
	StopLossPct     float64
	TakeProfitPct   float64
	MaxRiskPct      float64
	MaxHoldMinutes  *int
}

// IntentFromSignal converts an admitted signal into a BUY intent.
func IntentFromSignal(s Signal) TradeIntent {
	return TradeIntent{
		Symbol:         s.Symbol,
		Action:         ActionBuy,
		Reason:         s.Reason,
		Score:          s.Score,
		SignalType:     s.Type,
		DataSource:     s.DataSource,
		StopLossPct:    s.StopLossPct,
		TakeProfitPct:  s.TakeProfitPct,
		MaxHoldMinutes: s.MaxHoldMinutes,
	}
}

// ExecutionResult is the explicit outcome of one execution attempt.
// Code is the machine-readable reason; Reason may carry extra detail
// such as the broker error behind a halt.
type ExecutionResult struct {
	Symbol    string     `json:"symbol"`
	Action    Action     `json:"action"`
	Submitted bool       `json:"submitted"`
	Skipped   bool       `json:"skipped"`
	OrderID   string     `json:"order_id,omitempty"`
	Qty       int        `json:"qty,omitempty"`
	Code      SkipReason `json:"code,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
