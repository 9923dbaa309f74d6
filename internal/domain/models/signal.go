package models

import "time"

// SignalType tags the hypothesis that produced a signal.
type SignalType string

const (
	SignalBreakout SignalType = "breakout"
	SignalMomentum SignalType = "momentum"
	SignalReversal SignalType = "reversal"
	SignalDipBuy   SignalType = "dip_buy"
	SignalSwing    SignalType = "swing"
)

// DataSource identifies which bar resolution backs a signal or position.
type DataSource string

const (
	DataSourceIntraday DataSource = "intraday"
	DataSourceDaily    DataSource = "daily"
)

// Detail is the type-specific payload of a Signal. The set of implementations
// is closed: only types in this package satisfy it.
type Detail interface {
	Type() SignalType
	isDetail()
}

// Signal is the common envelope emitted by the generator. Signals are values
// and are never mutated once emitted.
type Signal struct {
	Symbol           string     `json:"symbol"`
	Type             SignalType `json:"type"`
	Score            float64    `json:"score"`
	Probability      float64    `json:"probability"`
	Sentiment        float64    `json:"sentiment"`
	MomentumScore    float64    `json:"momentum_score"`
	RegimeScore      float64    `json:"regime_score"`
	StopLossPct      float64    `json:"stop_loss_pct"`
	TakeProfitPct    float64    `json:"take_profit_pct"`
	MaxHoldMinutes   *int       `json:"max_hold_minutes,omitempty"`
	DataSource       DataSource `json:"data_source"`
	Reason           string     `json:"reason"`
	ProviderIntraday string     `json:"provider_intraday,omitempty"`
	ProviderDaily    string     `json:"provider_daily,omitempty"`
	Detail           Detail     `json:"detail,omitempty"`
}

// BreakoutDetail carries the opening-range measurements behind a breakout.
type BreakoutDetail struct {
	ORHigh      float64   `json:"or_high"`
	ORLow       float64   `json:"or_low"`
	RangePct    float64   `json:"range_pct"`
	Extension   float64   `json:"extension"`
	VolumeRatio float64   `json:"volume_ratio"`
	VWAP        float64   `json:"vwap"`
	BarTime     time.Time `json:"bar_time"`
}

// MomentumDetail carries the composite score inputs of a momentum entry.
type MomentumDetail struct {
	RankPct       float64 `json:"rank_pct"`
	Composite     float64 `json:"composite"`
	Threshold     float64 `json:"threshold"`
	PriceMomentum float64 `json:"price_momentum"`
	VolumeRatio   float64 `json:"volume_ratio"`
	Override      bool    `json:"override"`
}

// DipBuyDetail carries the short-term slope and volume behind a dip entry.
type DipBuyDetail struct {
	Slope       float64 `json:"slope"`
	VolumeRatio float64 `json:"volume_ratio"`
}

// ReversalDetail carries the detector output behind a reversal entry.
type ReversalDetail struct {
	DetectorScore float64 `json:"detector_score"`
	ATRRatio      float64 `json:"atr_ratio"`
	PriceMomentum float64 `json:"price_momentum"`
}

// SwingSetup names the daily-bar setup that produced a swing signal.
type SwingSetup string

const (
	SwingTrend SwingSetup = "trend"
	SwingDip   SwingSetup = "dip"
)

// SwingDetail carries the daily indicators behind a swing entry.
type SwingDetail struct {
	Setup      SwingSetup `json:"setup"`
	TrendScore float64    `json:"trend_score"`
	RSI        float64    `json:"rsi"`
	SMA20      float64    `json:"sma20"`
	SMA50      float64    `json:"sma50"`
}

func (BreakoutDetail) Type() SignalType { return SignalBreakout }
func (MomentumDetail) Type() SignalType { return SignalMomentum }
func (DipBuyDetail) Type() SignalType   { return SignalDipBuy }
func (ReversalDetail) Type() SignalType { return SignalReversal }
func (SwingDetail) Type() SignalType    { return SignalSwing }

func (BreakoutDetail) isDetail() {}
func (MomentumDetail) isDetail() {}
func (DipBuyDetail) isDetail()   {}
func (ReversalDetail) isDetail() {}
func (SwingDetail) isDetail()    {}

// NewSignal builds an envelope whose Type always matches the payload tag.
func NewSignal(symbol string, d Detail) Signal {
	return Signal{Symbol: symbol, Type: d.Type(), Detail: d}
}

// HoldMinutes returns the signal's max hold override, or def when unset.
func (s Signal) HoldMinutes(def int) int {
	if s.MaxHoldMinutes != nil && *s.MaxHoldMinutes > 0 {
		return *s.MaxHoldMinutes
	}
	return def
}

// IntPtr is a small helper for optional minute fields.
func IntPtr(v int) *int { return &v }

// FloatPtr is a small helper for optional percent fields.
func FloatPtr(v float64) *float64 { return &v }
