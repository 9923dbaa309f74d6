package models

import "time"

// Bar is one OHLCV record. Time is the bar open time.
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// Closes extracts close prices in bar order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts volumes in bar order.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// Prediction is one classifier output row.
type Prediction struct {
	Symbol      string             `json:"symbol"`
	Probability float64            `json:"probability"`
	Features    map[string]float64 `json:"features,omitempty"`
}

// RegimeLabel classifies the daily market backdrop.
type RegimeLabel string

const (
	RegimeBull    RegimeLabel = "bull"
	RegimeNeutral RegimeLabel = "neutral"
	RegimeBear    RegimeLabel = "bear"
)

// Regime is the daily-bar trend/momentum classification.
type Regime struct {
	Symbol   string      `json:"symbol"`
	Label    RegimeLabel `json:"label"`
	Score    float64     `json:"score"`
	Trend    float64     `json:"trend"`
	Momentum float64     `json:"momentum"`
	ATRPct   float64     `json:"atr_pct"`
}
