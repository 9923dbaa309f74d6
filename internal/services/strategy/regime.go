package strategy

import (
	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/services/technicals"
)

const (
	regimeFastWindow = 10
	regimeSlowWindow = 30
	regimeBandScore  = 0.2
)

// ComputeRegime classifies daily bars. The score blends a fast/slow average
// trend (weight 0.6) with a 10-bar return scaled by 10% (weight 0.4).
func ComputeRegime(symbol string, bars []models.Bar) models.Regime {
	r := models.Regime{Symbol: symbol, Label: models.RegimeNeutral}
	if len(bars) == 0 {
		return r
	}
	closes := models.Closes(bars)
	lastClose := closes[len(closes)-1]

	slow := regimeSlowWindow
	if len(closes) < regimeSlowWindow {
		slow = 20
	}
	fastAvg := technicals.Mean(tail(closes, regimeFastWindow))
	slowAvg := technicals.Mean(tail(closes, slow))
	switch {
	case fastAvg > slowAvg:
		r.Trend = 1
	case fastAvg < slowAvg:
		r.Trend = -1
	}

	if len(closes) >= regimeFastWindow && lastClose > 0 {
		if base := closes[len(closes)-regimeFastWindow]; base > 0 {
			r.Momentum = technicals.Clamp((lastClose/base-1)/0.10, -1, 1)
		}
	}

	if len(bars) >= 15 && lastClose > 0 {
		if atr := technicals.ATR(bars, 14); atr > 0 {
			r.ATRPct = atr / lastClose
		}
	}

	r.Score = 0.6*r.Trend + 0.4*r.Momentum
	switch {
	case r.Score >= regimeBandScore:
		r.Label = models.RegimeBull
	case r.Score <= -regimeBandScore:
		r.Label = models.RegimeBear
	}
	return r
}

func tail(v []float64, n int) []float64 {
	if len(v) <= n {
		return v
	}
	return v[len(v)-n:]
}
