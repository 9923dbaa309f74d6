package technicals

import (
	"math"

	"MicroTrader/internal/domain/models"
)

const (
	reversalMinBars  = 25
	reversalRSILow   = 38
	reversalRSIHigh  = 72
	reversalBandMult = 1.5
	reversalWindow   = 14
)

// ReversalScore returns a directional score in [-1, 1]: positive for a
// bullish reversal, negative for bearish, 0 when the setup is absent. It
// needs an RSI extreme, a MACD histogram zero-cross and price at or through
// the 1.5*ATR band around the 14-bar mean.
func ReversalScore(bars []models.Bar) float64 {
	if len(bars) < reversalMinBars {
		return 0
	}
	closes := models.Closes(bars)
	rsi := RSI(closes, reversalWindow)
	if !(rsi < reversalRSILow || rsi > reversalRSIHigh) {
		return 0
	}

	hist := MACDHistogram(closes, 12, 26, 9)
	if len(hist) < 2 {
		return 0
	}
	prev, curr := hist[len(hist)-2], hist[len(hist)-1]
	bull := prev < 0 && curr > 0
	bear := prev > 0 && curr < 0
	if !bull && !bear {
		return 0
	}

	atr := last(ATRSeries(bars, reversalWindow))
	mid := SMA(closes, reversalWindow)
	if !(atr > 0) || !Finite(mid) {
		return 0
	}
	price := closes[len(closes)-1]
	upper := mid + reversalBandMult*atr
	lower := mid - reversalBandMult*atr
	if price < upper && price > lower {
		return 0
	}

	dir := 1.0
	if bear {
		dir = -1.0
	}
	score := dir * math.Min(1, math.Abs((price-mid)/atr)/reversalBandMult)
	if !Finite(score) {
		return 0
	}
	return Clamp(score, -1, 1)
}

// ATRRatio compares the latest ATR(n) to the ATR(n) lag bars earlier.
func ATRRatio(bars []models.Bar, n, lag int) float64 {
	series := ATRSeries(bars, n)
	if len(series) <= lag {
		return 0
	}
	now := series[len(series)-1]
	then := series[len(series)-1-lag]
	if !(then > 0) || !Finite(now) {
		return 0
	}
	return now / then
}
