package technicals

import "MicroTrader/internal/domain/models"

const (
	filterMinBars = 30
	entryRSIMax   = 60
	exitRSIMin    = 75
)

// PassesEntryFilter requires RSI(14) < 60, price above SMA50, a positive MACD
// histogram and price above VWAP. Fewer than 30 bars never pass.
func PassesEntryFilter(bars []models.Bar) bool {
	if len(bars) < filterMinBars {
		return false
	}
	closes := models.Closes(bars)
	price := closes[len(closes)-1]
	rsi := RSI(closes, 14)
	hist := last(MACDHistogram(closes, 12, 26, 9))
	vwap := VWAP(bars)

	// With under 50 bars the SMA50 is undefined and the check fails.
	sma50 := SMA(closes, 50)
	return rsi < entryRSIMax && price > sma50 && hist > 0 && price > vwap
}

// PassesExitFilter fires on RSI(14) > 75, a negative MACD histogram, price
// below SMA20, or price below VWAP. Missing data exits.
func PassesExitFilter(bars []models.Bar) bool {
	if len(bars) < filterMinBars {
		return true
	}
	closes := models.Closes(bars)
	price := closes[len(closes)-1]
	rsi := RSI(closes, 14)
	hist := last(MACDHistogram(closes, 12, 26, 9))
	sma20 := SMA(closes, 20)
	vwap := VWAP(bars)
	return rsi > exitRSIMin || hist < 0 || price < sma20 || price < vwap
}
