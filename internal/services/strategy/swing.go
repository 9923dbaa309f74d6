package strategy

import (
	"math"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/services/technicals"
)

const (
	swingMinBars        = 35
	swingMinTrendScore  = 0.35
	swingMinDipSentimnt = 0.6
	swingBaseStopLoss   = 0.02
	swingBaseTakeProfit = 0.05
	swingMaxHoldMinutes = 24 * 60
	swingMaxScore       = 0.95
)

// dailyTrendScore rewards persistent positive daily returns, clamped to [0, 1].
func dailyTrendScore(closes []float64) float64 {
	rets := technicals.PctChanges(closes)
	s5 := technicals.Mean(tailOrEmpty(rets, 5))
	s10 := technicals.Mean(tailOrEmpty(rets, 10))
	if math.IsNaN(s5) {
		s5 = 0
	}
	if math.IsNaN(s10) {
		s10 = 0
	}
	return technicals.Clamp(s5*8+s10*4, 0, 1)
}

func tailOrEmpty(v []float64, n int) []float64 {
	if len(v) == 0 {
		return nil
	}
	return tail(v, n)
}

// EvaluateSwing checks daily bars for a trend-following or sentiment-gated
// dip setup. sentiment is the raw [-1, 1] reading.
func EvaluateSwing(symbol string, bars []models.Bar, sentiment float64) (models.Signal, bool) {
	if len(bars) < swingMinBars {
		return models.Signal{}, false
	}
	closes := models.Closes(bars)
	last := closes[len(closes)-1]
	if last <= 0 {
		return models.Signal{}, false
	}
	sma20 := technicals.SMA(closes, 20)
	sma50 := technicals.SMA(closes, 50)
	if !(sma20 > 0) || !(sma50 > 0) {
		return models.Signal{}, false
	}
	rsi := technicals.RSI(closes, 14)
	trend := dailyTrendScore(closes)
	sent01 := (technicals.Clamp(sentiment, -1, 1) + 1) / 2

	trendOK := last > sma20 && sma20 >= sma50 && trend >= swingMinTrendScore
	dipOK := last < sma20*0.99 && rsi < 40 && sent01 >= swingMinDipSentimnt
	if !trendOK && !dipOK {
		return models.Signal{}, false
	}

	atrPct := 0.0
	if atr := technicals.ATR(bars, 14); atr > 0 {
		atrPct = atr / last
	}
	sl := swingBaseStopLoss
	if atrPct > 0 {
		sl = math.Max(swingBaseStopLoss, math.Min(atrPct*2, 0.08))
	}
	tp := math.Max(swingBaseTakeProfit, math.Min(sl*2.5, 0.2))

	detail := models.SwingDetail{TrendScore: trend, RSI: rsi, SMA20: sma20, SMA50: sma50}
	var score float64
	var reason string
	if trendOK {
		detail.Setup = models.SwingTrend
		score = 0.45 + 0.35*trend + 0.15*sent01
		reason = "swing_trend"
	} else {
		detail.Setup = models.SwingDip
		score = 0.4 + 0.35*sent01 + math.Min(trend*0.2, 0.15)
		reason = "swing_dip"
	}

	sig := models.NewSignal(symbol, detail)
	sig.Score = math.Min(score, swingMaxScore)
	sig.Sentiment = sentiment
	sig.StopLossPct = sl
	sig.TakeProfitPct = tp
	sig.MaxHoldMinutes = models.IntPtr(swingMaxHoldMinutes)
	sig.DataSource = models.DataSourceDaily
	sig.Reason = reason
	return sig, true
}
