package strategy

import (
	"sort"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/services/technicals"
)

const momentumMinBars = 20

// RankedSymbol is one row of the daily momentum ranking.
type RankedSymbol struct {
	Symbol string
	Score  float64
}

// MomentumScore blends 5- and 20-day returns with the distance from the
// 50-day average: 0.4*ret5 + 0.4*ret20 + 0.2*trend.
func MomentumScore(bars []models.Bar) (float64, bool) {
	if len(bars) < momentumMinBars {
		return 0, false
	}
	closes := models.Closes(bars)
	last := closes[len(closes)-1]
	ret5 := technicals.Return(closes, 5)
	ret20 := technicals.Return(closes, 20)

	// SMA with min_periods=1 semantics: average what exists up to 50 bars.
	sma50 := technicals.Mean(tail(closes, 50))
	trend := 0.0
	if sma50 != 0 {
		trend = (last - sma50) / sma50
	}
	return ret5*0.4 + ret20*0.4 + trend*0.2, true
}

// RankMomentum sorts scores descending, keeps topK and returns each kept
// symbol's rank percentile (1 for the leader, falling by 1/len per place).
func RankMomentum(scores []RankedSymbol, topK int) map[string]float64 {
	sorted := append([]RankedSymbol(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if topK > 0 && len(sorted) > topK {
		sorted = sorted[:topK]
	}
	out := make(map[string]float64, len(sorted))
	n := float64(max(len(sorted), 1))
	for i, r := range sorted {
		out[r.Symbol] = 1 - float64(i)/n
	}
	return out
}
