package risk

import "math"

// floorEps absorbs float noise such as 1000/0.1 landing just under an integer.
const floorEps = 1e-9

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// RiskPerShare returns |entry - stop|, or 0 when either input is not a finite number.
func RiskPerShare(entry, stop float64) float64 {
	if !finite(entry) || !finite(stop) {
		return 0
	}
	return math.Abs(entry - stop)
}

// SizePosition returns the share quantity bounded by both the risk budget
// (equity * maxRiskPct / risk-per-share) and the notional cap. It returns 0
// whenever an input is invalid or the result falls below minQty.
func SizePosition(entry, stop, equity, maxRiskPct, maxNotional float64, minQty int) int {
	if !finite(entry) || !finite(stop) || !finite(equity) || !finite(maxRiskPct) || !finite(maxNotional) {
		return 0
	}
	rps := RiskPerShare(entry, stop)
	if rps <= 0 || equity <= 0 || maxRiskPct <= 0 {
		return 0
	}

	riskCap := equity * maxRiskPct
	byRisk := math.Floor(riskCap/rps + floorEps)

	byNotional := byRisk
	if entry > 0 && maxNotional > 0 {
		byNotional = math.Floor(maxNotional/entry + floorEps)
	}

	qty := math.Min(byRisk, byNotional)
	if qty < float64(minQty) || qty <= 0 {
		return 0
	}
	return int(qty)
}
