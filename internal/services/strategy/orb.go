package strategy

import (
	"math"
	"time"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/services/risk"
	"MicroTrader/internal/services/technicals"
	"MicroTrader/pkg/util"
)

const (
	orbMinRangePct     = 0.003
	orbMaxRangePct     = 0.05
	orbBufferPct       = 0.002
	orbImbalancePct    = 0.0025
	orbVolumeRatioMin  = 1.25
	orbBodyRatioMin    = 0.55
	orbChopTolerance   = 0.001
	orbStaleness       = 20 * time.Minute
	orbMaxStopLossPct  = 0.08
	orbMaxTakeProfit   = 0.20
	orbTakeProfitRatio = 1.8
	orbLookbackBars    = 36
)

func clock(t time.Time) int { return util.MinuteOfDay(t) }

// WithinORBSession reports whether breakouts are tradable: after the first
// 5-minute bar closed and no later than 11:00 ET.
func WithinORBSession(now time.Time) bool {
	c := clock(now)
	et := now.In(util.Eastern)
	if c == 11*60 && (et.Second() > 0 || et.Nanosecond() > 0) {
		return false
	}
	return c >= 9*60+35 && c <= 11*60
}

// EvaluateBreakout looks for a 5-minute opening-range breakout in today's
// bars. base is the default bracket the ATR-scaled stop may widen.
func EvaluateBreakout(symbol string, bars []models.Bar, now time.Time, base risk.Bracket, atrMultiplier float64) (models.Signal, bool) {
	today := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if util.SameSessionDay(b.Time, now) {
			today = append(today, b)
		}
	}
	if len(today) == 0 {
		return models.Signal{}, false
	}

	openIdx := -1
	for i, b := range today {
		if c := clock(b.Time); c >= 9*60+30 && c < 9*60+35 {
			openIdx = i
			break
		}
	}
	if openIdx < 0 {
		return models.Signal{}, false
	}

	orBar := today[openIdx]
	orHigh, orLow := orBar.High, orBar.Low
	if orHigh <= 0 || orLow <= 0 {
		return models.Signal{}, false
	}
	mid := math.Max((orHigh+orLow)/2, 1e-6)
	rangePct := (orHigh - orLow) / mid
	if rangePct < orbMinRangePct || rangePct > orbMaxRangePct {
		return models.Signal{}, false
	}
	if choppyOpen(today, openIdx, orHigh, orLow) {
		return models.Signal{}, false
	}

	var pv, vol float64
	for i := 0; i < openIdx; i++ {
		pv += today[i].Close * today[i].Volume
		vol += today[i].Volume
	}
	for i := openIdx; i < len(today); i++ {
		bar := today[i]
		pv += bar.Close * bar.Volume
		vol += bar.Volume
		if i == openIdx {
			continue
		}
		if clock(bar.Time) > 11*60 {
			break
		}
		if now.Sub(bar.Time) > orbStaleness {
			continue
		}

		span := math.Max(bar.High-bar.Low, 1e-6)
		if math.Abs(bar.Close-bar.Open)/span < orbBodyRatioMin {
			continue
		}
		if !(bar.Close > orHigh*(1+orbBufferPct) && bar.Close > bar.Open) {
			continue
		}

		ext := (bar.Close - orHigh) / orHigh
		if ext < math.Max(rangePct*0.25, orbImbalancePct) {
			continue
		}
		vwap := bar.Close
		if vol > 0 {
			vwap = pv / vol
		}
		if vwap <= orHigh {
			continue
		}

		start := i - 3
		if start < openIdx {
			start = openIdx
		}
		baseVol := technicals.Mean(models.Volumes(today[start:i]))
		volRatio := 0.0
		if baseVol > 0 {
			volRatio = bar.Volume / baseVol
		}
		if volRatio < orbVolumeRatioMin {
			continue
		}

		sl, tp := breakoutBracket(today, bar.Close, base, atrMultiplier)
		sig := models.NewSignal(symbol, models.BreakoutDetail{
			ORHigh:      orHigh,
			ORLow:       orLow,
			RangePct:    rangePct,
			Extension:   ext,
			VolumeRatio: volRatio,
			VWAP:        vwap,
			BarTime:     bar.Time,
		})
		sig.Score = breakoutScore(ext, volRatio)
		sig.StopLossPct = sl
		sig.TakeProfitPct = tp
		sig.DataSource = models.DataSourceIntraday
		sig.Reason = "5m ORB breakout long"
		return sig, true
	}
	return models.Signal{}, false
}

// choppyOpen flags opens whose next two bars pierce both sides of the range.
func choppyOpen(bars []models.Bar, openIdx int, orHigh, orLow float64) bool {
	end := openIdx + 3
	if end > len(bars) {
		end = len(bars)
	}
	early := bars[openIdx+1 : end]
	if len(early) == 0 {
		return true
	}
	hi, lo := early[0].High, early[0].Low
	for _, b := range early[1:] {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi > orHigh*(1+orbChopTolerance) && lo < orLow*(1-orbChopTolerance)
}

func breakoutScore(ext, volRatio float64) float64 {
	distance := math.Min(ext*3, 0.25)
	volume := math.Min(math.Max(volRatio-1, 0)*0.08, 0.12)
	return math.Min(0.55+distance+volume, 0.99)
}

func breakoutBracket(bars []models.Bar, entry float64, base risk.Bracket, atrMultiplier float64) (float64, float64) {
	sl := base.StopLossPct
	atr := technicals.ATRSeries(bars, 14)
	if len(atr) > 0 && entry > 0 {
		if a := atr[len(atr)-1]; a > 0 {
			sl = math.Max(base.StopLossPct, math.Min(a/entry*atrMultiplier, orbMaxStopLossPct))
		}
	}
	tp := math.Max(base.TakeProfitPct, math.Min(sl*orbTakeProfitRatio, orbMaxTakeProfit))
	return sl, tp
}
