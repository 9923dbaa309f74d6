// Package technicals implements the indicator math used by entry and exit
// filters. Series functions return slices aligned to their input; warm-up
// positions hold NaN.
package technicals

import (
	"math"

	"MicroTrader/internal/domain/models"
)

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return v[len(v)-1]
}

// SMASeries returns the n-period simple moving average aligned to values.
func SMASeries(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// SMA returns the latest n-period average, or NaN with fewer than n values.
func SMA(values []float64, n int) float64 { return last(SMASeries(values, n)) }

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// EMASeries returns an exponential moving average seeded with the first value
// (alpha = 2/(n+1), no bias adjustment).
func EMASeries(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(n+1)
	prev := values[0]
	out[0] = prev
	for i := 1; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// RSISeries returns the n-period RSI with Wilder smoothing. Positions before
// the first full window are NaN.
func RSISeries(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) <= n {
		return out
	}
	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(n)
	loss /= float64(n)
	out[n] = rsiFrom(gain, loss)
	for i := n + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		up, down := 0.0, 0.0
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		gain = (gain*float64(n-1) + up) / float64(n)
		loss = (loss*float64(n-1) + down) / float64(n)
		out[i] = rsiFrom(gain, loss)
	}
	return out
}

func rsiFrom(gain, loss float64) float64 {
	switch {
	case loss == 0 && gain == 0:
		return 50
	case loss == 0:
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// RSI returns the latest n-period RSI.
func RSI(values []float64, n int) float64 { return last(RSISeries(values, n)) }

// MACDHistogram returns MACD(fast, slow) minus its signal EMA.
func MACDHistogram(values []float64, fast, slow, signal int) []float64 {
	if len(values) == 0 {
		return nil
	}
	ef := EMASeries(values, fast)
	es := EMASeries(values, slow)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = ef[i] - es[i]
	}
	sig := EMASeries(line, signal)
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - sig[i]
	}
	return hist
}

// TrueRange returns per-bar true range; the first bar uses high-low.
func TrueRange(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			pc := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

// ATRSeries returns the n-period average true range with Wilder smoothing.
func ATRSeries(bars []models.Bar, n int) []float64 {
	out := nanSeries(len(bars))
	if n <= 0 || len(bars) < n {
		return out
	}
	tr := TrueRange(bars)
	atr := Mean(tr[:n])
	out[n-1] = atr
	for i := n; i < len(bars); i++ {
		atr = (atr*float64(n-1) + tr[i]) / float64(n)
		out[i] = atr
	}
	return out
}

// ATR returns the latest n-period ATR, shrinking n to the available history
// when fewer bars exist. It returns NaN for fewer than two bars.
func ATR(bars []models.Bar, n int) float64 {
	if len(bars) < 2 {
		return math.NaN()
	}
	if len(bars) < n {
		n = len(bars)
	}
	return last(ATRSeries(bars, n))
}

// VWAP returns the cumulative close-weighted volume average. Zero-volume bars
// are ignored; NaN when no volume traded.
func VWAP(bars []models.Bar) float64 {
	var pv, vol float64
	for _, b := range bars {
		if b.Volume <= 0 {
			continue
		}
		pv += b.Close * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return math.NaN()
	}
	return pv / vol
}

// PctChanges returns close-to-close fractional returns (len-1 values).
func PctChanges(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// Return returns values[last]/values[last-n] - 1, or 0 without enough history.
func Return(values []float64, n int) float64 {
	if n <= 0 || len(values) <= n {
		return 0
	}
	base := values[len(values)-1-n]
	if base == 0 {
		return 0
	}
	return values[len(values)-1]/base - 1
}

// VolumeRatio compares the last bar's volume to the mean of up to lookback
// prior bars. It returns 0 when there is no prior volume.
func VolumeRatio(bars []models.Bar, lookback int) float64 {
	if len(bars) < 2 || lookback <= 0 {
		return 0
	}
	start := len(bars) - 1 - lookback
	if start < 0 {
		start = 0
	}
	prior := models.Volumes(bars[start : len(bars)-1])
	avg := Mean(prior)
	if !(avg > 0) {
		return 0
	}
	return bars[len(bars)-1].Volume / avg
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
