package strategy

import (
	"fmt"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/services/technicals"
)

const (
	overrideMomentumMin = 0.015
	overrideVolumeMin   = 2.0
	dipSlopeMax         = -0.015
	dipVolumeMin        = 1.5
	reversalFlatMax     = 0.003
	reversalATRRatioMin = 1.1
	pnlAdjustBand       = 0.01
	pnlAdjustStep       = 0.05
	featureMinBars      = 6
)

// Features are the per-symbol intraday measurements shared by the
// momentum, dip-buy and reversal hypotheses.
type Features struct {
	Price          float64
	Slope3         float64
	PriceMomentum5 float64
	VolumeRatio    float64
	ATRRatio       float64
	EntryFilter    bool
	ReversalScore  float64
}

// EntryFilterFunc decides whether intraday bars allow a momentum entry.
type EntryFilterFunc func([]models.Bar) bool

// ReversalDetectorFunc returns a directional reversal score in [-1, 1].
type ReversalDetectorFunc func([]models.Bar) float64

// ExtractFeatures measures 1-minute bars. It needs at least six bars.
func ExtractFeatures(bars []models.Bar, entry EntryFilterFunc, detector ReversalDetectorFunc) (Features, bool) {
	if len(bars) < featureMinBars {
		return Features{}, false
	}
	closes := models.Closes(bars)
	f := Features{
		Price:          closes[len(closes)-1],
		Slope3:         technicals.Return(closes, 3),
		PriceMomentum5: technicals.Return(closes, 5),
		VolumeRatio:    technicals.VolumeRatio(bars, 20),
		ATRRatio:       technicals.ATRRatio(bars, 14, 10),
	}
	if f.Price <= 0 {
		return Features{}, false
	}
	if entry != nil {
		f.EntryFilter = entry(bars)
	}
	if detector != nil {
		f.ReversalScore = detector(bars)
	}
	return f, true
}

// Candidate is everything the intraday hypotheses consume for one symbol.
type Candidate struct {
	Symbol      string
	Probability float64
	Sentiment   float64
	RankPct     float64
	Regime      float64
	PnLAdjust   float64
	Features    Features
}

// PnLAdjust returns the composite penalty for the day's equity return:
// a 0.05 boost above +1%, a 0.05 penalty below -1%.
func PnLAdjust(equityReturnPct *float64) float64 {
	if equityReturnPct == nil {
		return 0
	}
	switch r := *equityReturnPct; {
	case r > pnlAdjustBand:
		return -pnlAdjustStep
	case r < -pnlAdjustBand:
		return pnlAdjustStep
	}
	return 0
}

// CompositeThreshold falls as the regime improves, clamped to [0.40, 0.70].
func CompositeThreshold(regime float64) float64 {
	return technicals.Clamp(0.55-0.10*regime, 0.40, 0.70)
}

// Composite is the regime-adjusted momentum score.
func Composite(c Candidate) float64 {
	sent01 := (technicals.Clamp(c.Sentiment, -1, 1) + 1) / 2
	mom := technicals.Clamp(c.Features.PriceMomentum5/0.02, -1, 1)
	regime01 := (technicals.Clamp(c.Regime, -1, 1) + 1) / 2
	return 0.25*c.RankPct + 0.30*c.Probability + 0.15*sent01 + 0.15*mom + 0.15*regime01 - c.PnLAdjust
}

// EvaluateMomentum returns the momentum payload and score when c qualifies.
func EvaluateMomentum(c Candidate, cfg Config) (models.MomentumDetail, bool) {
	f := c.Features
	override := c.Probability < cfg.TrendThreshold &&
		f.PriceMomentum5 >= overrideMomentumMin && f.VolumeRatio >= overrideVolumeMin
	if c.Probability < cfg.TrendThreshold && !override {
		return models.MomentumDetail{}, false
	}
	if f.Slope3 <= 0 || !f.EntryFilter {
		return models.MomentumDetail{}, false
	}
	if c.Regime < cfg.RegimeGateMinScore {
		return models.MomentumDetail{}, false
	}
	composite := Composite(c)
	threshold := CompositeThreshold(c.Regime)
	if composite <= threshold {
		return models.MomentumDetail{}, false
	}
	return models.MomentumDetail{
		RankPct:       c.RankPct,
		Composite:     composite,
		Threshold:     threshold,
		PriceMomentum: f.PriceMomentum5,
		VolumeRatio:   f.VolumeRatio,
		Override:      override,
	}, true
}

// EvaluateDipBuy admits sharp short-term selloffs on elevated volume.
func EvaluateDipBuy(c Candidate, cfg Config) (models.DipBuyDetail, bool) {
	f := c.Features
	if f.Slope3 > dipSlopeMax || f.VolumeRatio < dipVolumeMin || c.Probability <= cfg.ReversalThreshold {
		return models.DipBuyDetail{}, false
	}
	return models.DipBuyDetail{Slope: f.Slope3, VolumeRatio: f.VolumeRatio}, true
}

// EvaluateReversal admits flat tapes with expanding volatility and a
// bullish detector reading. Bearish readings are ignored.
func EvaluateReversal(c Candidate, cfg Config) (models.ReversalDetail, bool) {
	f := c.Features
	if abs(f.PriceMomentum5) > reversalFlatMax || f.ATRRatio < reversalATRRatioMin {
		return models.ReversalDetail{}, false
	}
	if c.Probability <= cfg.ReversalThreshold || f.ReversalScore <= 0 {
		return models.ReversalDetail{}, false
	}
	return models.ReversalDetail{
		DetectorScore: f.ReversalScore,
		ATRRatio:      f.ATRRatio,
		PriceMomentum: f.PriceMomentum5,
	}, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// intradaySignal wraps a hypothesis payload in the common envelope.
func intradaySignal(c Candidate, d models.Detail) models.Signal {
	sig := models.NewSignal(c.Symbol, d)
	sig.Probability = c.Probability
	sig.Sentiment = c.Sentiment
	sig.MomentumScore = c.Features.PriceMomentum5
	sig.RegimeScore = c.Regime
	sig.DataSource = models.DataSourceIntraday
	switch v := d.(type) {
	case models.MomentumDetail:
		sig.Score = v.Composite
		sig.Reason = fmt.Sprintf("momentum composite=%.3f threshold=%.3f", v.Composite, v.Threshold)
		if v.Override {
			sig.Reason += " override"
		}
	case models.DipBuyDetail:
		sig.Score = c.Probability
		sig.Reason = fmt.Sprintf("dip_buy slope=%.4f vol_ratio=%.2f", v.Slope, v.VolumeRatio)
	case models.ReversalDetail:
		sig.Score = 0.5*c.Probability + 0.5*v.DetectorScore
		sig.Reason = fmt.Sprintf("reversal detector=%.3f atr_ratio=%.2f", v.DetectorScore, v.ATRRatio)
	}
	return sig
}
