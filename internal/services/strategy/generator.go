package strategy

import (
	"context"
	"sort"
	"time"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	"MicroTrader/internal/domain/service"
	"MicroTrader/internal/services/risk"
	"MicroTrader/internal/services/technicals"
	"MicroTrader/pkg/logger"
)

// Generator runs the hypotheses over a universe once per cycle.
type Generator struct {
	cfg        Config
	md         repository.MarketData
	classifier service.Classifier
	sentiment  service.SentimentScorer
	gate       *risk.Gate
	log        *logger.Logger
	metrics    repository.Metrics

	entryFilter EntryFilterFunc
	detector    ReversalDetectorFunc
	now         func() time.Time
}

// Option customises a Generator.
type Option func(*Generator)

// WithEntryFilter replaces the technical entry filter.
func WithEntryFilter(f EntryFilterFunc) Option {
	return func(g *Generator) { g.entryFilter = f }
}

// WithReversalDetector replaces the reversal detector.
func WithReversalDetector(f ReversalDetectorFunc) Option {
	return func(g *Generator) { g.detector = f }
}

// WithClock injects the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithMetrics records emitted signal counts.
func WithMetrics(m repository.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator wires a generator. The sentiment scorer may be nil.
func NewGenerator(cfg Config, md repository.MarketData, classifier service.Classifier, sentiment service.SentimentScorer, gate *risk.Gate, log *logger.Logger, opts ...Option) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	g := &Generator{
		cfg:         cfg,
		md:          md,
		classifier:  classifier,
		sentiment:   sentiment,
		gate:        gate,
		log:         log,
		entryFilter: technicals.PassesEntryFilter,
		detector:    technicals.ReversalScore,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request is one generation pass.
type Request struct {
	Universe        []string
	CrashMode       bool
	EquityReturnPct *float64
	Regime          models.Regime
}

// Generate returns the ranked, de-duplicated signal list for the cycle.
// Per-symbol data failures are logged and skip that symbol only.
func (g *Generator) Generate(ctx context.Context, req Request) []models.Signal {
	req.Universe = normalizeUniverse(req.Universe)
	if _, err := g.md.GetAggregates(ctx, g.cfg.ProbeSymbol, g.cfg.IntradayWindowMinutes, false); err != nil {
		g.log.Warn("intraday data unavailable, using swing fallback",
			logger.String("probe", g.cfg.ProbeSymbol), logger.Error(err))
		return g.finalize(g.swing(ctx, req), req.CrashMode)
	}

	var signals []models.Signal
	claimed := make(map[string]bool)
	bracket := g.gate.Bracket(req.CrashMode)

	if !req.CrashMode && WithinORBSession(g.now()) {
		for _, sym := range req.Universe {
			if ctx.Err() != nil {
				break
			}
			bars, err := g.md.GetBars(ctx, sym, repository.TF5Min, orbLookbackBars)
			g.pause(ctx)
			if err != nil {
				g.log.Warn("ORB data unavailable", logger.String("symbol", sym), logger.Error(err))
				continue
			}
			sig, ok := EvaluateBreakout(sym, bars, g.now(), bracket, g.cfg.ATRMultiplier)
			if !ok {
				continue
			}
			sig.RegimeScore = req.Regime.Score
			sig.ProviderIntraday = g.md.LastProvider(sym, "intraday")
			claimed[sym] = true
			g.log.Info("breakout", logger.String("symbol", sym), logger.Float("score", sig.Score))
			signals = append(signals, sig)
		}
	}

	signals = append(signals, g.intraday(ctx, req, claimed, bracket)...)

	kept := signals[:0]
	for _, s := range signals {
		if s.RegimeScore < g.cfg.RegimeGateMinScore {
			g.log.Info("signal dropped by regime gate",
				logger.String("symbol", s.Symbol),
				logger.Float("regime_score", s.RegimeScore))
			continue
		}
		kept = append(kept, s)
	}
	return g.finalize(kept, req.CrashMode)
}

// normalizeUniverse upper-cases symbols and drops blanks and repeats so
// every lookup below is keyed the same way as provider responses.
func normalizeUniverse(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = models.NormalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (g *Generator) intraday(ctx context.Context, req Request, claimed map[string]bool, bracket risk.Bracket) []models.Signal {
	rank := g.rankMomentum(ctx, req.Universe)

	preds, err := g.classifier.GeneratePredictions(ctx, req.Universe, req.CrashMode)
	if err != nil {
		g.log.Warn("predictions unavailable", logger.Error(err))
		return nil
	}
	probs := make(map[string]float64, len(preds))
	for _, p := range preds {
		probs[models.NormalizeSymbol(p.Symbol)] = p.Probability
	}

	adjust := PnLAdjust(req.EquityReturnPct)
	var out []models.Signal
	for _, sym := range req.Universe {
		if ctx.Err() != nil {
			break
		}
		prob, ok := probs[sym]
		if !ok || claimed[sym] {
			continue
		}
		bars, err := g.md.GetAggregates(ctx, sym, g.cfg.IntradayWindowMinutes, false)
		g.pause(ctx)
		if err != nil {
			g.log.Warn("intraday bars unavailable", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		feat, ok := ExtractFeatures(bars, g.entryFilter, g.detector)
		if !ok {
			continue
		}
		c := Candidate{
			Symbol:      sym,
			Probability: prob,
			Sentiment:   g.symbolSentiment(ctx, sym),
			RankPct:     rank[sym],
			Regime:      req.Regime.Score,
			PnLAdjust:   adjust,
			Features:    feat,
		}

		sig, ok := g.evaluate(c)
		if !ok {
			continue
		}
		sig.StopLossPct = bracket.StopLossPct
		sig.TakeProfitPct = bracket.TakeProfitPct
		sig.MaxHoldMinutes = models.IntPtr(bracket.MaxHoldMinutes)
		sig.ProviderIntraday = g.md.LastProvider(sym, "intraday")
		sig.ProviderDaily = g.md.LastProvider(sym, "daily")
		claimed[sym] = true
		out = append(out, sig)
	}
	return out
}

// evaluate applies the intraday hypotheses in precedence order:
// momentum, then dip-buy, then reversal.
func (g *Generator) evaluate(c Candidate) (models.Signal, bool) {
	mom, momOK := EvaluateMomentum(c, g.cfg)
	rev, revOK := EvaluateReversal(c, g.cfg)
	if momOK {
		if revOK {
			g.log.Info("reversal superseded by momentum", logger.String("symbol", c.Symbol))
		}
		return intradaySignal(c, mom), true
	}
	if dip, ok := EvaluateDipBuy(c, g.cfg); ok {
		return intradaySignal(c, dip), true
	}
	if revOK {
		return intradaySignal(c, rev), true
	}
	return models.Signal{}, false
}

func (g *Generator) rankMomentum(ctx context.Context, universe []string) map[string]float64 {
	scores := make([]RankedSymbol, 0, len(universe))
	for _, sym := range universe {
		if ctx.Err() != nil {
			break
		}
		bars, err := g.md.GetDailyAggregates(ctx, sym, g.cfg.DailyLookback)
		g.pause(ctx)
		if err != nil {
			g.log.Warn("daily bars unavailable", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		if s, ok := MomentumScore(bars); ok {
			scores = append(scores, RankedSymbol{Symbol: sym, Score: s})
		}
	}
	return RankMomentum(scores, g.cfg.MomentumTopK)
}

func (g *Generator) swing(ctx context.Context, req Request) []models.Signal {
	limit := g.cfg.SwingMaxSignals
	var out []models.Signal
	for _, sym := range req.Universe {
		if ctx.Err() != nil || (limit > 0 && len(out) >= limit) {
			break
		}
		bars, err := g.md.GetDailyAggregates(ctx, sym, g.cfg.DailyLookback)
		g.pause(ctx)
		if err != nil {
			g.log.Warn("daily bars unavailable", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		sig, ok := EvaluateSwing(sym, bars, g.symbolSentiment(ctx, sym))
		if !ok {
			continue
		}
		sig.RegimeScore = req.Regime.Score
		sig.ProviderDaily = g.md.LastProvider(sym, "daily")
		out = append(out, sig)
	}
	if len(out) > 0 {
		g.log.Info("swing fallback generated signals", logger.Int("count", len(out)))
	}
	return out
}

func (g *Generator) symbolSentiment(ctx context.Context, sym string) float64 {
	if g.sentiment == nil {
		return 0
	}
	s, err := g.sentiment.SymbolSentiment(ctx, sym)
	if err != nil || !technicals.Finite(s) {
		return 0
	}
	return technicals.Clamp(s, -1, 1)
}

// finalize sorts by score, keeping discovery order on ties, and applies the
// crash-mode cap.
func (g *Generator) finalize(signals []models.Signal, crash bool) []models.Signal {
	sort.SliceStable(signals, func(i, j int) bool { return signals[i].Score > signals[j].Score })
	if crash && g.cfg.CrashMaxSignals > 0 && len(signals) > g.cfg.CrashMaxSignals {
		signals = signals[:g.cfg.CrashMaxSignals]
	}
	if g.metrics != nil {
		for _, s := range signals {
			g.metrics.RecordSignal(string(s.Type))
		}
	}
	return signals
}

func (g *Generator) pause(ctx context.Context) {
	if g.cfg.SymbolDelay <= 0 {
		return
	}
	t := time.NewTimer(g.cfg.SymbolDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
