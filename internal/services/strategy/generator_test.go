package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/services/risk"
	"MicroTrader/internal/testutil"
	"MicroTrader/pkg/logger"
	"MicroTrader/pkg/util"
)

func minuteBars(closes []float64, vols []float64) []models.Bar {
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c + 0.05,
			Low:    c - 0.05,
			Close:  c,
			Volume: vols[i],
		}
	}
	return out
}

func flatThen(n int, base float64, tailCloses ...float64) []float64 {
	out := make([]float64, 0, n+len(tailCloses))
	for i := 0; i < n; i++ {
		out = append(out, base)
	}
	return append(out, tailCloses...)
}

func constVols(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newTestGenerator(md *testutil.MarketData, cls *testutil.Classifier) *Generator {
	afternoon := func() time.Time { return time.Date(2026, 3, 2, 14, 0, 0, 0, util.Eastern) }
	return NewGenerator(DefaultConfig(), md, cls, testutil.Sentiment{}, risk.NewGate(risk.DefaultConfig()), logger.Nop(),
		WithEntryFilter(func([]models.Bar) bool { return true }),
		WithReversalDetector(func([]models.Bar) float64 { return 0 }),
		WithClock(afternoon),
	)
}

func TestGenerateIntraday(t *testing.T) {
	md := testutil.NewMarketData()
	md.Intraday["SPY"] = minuteBars(flatThen(30, 400), constVols(30, 1000))

	up := flatThen(30, 100, 100.4, 100.8, 101.2, 101.6, 102.0)
	md.Intraday["AAA"] = minuteBars(up, constVols(len(up), 1000))
	md.Daily["AAA"] = dailyBars(40, 50, 0.01)

	dip := flatThen(30, 100, 99.5, 99.0, 98.0)
	dipVols := constVols(len(dip), 1000)
	dipVols[len(dipVols)-1] = 3000
	md.Intraday["BBB"] = minuteBars(dip, dipVols)

	md.Intraday["CCC"] = minuteBars(flatThen(35, 100), constVols(35, 1000))

	cls := &testutil.Classifier{Probs: map[string]float64{"AAA": 0.8, "BBB": 0.7, "CCC": 0.9}}
	g := newTestGenerator(md, cls)

	signals := g.Generate(context.Background(), Request{Universe: []string{"AAA", "BBB", "CCC"}})
	require.Len(t, signals, 2)

	assert.Equal(t, "AAA", signals[0].Symbol)
	assert.Equal(t, models.SignalMomentum, signals[0].Type)
	assert.InDelta(t, 0.79, signals[0].Score, 1e-6)
	assert.Equal(t, 0.006, signals[0].StopLossPct)
	assert.Equal(t, 0.018, signals[0].TakeProfitPct)
	require.NotNil(t, signals[0].MaxHoldMinutes)
	assert.Equal(t, 90, *signals[0].MaxHoldMinutes)

	assert.Equal(t, "BBB", signals[1].Symbol)
	assert.Equal(t, models.SignalDipBuy, signals[1].Type)

	// No opening-range scan outside the morning session.
	assert.Zero(t, md.Calls["5min:AAA"])
}

func TestGenerateNormalizesUniverse(t *testing.T) {
	md := testutil.NewMarketData()
	md.Intraday["SPY"] = minuteBars(flatThen(30, 400), constVols(30, 1000))
	up := flatThen(30, 100, 100.4, 100.8, 101.2, 101.6, 102.0)
	md.Intraday["AAA"] = minuteBars(up, constVols(len(up), 1000))
	dip := flatThen(30, 100, 99.5, 99.0, 98.0)
	dipVols := constVols(len(dip), 1000)
	dipVols[len(dipVols)-1] = 3000
	md.Intraday["BBB"] = minuteBars(dip, dipVols)

	cls := &testutil.Classifier{Probs: map[string]float64{"AAA": 0.8, "BBB": 0.7}}
	g := newTestGenerator(md, cls)

	signals := g.Generate(context.Background(), Request{Universe: []string{"aaa", " bbb ", "AAA", ""}})
	require.Len(t, signals, 2)
	assert.Equal(t, "AAA", signals[0].Symbol)
	assert.Equal(t, "BBB", signals[1].Symbol)
}

func TestNormalizeUniverse(t *testing.T) {
	assert.Equal(t, []string{"AAA", "BBB"}, normalizeUniverse([]string{" aaa", "", "Bbb", "AAA "}))
	assert.Empty(t, normalizeUniverse(nil))
}

func TestGenerateRegimeGate(t *testing.T) {
	md := testutil.NewMarketData()
	md.Intraday["SPY"] = minuteBars(flatThen(30, 400), constVols(30, 1000))
	dip := flatThen(30, 100, 99.5, 99.0, 98.0)
	vols := constVols(len(dip), 1000)
	vols[len(vols)-1] = 3000
	md.Intraday["BBB"] = minuteBars(dip, vols)

	g := newTestGenerator(md, &testutil.Classifier{Probs: map[string]float64{"BBB": 0.7}})
	signals := g.Generate(context.Background(), Request{
		Universe: []string{"BBB"},
		Regime:   models.Regime{Score: -0.6, Label: models.RegimeBear},
	})
	assert.Empty(t, signals)
}

func TestGenerateSwingFallback(t *testing.T) {
	md := testutil.NewMarketData()
	md.SetErr("intraday", "SPY", errors.New("stale"))
	universe := []string{"A1", "A2", "A3", "A4", "A5", "A6"}
	for _, s := range universe {
		md.Daily[s] = dailyBars(60, 20, 0.03)
	}
	g := newTestGenerator(md, &testutil.Classifier{})

	signals := g.Generate(context.Background(), Request{Universe: universe})
	require.Len(t, signals, 5)
	for _, s := range signals {
		assert.Equal(t, models.SignalSwing, s.Type)
		assert.Equal(t, models.DataSourceDaily, s.DataSource)
		assert.Equal(t, 1440, s.HoldMinutes(0))
		d, ok := s.Detail.(models.SwingDetail)
		require.True(t, ok)
		assert.Equal(t, models.SwingTrend, d.Setup)
	}

	crash := g.Generate(context.Background(), Request{Universe: universe, CrashMode: true})
	assert.Len(t, crash, 3)
}

func TestGenerateClassifierDown(t *testing.T) {
	md := testutil.NewMarketData()
	md.Intraday["SPY"] = minuteBars(flatThen(30, 400), constVols(30, 1000))
	g := newTestGenerator(md, &testutil.Classifier{Err: errors.New("timeout")})
	assert.Empty(t, g.Generate(context.Background(), Request{Universe: []string{"AAA"}}))
}
