package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"MicroTrader/internal/domain/models"
)

func ret(v float64) *float64 { return &v }

func TestBracketPrices(t *testing.T) {
	g := NewGate(DefaultConfig())
	assert.Equal(t, 99.40, g.StopLossPrice(100, false))
	assert.Equal(t, 101.80, g.TakeProfitPrice(100, false))
	assert.Equal(t, 99.50, g.StopLossPrice(100, true))
	assert.Equal(t, 101.50, g.TakeProfitPrice(100, true))
}

func TestDailyLossExceeded(t *testing.T) {
	g := NewGate(DefaultConfig())
	assert.False(t, g.DailyLossExceeded(nil))
	assert.True(t, g.DailyLossExceeded(ret(-0.05)))
	assert.True(t, g.DailyLossExceeded(ret(-0.03)))
	assert.False(t, g.DailyLossExceeded(ret(0.05)))
	assert.False(t, g.DailyLossExceeded(ret(-0.02)))

	cfg := DefaultConfig()
	cfg.MaxDailyLossPct = 0
	assert.False(t, NewGate(cfg).DailyLossExceeded(ret(-0.5)))
}

func TestMaxPositionNotional(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionPct = 0
	g := NewGate(cfg)
	assert.InDelta(t, 10000.0/3, g.MaxPositionNotional(0, false), 1e-9)
	assert.InDelta(t, 10000.0/3, g.MaxPositionNotional(1_000_000, false), 1e-9)
	assert.InDelta(t, 0.8*10000/3, g.MaxPositionNotional(0, true), 1e-9)

	g = NewGate(DefaultConfig())
	// 10% of 20k = 2000 < 3333
	assert.InDelta(t, 2000, g.MaxPositionNotional(20000, false), 1e-9)
	// 10% of 1m = 100k > 3333
	assert.InDelta(t, 10000.0/3, g.MaxPositionNotional(1_000_000, false), 1e-9)
	// unknown equity falls back to the fixed cap
	assert.InDelta(t, 10000.0/3, g.MaxPositionNotional(0, false), 1e-9)
}

func TestCanOpenPosition(t *testing.T) {
	g := NewGate(DefaultConfig())

	assert.True(t, g.CanOpenPosition(4, 1000, false, 0, nil))
	assert.False(t, g.CanOpenPosition(5, 1000, false, 0, nil))

	assert.True(t, g.CanOpenPosition(2, 1000, true, 0, nil))
	assert.False(t, g.CanOpenPosition(3, 1000, true, 0, nil))

	ok, reason := g.Admit(0, 1000, false, 0, ret(-0.04))
	assert.False(t, ok)
	assert.Equal(t, models.SkipDailyLossLimit, reason)

	ok, reason = g.Admit(0, 5000, false, 0, nil)
	assert.False(t, ok)
	assert.Equal(t, models.SkipNotionalCap, reason)

	ok, reason = g.Admit(5, 100, false, 0, ret(0.01))
	assert.False(t, ok)
	assert.Equal(t, models.SkipMaxPositionsReached, reason)
}

func TestCoerce(t *testing.T) {
	v, ok := CoercePct(0.02)
	assert.True(t, ok)
	assert.Equal(t, 0.02, v)
	_, ok = CoercePct(1.5)
	assert.False(t, ok)
	_, ok = CoercePct(0)
	assert.False(t, ok)

	m, ok := CoerceMinutes(models.IntPtr(45))
	assert.True(t, ok)
	assert.Equal(t, 45, m)
	_, ok = CoerceMinutes(models.IntPtr(0))
	assert.False(t, ok)
	_, ok = CoerceMinutes(nil)
	assert.False(t, ok)
}
