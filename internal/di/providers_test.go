package di

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/pkg/cache"
	"MicroTrader/pkg/config"
	applogger "MicroTrader/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("engine:\n  universe: [AAPL, SPY, MSFT]\n"))
	require.NoError(t, err)
	return cfg
}

func TestRiskConfigMapsCrashScale(t *testing.T) {
	cfg := testConfig(t)
	cfg.Risk.CrashMaxRiskScale = 0.25

	rc := RiskConfig(cfg.Risk)
	assert.Equal(t, 0.25, rc.CrashRiskScale)
	assert.Equal(t, cfg.Risk.MaxPositions, rc.MaxPositions)
	assert.Equal(t, cfg.Risk.CrashTakeProfitPct, rc.CrashTakeProfitPct)
	assert.Equal(t, cfg.Risk.DefaultMaxHoldMinutes, rc.DefaultMaxHoldMinutes)
}

func TestStrategyAndExitConfigShareEngineSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.SymbolDelay = 100 * time.Millisecond
	cfg.Strategy.ATRMultiplier = 3

	sc := StrategyConfig(cfg)
	assert.Equal(t, 100*time.Millisecond, sc.SymbolDelay)
	assert.Equal(t, "SPY", sc.ProbeSymbol)

	ec := ExitConfig(cfg)
	assert.Equal(t, 3.0, ec.ATRMultiplier)
	assert.Equal(t, cfg.Exit.FailureThreshold, ec.FailureThreshold)
}

func TestDisabledInfrastructureYieldsNilCollaborators(t *testing.T) {
	cfg := testConfig(t)
	l := applogger.Nop()

	producer, cleanup, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, producer)

	ch, cleanup, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, ch)

	assert.Nil(t, ProvideTradeEventStore(nil, l))
	assert.Nil(t, ProvideQuoteStream(cfg, l))

	consumer, err := ProvideKafkaConsumer(cfg, l, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, consumer)

	client := ProvideAlpacaClient(cfg, l)
	assert.Nil(t, ProvideBroker(client, cfg, l))
	assert.NotNil(t, ProvideMarketData(client, cfg, nil))
}

func TestProvideCacheFallsBackToMemory(t *testing.T) {
	cfg := testConfig(t)
	c, cleanup, err := ProvideCache(cfg, applogger.Nop())
	require.NoError(t, err)
	defer cleanup()
	_, ok := c.(*cache.MemoryCache)
	assert.True(t, ok)
}

func TestProvideQuoteStreamWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Finnhub.Enabled = true
	cfg.Finnhub.APIKey = "k"
	qs := ProvideQuoteStream(cfg, applogger.Nop())
	require.NotNil(t, qs)
	assert.False(t, qs.IsConnected())
}
