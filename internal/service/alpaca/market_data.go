package alpaca

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	"MicroTrader/internal/service/cache"
	"MicroTrader/pkg/config"
	"MicroTrader/pkg/logger"
)

const (
	providerCache = "alpaca_cache"
	// Intraday lookback spans a long weekend so "last N bars" works before the open.
	intradayLookback = 4 * 24 * time.Hour
)

// MarketData implements repository.MarketData with the Alpaca data API.
// Streamed quotes, when configured, answer GetPrice before any REST call.
type MarketData struct {
	c            *Client
	quotes       repository.QuoteSource
	cache        *cache.TTLCache
	cacheTTL     time.Duration
	dailyTTL     time.Duration
	maxStaleness time.Duration
	now          func() time.Time
	log          *logger.Logger

	mu        sync.Mutex
	providers map[string]string
}

func NewMarketData(c *Client, cfg config.AlpacaConfig, quotes repository.QuoteSource) *MarketData {
	return &MarketData{
		c:            c,
		quotes:       quotes,
		cache:        cache.NewTTLCacheWithClock(c.now),
		cacheTTL:     cfg.CacheTTL,
		dailyTTL:     cfg.DailyCacheTTL,
		maxStaleness: cfg.MaxStaleness,
		now:          c.now,
		log:          c.log,
		providers:    make(map[string]string),
	}
}

func (m *MarketData) GetPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = models.NormalizeSymbol(symbol)
	if m.quotes != nil {
		if p, ok := m.quotes.LastPrice(symbol); ok && p > 0 {
			m.setProvider(symbol, "price", "finnhub")
			return p, nil
		}
	}
	var resp latestTradeResponse
	q := map[string][]string{"feed": {m.c.feed}}
	if err := m.c.data(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/trades/latest", q, &resp); err != nil {
		return 0, fmt.Errorf("latest trade %s: %w", symbol, err)
	}
	if resp.Trade == nil || resp.Trade.P <= 0 {
		return 0, fmt.Errorf("latest trade %s: %w", symbol, repository.ErrNoData)
	}
	m.setProvider(symbol, "price", providerName)
	return resp.Trade.P, nil
}

func (m *MarketData) GetAggregates(ctx context.Context, symbol string, windowMinutes int, allowStale bool) ([]models.Bar, error) {
	if windowMinutes <= 0 {
		windowMinutes = 60
	}
	bars, err := m.fetch(ctx, symbol, repository.TF1Min, windowMinutes, "intraday", m.cacheTTL)
	if err != nil {
		return nil, err
	}
	if !allowStale && m.maxStaleness > 0 {
		last := bars[len(bars)-1].Time
		if age := m.now().Sub(last); age > m.maxStaleness {
			return nil, fmt.Errorf("%s last bar %s old: %w", symbol, age.Truncate(time.Second), repository.ErrStaleData)
		}
	}
	return bars, nil
}

func (m *MarketData) GetBars(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Bar, error) {
	if !repository.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}
	kind, ttl := "intraday", m.cacheTTL
	if tf == repository.TF1Day {
		kind, ttl = "daily", m.dailyTTL
	}
	return m.fetch(ctx, symbol, tf, limit, kind, ttl)
}

func (m *MarketData) GetDailyAggregates(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	return m.GetBars(ctx, symbol, repository.TF1Day, limit)
}

func (m *MarketData) LastProvider(symbol, kind string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.providers[kind+":"+models.NormalizeSymbol(symbol)]
}

// fetch returns the most recent limit bars in ascending time order.
func (m *MarketData) fetch(ctx context.Context, symbol string, tf repository.Timeframe, limit int, kind string, ttl time.Duration) ([]models.Bar, error) {
	symbol = models.NormalizeSymbol(symbol)
	if limit <= 0 {
		limit = 1
	}
	key := fmt.Sprintf("bars:%s:%s:%d", symbol, tf, limit)
	if v, ok := m.cache.Get(key); ok {
		m.setProvider(symbol, kind, providerCache)
		return v.([]models.Bar), nil
	}

	lookback := intradayLookback
	if tf == repository.TF1Day {
		// Calendar days for limit sessions, with room for weekends and holidays.
		lookback = time.Duration(limit*7/5+10) * 24 * time.Hour
	}
	q := map[string][]string{
		"timeframe":  {string(tf)},
		"start":      {m.now().Add(-lookback).UTC().Format(time.RFC3339)},
		"limit":      {strconv.Itoa(limit)},
		"sort":       {"desc"},
		"adjustment": {"split"},
		"feed":       {m.c.feed},
	}
	var resp barsResponse
	if err := m.c.data(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/bars", q, &resp); err != nil {
		return nil, fmt.Errorf("bars %s %s: %w", symbol, tf, err)
	}
	if len(resp.Bars) == 0 {
		return nil, fmt.Errorf("bars %s %s: %w", symbol, tf, repository.ErrNoData)
	}
	bars := make([]models.Bar, len(resp.Bars))
	for i, w := range resp.Bars {
		bars[len(bars)-1-i] = w.model()
	}
	m.cache.Set(key, bars, ttl)
	m.setProvider(symbol, kind, providerName)
	return bars, nil
}

func (m *MarketData) setProvider(symbol, kind, provider string) {
	m.mu.Lock()
	m.providers[kind+":"+symbol] = provider
	m.mu.Unlock()
}

var _ repository.MarketData = (*MarketData)(nil)
