package repository

import (
	"context"
	"errors"
	"time"

	"MicroTrader/internal/domain/models"
)

var (
	// ErrNotFound is returned by stores when a key has no value.
	ErrNotFound = errors.New("not found")
	// ErrStaleData is returned when intraday bars are older than the freshness bound.
	ErrStaleData = errors.New("market data stale")
	// ErrNoData is returned when a provider returns no bars.
	ErrNoData = errors.New("market data empty")
	// ErrNoPosition is wrapped by brokers when a close finds nothing to close.
	ErrNoPosition = errors.New("no position")
	// ErrRateLimited is wrapped by clients that refuse a call locally because
	// their request budget is spent. Nothing reached the remote side.
	ErrRateLimited = errors.New("rate limited")
)

// MarketData provides prices and bars. Implementations bound every call with a timeout.
type MarketData interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	// GetAggregates returns 1-minute bars covering the last windowMinutes.
	// Unless allowStale is set, bars older than the freshness bound yield ErrStaleData.
	GetAggregates(ctx context.Context, symbol string, windowMinutes int, allowStale bool) ([]models.Bar, error)
	GetBars(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Bar, error)
	GetDailyAggregates(ctx context.Context, symbol string, limit int) ([]models.Bar, error)
	// LastProvider names the source that served the last call of kind ("price", "intraday", "daily").
	LastProvider(symbol, kind string) string
}

// QuoteSource is a push-fed last-trade cache.
type QuoteSource interface {
	LastPrice(symbol string) (float64, bool)
}

// Broker is the trading API.
type Broker interface {
	GetAccount(ctx context.Context) (models.Account, error)
	GetAllPositions(ctx context.Context) ([]models.Position, error)
	SubmitOrder(ctx context.Context, order models.BracketOrder) (models.Order, error)
	GetOrderByID(ctx context.Context, id string) (models.Order, error)
	ClosePosition(ctx context.Context, symbol string) (models.Order, error)
}

// PortfolioStore persists per-symbol entry timestamps and exit metadata.
// Getters return (nil, nil) when nothing is stored.
type PortfolioStore interface {
	GetEntryTimestamp(ctx context.Context, symbol string) (*time.Time, error)
	SetEntryTimestamp(ctx context.Context, symbol string, ts time.Time) error
	ClearEntryTimestamp(ctx context.Context, symbol string) error
	GetEntryMetadata(ctx context.Context, symbol string) (*models.EntryMetadata, error)
	SetEntryMetadata(ctx context.Context, symbol string, meta models.EntryMetadata) error
	ClearEntryMetadata(ctx context.Context, symbol string) error
	TrackedSymbols(ctx context.Context) ([]string, error)
}

// PendingStore persists pending entries so they survive restarts.
type PendingStore interface {
	SavePending(ctx context.Context, p models.PendingEntry) error
	DeletePending(ctx context.Context, orderID string) error
	ListPending(ctx context.Context) ([]models.PendingEntry, error)
}

// EquityStore keeps the day-start equity used by the daily-loss breaker.
type EquityStore interface {
	GetDayStartEquity(ctx context.Context, day string) (float64, bool, error)
	SetDayStartEquity(ctx context.Context, day string, equity float64) error
}

// TradeLogger is the append-only audit sink.
type TradeLogger interface {
	LogTrade(ctx context.Context, ev models.TradeEvent) error
}

// TradeEventStore archives audit events for querying.
type TradeEventStore interface {
	Insert(ctx context.Context, events []models.TradeEvent) error
	Recent(ctx context.Context, symbol string, limit int) ([]models.TradeEvent, error)
	Health(ctx context.Context) error
}

// Metrics records engine counters.
type Metrics interface {
	RecordSignal(kind string)
	RecordSkip(action, reason string)
	RecordOrder(action, status string)
	RecordHalt(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	SetOpenPositions(n int)
}
