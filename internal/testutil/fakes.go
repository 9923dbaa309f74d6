// Package testutil holds in-memory collaborators for package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
)

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock { return &Clock{t: t} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// MarketData serves canned bars and prices keyed by symbol.
type MarketData struct {
	mu        sync.Mutex
	Prices    map[string]float64
	Intraday  map[string][]models.Bar
	FiveMin   map[string][]models.Bar
	Daily     map[string][]models.Bar
	Errs      map[string]error // keyed by "kind:symbol", kind in price/intraday/5min/daily
	Calls     map[string]int
	Providers map[string]string
}

// NewMarketData returns an empty fake.
func NewMarketData() *MarketData {
	return &MarketData{
		Prices:    map[string]float64{},
		Intraday:  map[string][]models.Bar{},
		FiveMin:   map[string][]models.Bar{},
		Daily:     map[string][]models.Bar{},
		Errs:      map[string]error{},
		Calls:     map[string]int{},
		Providers: map[string]string{},
	}
}

func (m *MarketData) hit(kind, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := kind + ":" + symbol
	m.Calls[key]++
	return m.Errs[key]
}

// SetErr makes calls of kind for symbol fail with err.
func (m *MarketData) SetErr(kind, symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errs, kind+":"+symbol)
		return
	}
	m.Errs[kind+":"+symbol] = err
}

func (m *MarketData) GetPrice(_ context.Context, symbol string) (float64, error) {
	if err := m.hit("price", symbol); err != nil {
		return 0, err
	}
	p, ok := m.Prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s: %w", symbol, repository.ErrNoData)
	}
	return p, nil
}

func (m *MarketData) GetAggregates(_ context.Context, symbol string, _ int, _ bool) ([]models.Bar, error) {
	if err := m.hit("intraday", symbol); err != nil {
		return nil, err
	}
	bars, ok := m.Intraday[symbol]
	if !ok {
		return nil, repository.ErrNoData
	}
	return bars, nil
}

func (m *MarketData) GetBars(_ context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Bar, error) {
	kind, src := "intraday", m.Intraday
	switch tf {
	case repository.TF5Min:
		kind, src = "5min", m.FiveMin
	case repository.TF1Day:
		kind, src = "daily", m.Daily
	}
	if err := m.hit(kind, symbol); err != nil {
		return nil, err
	}
	bars, ok := src[symbol]
	if !ok {
		return nil, repository.ErrNoData
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (m *MarketData) GetDailyAggregates(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	return m.GetBars(ctx, symbol, repository.TF1Day, limit)
}

func (m *MarketData) LastProvider(symbol, kind string) string {
	return m.Providers[kind]
}

// Broker is a scriptable broker.
type Broker struct {
	mu sync.Mutex

	Account   models.Account
	Positions map[string]models.Position
	Orders    map[string]models.Order

	AccountErr   error
	PositionsErr error
	SubmitErr    error
	OrderErr     error
	CloseErr     error

	// SubmitStatus is the status returned for new orders (default accepted).
	SubmitStatus models.OrderStatus
	FillPrice    float64
	FillTime     time.Time

	Submitted []models.BracketOrder
	Closed    []string
	seq       int
}

// NewBroker returns a broker with the given account and no positions.
func NewBroker(acct models.Account) *Broker {
	return &Broker{
		Account:   acct,
		Positions: map[string]models.Position{},
		Orders:    map[string]models.Order{},
	}
}

func (b *Broker) GetAccount(context.Context) (models.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Account, b.AccountErr
}

func (b *Broker) GetAllPositions(context.Context) ([]models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PositionsErr != nil {
		return nil, b.PositionsErr
	}
	out := make([]models.Position, 0, len(b.Positions))
	for _, p := range b.Positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (b *Broker) SubmitOrder(_ context.Context, o models.BracketOrder) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SubmitErr != nil {
		return models.Order{}, b.SubmitErr
	}
	b.seq++
	b.Submitted = append(b.Submitted, o)
	status := b.SubmitStatus
	if status == "" {
		status = models.OrderAccepted
	}
	ord := models.Order{
		ID:            fmt.Sprintf("order-%d", b.seq),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Status:        status,
		Qty:           float64(o.Qty),
	}
	if status.IsFilled() {
		ord.FilledQty = float64(o.Qty)
		ord.FilledAvgPrice = b.FillPrice
		if !b.FillTime.IsZero() {
			ft := b.FillTime
			ord.FilledAt = &ft
		}
	}
	b.Orders[ord.ID] = ord
	return ord, nil
}

func (b *Broker) GetOrderByID(_ context.Context, id string) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OrderErr != nil {
		return models.Order{}, b.OrderErr
	}
	o, ok := b.Orders[id]
	if !ok {
		return models.Order{}, repository.ErrNotFound
	}
	return o, nil
}

func (b *Broker) ClosePosition(_ context.Context, symbol string) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CloseErr != nil {
		return models.Order{}, b.CloseErr
	}
	b.Closed = append(b.Closed, symbol)
	delete(b.Positions, symbol)
	return models.Order{ID: "close-" + symbol, Symbol: symbol, Status: models.OrderAccepted}, nil
}

// SetOrder overwrites an order's broker-side state.
func (b *Broker) SetOrder(o models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Orders[o.ID] = o
}

// Store is an in-memory PortfolioStore, PendingStore and EquityStore.
type Store struct {
	mu      sync.Mutex
	ts      map[string]time.Time
	meta    map[string]models.EntryMetadata
	pending map[string]models.PendingEntry
	equity  map[string]float64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		ts:      map[string]time.Time{},
		meta:    map[string]models.EntryMetadata{},
		pending: map[string]models.PendingEntry{},
		equity:  map[string]float64{},
	}
}

func (s *Store) GetEntryTimestamp(_ context.Context, symbol string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ts[symbol]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) SetEntryTimestamp(_ context.Context, symbol string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ts[symbol] = ts
	return nil
}

func (s *Store) ClearEntryTimestamp(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ts, symbol)
	return nil
}

func (s *Store) GetEntryMetadata(_ context.Context, symbol string) (*models.EntryMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[symbol]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) SetEntryMetadata(_ context.Context, symbol string, meta models.EntryMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[symbol] = meta
	return nil
}

func (s *Store) ClearEntryMetadata(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meta, symbol)
	return nil
}

func (s *Store) TrackedSymbols(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for k := range s.ts {
		seen[k] = true
	}
	for k := range s.meta {
		seen[k] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) SavePending(_ context.Context, p models.PendingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[p.OrderID] = p
	return nil
}

func (s *Store) DeletePending(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, orderID)
	return nil
}

func (s *Store) ListPending(context.Context) ([]models.PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PendingEntry, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

func (s *Store) GetDayStartEquity(_ context.Context, day string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.equity[day]
	return v, ok, nil
}

func (s *Store) SetDayStartEquity(_ context.Context, day string, equity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equity[day] = equity
	return nil
}

// TradeLog records audit events in memory.
type TradeLog struct {
	mu     sync.Mutex
	Events []models.TradeEvent
}

func (l *TradeLog) LogTrade(_ context.Context, ev models.TradeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Events = append(l.Events, ev)
	return nil
}

// ByStatus returns recorded events with the given status.
func (l *TradeLog) ByStatus(status string) []models.TradeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.TradeEvent
	for _, e := range l.Events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// Classifier returns fixed probabilities.
type Classifier struct {
	Probs map[string]float64
	Err   error
}

func (c *Classifier) GeneratePredictions(_ context.Context, universe []string, _ bool) ([]models.Prediction, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	var out []models.Prediction
	for _, sym := range universe {
		if p, ok := c.Probs[sym]; ok {
			out = append(out, models.Prediction{Symbol: sym, Probability: p})
		}
	}
	return out, nil
}

// Sentiment returns fixed scores.
type Sentiment map[string]float64

func (s Sentiment) SymbolSentiment(_ context.Context, symbol string) (float64, error) {
	return s[symbol], nil
}

// EventStore is an in-memory TradeEventStore.
type EventStore struct {
	mu        sync.Mutex
	Events    []models.TradeEvent
	InsertErr error
}

func (s *EventStore) Insert(_ context.Context, events []models.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	s.Events = append(s.Events, events...)
	return nil
}

// Recent returns the newest events first, optionally filtered by symbol.
func (s *EventStore) Recent(_ context.Context, symbol string, limit int) ([]models.TradeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TradeEvent
	for i := len(s.Events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if symbol == "" || s.Events[i].Symbol == symbol {
			out = append(out, s.Events[i])
		}
	}
	return out, nil
}

func (s *EventStore) Health(context.Context) error { return nil }

// Metrics counts recorded metric calls by name.
type Metrics struct {
	mu     sync.Mutex
	Counts map[string]int
	Open   int
}

func NewMetrics() *Metrics { return &Metrics{Counts: make(map[string]int)} }

func (m *Metrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counts[key]++
}

// Count returns how often key was recorded, e.g. "error:archiver_store".
func (m *Metrics) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counts[key]
}

func (m *Metrics) RecordSignal(kind string) { m.inc("signal:" + kind) }
func (m *Metrics) RecordSkip(action, reason string) { m.inc("skip:" + action + ":" + reason) }
func (m *Metrics) RecordOrder(action, status string) { m.inc("order:" + action + ":" + status) }
func (m *Metrics) RecordHalt(reason string) { m.inc("halt:" + reason) }
func (m *Metrics) RecordError(kind string) { m.inc("error:" + kind) }
func (m *Metrics) RecordLatency(op string, _ float64) { m.inc("latency:" + op) }

func (m *Metrics) SetOpenPositions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Open = n
}
