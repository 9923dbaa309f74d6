package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"MicroTrader/internal/domain/models"
	drepo "MicroTrader/internal/domain/repository"
	svcmetrics "MicroTrader/internal/service/metrics"
	"MicroTrader/pkg/logger"
)

type quote struct {
	price float64
	at    time.Time
}

// QuoteStream keeps the last trade price per symbol from the Finnhub
// websocket. LastPrice only answers while a quote is younger than maxAge.
type QuoteStream struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	maxAge         time.Duration
	now            func() time.Time
	log            *logger.Logger

	mu        sync.RWMutex
	quotes    map[string]quote
	connected bool
}

func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval, maxAge time.Duration, l *logger.Logger) *QuoteStream {
	if l == nil {
		l = logger.Nop()
	}
	syms := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = models.NormalizeSymbol(s); s != "" {
			syms = append(syms, s)
		}
	}
	return &QuoteStream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        syms,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		maxAge:         maxAge,
		now:            time.Now,
		log:            l,
		quotes:         make(map[string]quote),
	}
}

func (s *QuoteStream) LastPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	q, ok := s.quotes[models.NormalizeSymbol(symbol)]
	s.mu.RUnlock()
	if !ok || q.price <= 0 {
		return 0, false
	}
	if s.maxAge > 0 && s.now().Sub(q.at) > s.maxAge {
		return 0, false
	}
	return q.price, true
}

func (s *QuoteStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Run connects, subscribes and reads until ctx is done, reconnecting after
// reconnectDelay whenever the connection drops.
func (s *QuoteStream) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		s.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("finnhub stream dropped", logger.Error(err), logger.Duration("retry_in", s.reconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *QuoteStream) session(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var writeMu sync.Mutex
	for _, sym := range s.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.setConnected(true)
	s.log.Info("finnhub: subscribed", logger.Int("symbols", len(s.symbols)))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	if s.pingInterval > 0 {
		go func() {
			ticker := time.NewTicker(s.pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					writeMu.Lock()
					_ = conn.WriteMessage(websocket.PingMessage, nil)
					writeMu.Unlock()
				}
			}
		}()
	}

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		s.handle(b)
	}
}

func (s *QuoteStream) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.websocketURL)
	if err != nil {
		return nil, fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", s.apiKey)
	u.RawQuery = q.Encode()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("finnhub connect: %w", err)
	}
	return conn, nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// handle applies one frame; non-trade frames (ping, errors) are ignored.
func (s *QuoteStream) handle(b []byte) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range m.Data {
		if d.P <= 0 {
			continue
		}
		sym := models.NormalizeSymbol(d.S)
		at := time.UnixMilli(d.T).UTC()
		if prev, ok := s.quotes[sym]; ok && prev.at.After(at) {
			continue
		}
		s.quotes[sym] = quote{price: d.P, at: at}
		svcmetrics.QuoteUpdates.WithLabelValues("finnhub").Inc()
	}
}

func (s *QuoteStream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

var _ drepo.QuoteSource = (*QuoteStream)(nil)
