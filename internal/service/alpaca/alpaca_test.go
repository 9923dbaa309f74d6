package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	"MicroTrader/pkg/config"
)

var testNow = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.Handler) (*Client, *time.Time) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	now := testNow
	c := NewClient(config.AlpacaConfig{
		TradingURL:    srv.URL,
		DataURL:       srv.URL,
		KeyID:         "key",
		SecretKey:     "secret",
		Feed:          "iex",
		Timeout:       time.Second,
		RatePerMinute: 600,
		Cooldown:      30 * time.Second,
	}, WithClock(func() time.Time { return now }))
	return c, &now
}

func TestBroker_GetAccountAndPositions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/account", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		_, _ = io.WriteString(w, `{"equity":"100000.50","last_equity":"99000","buying_power":40000}`)
	})
	mux.HandleFunc("/v2/positions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"symbol":"aapl","qty":"10","qty_available":"4","avg_entry_price":"150.25","current_price":"151","unrealized_pl":"7.5"}]`)
	})
	c, _ := newTestClient(t, mux)
	b := NewBroker(c, "")

	acct, err := b.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Account{Equity: 100000.50, LastEquity: 99000, BuyingPower: 40000}, acct)

	pos, err := b.GetAllPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, "AAPL", pos[0].Symbol)
	assert.Equal(t, 10.0, pos[0].Qty)
	assert.Equal(t, 6.0, pos[0].HeldForOrders)
	assert.Equal(t, 150.25, pos[0].EntryPrice)
}

func TestBroker_SubmitBracket(t *testing.T) {
	var got orderRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"o-1","client_order_id":"`+got.ClientOrderID+`","symbol":"AAPL","status":"accepted","qty":"19"}`)
	})
	c, _ := newTestClient(t, mux)
	b := NewBroker(c, "day")

	order, err := b.SubmitOrder(context.Background(), models.BracketOrder{
		Symbol: "aapl", Qty: 19, TakeProfitPrice: 103.84, StopLossPrice: 101.39,
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", order.ID)
	assert.Equal(t, models.OrderAccepted, order.Status)

	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, "19", got.Qty)
	assert.Equal(t, "buy", got.Side)
	assert.Equal(t, "market", got.Type)
	assert.Equal(t, "bracket", got.OrderClass)
	assert.Equal(t, "day", got.TimeInForce)
	assert.NotEmpty(t, got.ClientOrderID)
	require.NotNil(t, got.TakeProfit)
	assert.Equal(t, "103.84", got.TakeProfit.LimitPrice)
	require.NotNil(t, got.StopLoss)
	assert.Equal(t, "101.39", got.StopLoss.StopPrice)

	_, err = b.SubmitOrder(context.Background(), models.BracketOrder{Symbol: "AAPL"})
	assert.Error(t, err)
}

func TestBroker_ClosePositionMissingIsNoPosition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/positions/MSFT", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":40410000,"message":"position does not exist"}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := NewBroker(c, "").ClosePosition(context.Background(), "msft")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrNoPosition))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 40410000, apiErr.Code)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestBroker_ServerErrorIsNotBenign(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/positions/MSFT", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `internal`)
	})
	c, _ := newTestClient(t, mux)

	_, err := NewBroker(c, "").ClosePosition(context.Background(), "MSFT")
	require.Error(t, err)
	assert.False(t, errors.Is(err, repository.ErrNoPosition))
}

func TestClient_CooldownAfter429(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/account", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"equity":"1"}`)
	})
	c, now := newTestClient(t, mux)
	b := NewBroker(c, "")

	_, err := b.GetAccount(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)

	_, err = b.GetAccount(context.Background())
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.True(t, errors.Is(err, repository.ErrRateLimited))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	*now = now.Add(6 * time.Second)
	acct, err := b.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, acct.Equity)
}

type stubQuotes map[string]float64

func (s stubQuotes) LastPrice(symbol string) (float64, bool) {
	p, ok := s[symbol]
	return p, ok
}

func TestMarketData_PricePrefersQuotes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/stocks/MSFT/trades/latest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "iex", r.URL.Query().Get("feed"))
		_, _ = io.WriteString(w, `{"symbol":"MSFT","trade":{"t":"2024-03-04T14:59:59Z","p":410.5}}`)
	})
	c, _ := newTestClient(t, mux)
	md := NewMarketData(c, config.AlpacaConfig{}, stubQuotes{"AAPL": 171.2})

	p, err := md.GetPrice(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, 171.2, p)
	assert.Equal(t, "finnhub", md.LastProvider("AAPL", "price"))

	p, err = md.GetPrice(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 410.5, p)
	assert.Equal(t, "alpaca", md.LastProvider("MSFT", "price"))
}

func TestMarketData_AggregatesCachedAndStale(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/stocks/AAPL/bars", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "1Min", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort"))
		_, _ = io.WriteString(w, `{"bars":[
			{"t":"2024-03-04T14:58:00Z","o":2,"h":2,"l":2,"c":2,"v":20},
			{"t":"2024-03-04T14:57:00Z","o":1,"h":1,"l":1,"c":1,"v":10}
		]}`)
	})
	c, now := newTestClient(t, mux)
	md := NewMarketData(c, config.AlpacaConfig{CacheTTL: time.Minute, MaxStaleness: 10 * time.Minute}, nil)

	bars, err := md.GetAggregates(context.Background(), "AAPL", 30, false)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.0, bars[0].Close)
	assert.Equal(t, 2.0, bars[1].Close)
	assert.Equal(t, "alpaca", md.LastProvider("AAPL", "intraday"))

	_, err = md.GetAggregates(context.Background(), "AAPL", 30, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, "alpaca_cache", md.LastProvider("AAPL", "intraday"))

	*now = now.Add(20 * time.Minute)
	_, err = md.GetAggregates(context.Background(), "AAPL", 30, false)
	assert.True(t, errors.Is(err, repository.ErrStaleData))

	bars, err = md.GetAggregates(context.Background(), "AAPL", 30, true)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestMarketData_EmptyBars(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/stocks/AAPL/bars", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1Day", r.URL.Query().Get("timeframe"))
		_, _ = io.WriteString(w, `{"bars":[]}`)
	})
	c, _ := newTestClient(t, mux)
	md := NewMarketData(c, config.AlpacaConfig{}, nil)

	_, err := md.GetDailyAggregates(context.Background(), "AAPL", 60)
	assert.True(t, errors.Is(err, repository.ErrNoData))

	_, err = md.GetBars(context.Background(), "AAPL", repository.Timeframe("1Hour"), 5)
	assert.Error(t, err)
}

func TestFlexFloat(t *testing.T) {
	var v struct {
		A flexFloat `json:"a"`
		B flexFloat `json:"b"`
		C flexFloat `json:"c"`
		D flexFloat `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1.5","b":2,"c":null,"d":""}`), &v))
	assert.Equal(t, flexFloat(1.5), v.A)
	assert.Equal(t, flexFloat(2), v.B)
	assert.Equal(t, flexFloat(0), v.C)
	assert.Equal(t, flexFloat(0), v.D)
	assert.Error(t, json.Unmarshal([]byte(`{"a":"x"}`), &v))
}

func TestEndpointName(t *testing.T) {
	assert.Equal(t, "orders", endpointName("/v2/orders/abc"))
	assert.Equal(t, "stocks_trades_latest", endpointName("/v2/stocks/AAPL/trades/latest"))
	assert.Equal(t, "stocks_bars", endpointName("/v2/stocks/AAPL/bars"))
}
