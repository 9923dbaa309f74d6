package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"MicroTrader/internal/domain/repository"
	svcmetrics "MicroTrader/internal/service/metrics"
	"MicroTrader/internal/service/ratelimit"
	"MicroTrader/pkg/config"
	xhttp "MicroTrader/pkg/http"
	"MicroTrader/pkg/logger"
)

const providerName = "alpaca"

// ErrRateLimited is returned without a network call while the client is
// cooling down after a 429 or its local token bucket is empty.
var ErrRateLimited = fmt.Errorf("alpaca: %w", repository.ErrRateLimited)

// APIError is a non-2xx response from Alpaca.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("alpaca: status %d code %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("alpaca: status %d: %s", e.Status, e.Message)
}

// Unwrap maps "position does not exist" style responses to ErrNoPosition.
func (e *APIError) Unwrap() error {
	if e.Status != http.StatusNotFound && e.Status != http.StatusUnprocessableEntity {
		return nil
	}
	msg := strings.ToLower(e.Message)
	if strings.Contains(msg, "position does not exist") ||
		strings.Contains(msg, "no position") ||
		strings.Contains(msg, "insufficient qty") {
		return repository.ErrNoPosition
	}
	return nil
}

// Client is the shared transport for the trading and data APIs.
type Client struct {
	http       *xhttp.Client
	hc         *http.Client
	tradingURL string
	dataURL    string
	feed       string

	limiter   *ratelimit.Limiter
	capacity  float64
	refill    float64
	cooldown  time.Duration
	mu        sync.Mutex
	coolUntil time.Time
	now       func() time.Time
	log       *logger.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

func WithLogger(l *logger.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.hc = hc }
}

func NewClient(cfg config.AlpacaConfig, opts ...ClientOption) *Client {
	capacity, refill := ratelimit.PerMinute(cfg.RatePerMinute)
	c := &Client{
		tradingURL: strings.TrimRight(cfg.TradingURL, "/"),
		dataURL:    strings.TrimRight(cfg.DataURL, "/"),
		feed:       cfg.Feed,
		capacity:   capacity,
		refill:     refill,
		cooldown:   cfg.Cooldown,
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = ratelimit.NewWithClock(c.now)
	httpOpts := []xhttp.ClientOption{
		xhttp.WithTimeout(cfg.Timeout),
		xhttp.WithHeader("APCA-API-KEY-ID", cfg.KeyID),
		xhttp.WithHeader("APCA-API-SECRET-KEY", cfg.SecretKey),
	}
	if c.hc != nil {
		httpOpts = append(httpOpts, xhttp.WithHTTPClient(c.hc))
	}
	c.http = xhttp.NewClient(httpOpts...)
	return c
}

// RateLimited reports whether calls are currently suppressed after a 429.
func (c *Client) RateLimited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.coolUntil)
}

func (c *Client) trading(ctx context.Context, method, path string, query map[string][]string, body, dest interface{}) error {
	return c.do(ctx, c.tradingURL+path, method, endpointName(path), query, body, dest)
}

func (c *Client) data(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	return c.do(ctx, c.dataURL+path, xhttp.MethodGet, endpointName(path), query, nil, dest)
}

func (c *Client) do(ctx context.Context, url, method, endpoint string, query map[string][]string, body, dest interface{}) error {
	if c.RateLimited() {
		return ErrRateLimited
	}
	if !c.limiter.Allow(providerName, c.capacity, c.refill) {
		return ErrRateLimited
	}

	start := c.now()
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      method,
		URL:         url,
		QueryParams: query,
		Body:        body,
	}, dest)
	svcmetrics.ProviderLatency.WithLabelValues(providerName, endpoint).Observe(c.now().Sub(start).Seconds())
	if err == nil {
		return nil
	}
	svcmetrics.ProviderErrors.WithLabelValues(providerName, endpoint).Inc()

	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("alpaca %s %s: %w", method, endpoint, err)
	}
	if se.Status == http.StatusTooManyRequests {
		c.startCooldown(se.Header.Get("Retry-After"))
	}
	return newAPIError(se)
}

func (c *Client) startCooldown(retryAfter string) {
	d := c.cooldown
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		d = time.Second
	}
	c.mu.Lock()
	until := c.now().Add(d)
	if until.After(c.coolUntil) {
		c.coolUntil = until
	}
	c.mu.Unlock()
	c.log.Warn("alpaca rate limit, cooling down", logger.Duration("cooldown", d))
}

func newAPIError(se *xhttp.StatusError) *APIError {
	apiErr := &APIError{Status: se.Status, Message: strings.TrimSpace(string(se.Body))}
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(se.Body, &body) == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	return apiErr
}

// endpointName collapses path parameters so metric labels stay bounded.
func endpointName(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 4 && parts[1] == "stocks":
		return "stocks_" + strings.Join(parts[3:], "_")
	case len(parts) >= 2:
		return parts[1]
	default:
		return path
	}
}
