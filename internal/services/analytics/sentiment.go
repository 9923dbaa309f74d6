package analytics

import (
	"context"
	"fmt"
	"time"

	"MicroTrader/internal/domain/models"
	domsvc "MicroTrader/internal/domain/service"
	"MicroTrader/internal/service/cache"
)

type sentimentRequest struct {
	Symbol string `json:"symbol"`
}

type sentimentResponse struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

// HTTPSentiment scores news sentiment through the analytics service and
// caches each symbol for ttl.
type HTTPSentiment struct {
	base  *HTTPServiceBase
	cache *cache.TTLCache
	ttl   time.Duration
}

func NewHTTPSentiment(base *HTTPServiceBase, ttl time.Duration) *HTTPSentiment {
	return &HTTPSentiment{base: base, cache: cache.NewTTLCache(), ttl: ttl}
}

func (s *HTTPSentiment) SymbolSentiment(ctx context.Context, symbol string) (float64, error) {
	symbol = models.NormalizeSymbol(symbol)
	if v, ok := s.cache.Get(symbol); ok {
		return v.(float64), nil
	}
	var resp sentimentResponse
	if err := s.base.PostJSONWithRetry(ctx, "/sentiment", sentimentRequest{Symbol: symbol}, &resp); err != nil {
		return 0, fmt.Errorf("sentiment %s: %w", symbol, err)
	}
	score := clamp(resp.Score, -1, 1)
	s.cache.Set(symbol, score, s.ttl)
	return score, nil
}

var _ domsvc.SentimentScorer = (*HTTPSentiment)(nil)
