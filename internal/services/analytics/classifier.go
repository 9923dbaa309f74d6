package analytics

import (
	"context"
	"fmt"

	"MicroTrader/internal/domain/models"
	domsvc "MicroTrader/internal/domain/service"
)

type predictRequest struct {
	Symbols   []string `json:"symbols"`
	CrashMode bool     `json:"crash_mode"`
}

type predictResponse struct {
	Predictions []models.Prediction `json:"predictions"`
}

// HTTPClassifier asks the analytics service for per-symbol probabilities.
type HTTPClassifier struct {
	base *HTTPServiceBase
}

func NewHTTPClassifier(base *HTTPServiceBase) *HTTPClassifier {
	return &HTTPClassifier{base: base}
}

// GeneratePredictions drops rows for symbols outside universe and clamps
// probabilities to [0, 1].
func (c *HTTPClassifier) GeneratePredictions(ctx context.Context, universe []string, crashMode bool) ([]models.Prediction, error) {
	if len(universe) == 0 {
		return nil, nil
	}
	var resp predictResponse
	if err := c.base.PostJSONWithRetry(ctx, "/predict", predictRequest{Symbols: universe, CrashMode: crashMode}, &resp); err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	allowed := make(map[string]bool, len(universe))
	for _, s := range universe {
		allowed[models.NormalizeSymbol(s)] = true
	}
	out := make([]models.Prediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		p.Symbol = models.NormalizeSymbol(p.Symbol)
		if !allowed[p.Symbol] {
			continue
		}
		p.Probability = clamp(p.Probability, 0, 1)
		out = append(out, p)
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ domsvc.Classifier = (*HTTPClassifier)(nil)
