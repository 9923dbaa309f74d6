package service

import (
	"context"

	"MicroTrader/internal/domain/models"
)

// Classifier scores the probability of a favourable intraday move per symbol.
type Classifier interface {
	GeneratePredictions(ctx context.Context, universe []string, crashMode bool) ([]models.Prediction, error)
}

// SentimentScorer returns a news sentiment in [-1, 1].
type SentimentScorer interface {
	SymbolSentiment(ctx context.Context, symbol string) (float64, error)
}
