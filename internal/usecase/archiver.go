package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MicroTrader/internal/domain/models"
	domrepo "MicroTrader/internal/domain/repository"
	pkgkafka "MicroTrader/pkg/kafka"
)

// TradeEventArchiver consumes audit events from Kafka and writes them to
// the trade event store.
type TradeEventArchiver struct {
	topic   string
	store   domrepo.TradeEventStore
	metrics domrepo.Metrics
	now     func() time.Time
}

func NewTradeEventArchiver(topic string, store domrepo.TradeEventStore, metrics domrepo.Metrics) *TradeEventArchiver {
	return &TradeEventArchiver{topic: topic, store: store, metrics: metrics, now: time.Now}
}

func (a *TradeEventArchiver) Topic() string { return a.topic }

// Handle decodes one TradeEvent. Undecodable payloads are returned as errors
// so the consumer routes them to its DLQ.
func (a *TradeEventArchiver) Handle(ctx context.Context, b []byte) error {
	var ev models.TradeEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		a.recordError("archiver_unmarshal")
		return fmt.Errorf("decode trade event: %w", err)
	}
	if ev.Symbol == "" && ev.Status == "" {
		a.recordError("archiver_empty")
		return fmt.Errorf("decode trade event: empty payload")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = a.now().UTC()
	}
	if a.metrics != nil {
		a.metrics.RecordLatency("audit_e2e", a.now().Sub(ev.Timestamp).Seconds())
	}

	start := a.now()
	err := a.store.Insert(ctx, []models.TradeEvent{ev})
	if a.metrics != nil {
		a.metrics.RecordLatency("archive_insert", a.now().Sub(start).Seconds())
	}
	if err != nil {
		a.recordError("archiver_store")
		return err
	}
	return nil
}

func (a *TradeEventArchiver) recordError(kind string) {
	if a.metrics != nil {
		a.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*TradeEventArchiver)(nil)
