package repository

import (
	"context"
	"fmt"
	"time"

	"MicroTrader/internal/domain/models"
	domrepo "MicroTrader/internal/domain/repository"
	applogger "MicroTrader/pkg/logger"
)

// EventPublisher is the slice of the Kafka producer the trade logger needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// TradeLogger writes every audit event as a structured log line and, when a
// publisher is configured, to Kafka keyed by symbol.
type TradeLogger struct {
	l         *applogger.Logger
	publisher EventPublisher
	topic     string
	now       func() time.Time
}

func NewTradeLogger(l *applogger.Logger, publisher EventPublisher, topic string) *TradeLogger {
	if l == nil {
		l = applogger.Nop()
	}
	return &TradeLogger{l: l, publisher: publisher, topic: topic, now: time.Now}
}

func (t *TradeLogger) LogTrade(ctx context.Context, ev models.TradeEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.now()
	}
	ev.Timestamp = ev.Timestamp.UTC()

	fields := []applogger.Field{
		applogger.String("symbol", ev.Symbol),
		applogger.String("action", ev.Action),
		applogger.String("status", ev.Status),
		applogger.Time("ts", ev.Timestamp),
	}
	if ev.Reason != "" {
		fields = append(fields, applogger.String("reason", ev.Reason))
	}
	if ev.Qty != 0 {
		fields = append(fields, applogger.Float("qty", ev.Qty))
	}
	if ev.Price != 0 {
		fields = append(fields, applogger.Float("price", ev.Price))
	}
	if ev.OrderID != "" {
		fields = append(fields, applogger.String("order_id", ev.OrderID))
	}
	if ev.PnL != nil {
		fields = append(fields, applogger.Float("pnl", *ev.PnL))
	}
	if len(ev.Extra) > 0 {
		fields = append(fields, applogger.Any("extra", ev.Extra))
	}
	t.l.Info("trade_event", fields...)

	if t.publisher == nil || t.topic == "" {
		return nil
	}
	if err := t.publisher.Publish(ctx, t.topic, []byte(ev.Symbol), ev); err != nil {
		return fmt.Errorf("publish trade event: %w", err)
	}
	return nil
}

// LogPublisher adapts an EventPublisher to the log collector's Publisher.
type LogPublisher struct {
	publisher EventPublisher
}

func NewLogPublisher(p EventPublisher) *LogPublisher {
	return &LogPublisher{publisher: p}
}

func (p *LogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.publisher.Publish(ctx, topic, nil, payload)
}

var (
	_ domrepo.TradeLogger  = (*TradeLogger)(nil)
	_ applogger.Publisher = (*LogPublisher)(nil)
)
