package usecase

import (
	"context"
	"math"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	"MicroTrader/pkg/logger"
)

// ReconcileReport counts what one sweep did.
type ReconcileReport struct {
	Filled  int `json:"filled"`
	Expired int `json:"expired"`
	Dropped int `json:"dropped"`
	Waiting int `json:"waiting"`
}

// Reconcile polls every pending entry once. Fills record the entry
// timestamp and metadata, terminal non-fills and expired entries are
// dropped, and lookup failures leave the entry for the next sweep.
func (e *Executor) Reconcile(ctx context.Context) ReconcileReport {
	var rep ReconcileReport
	if e.pending == nil {
		return rep
	}
	now := e.now()
	for _, p := range e.pending.List() {
		if p.Expired(now, e.cfg.PendingTTL) {
			e.dropPending(ctx, p, models.StatusExpired, "ttl elapsed")
			rep.Expired++
			continue
		}
		if e.broker == nil {
			rep.Waiting++
			continue
		}

		order, err := e.broker.GetOrderByID(ctx, p.OrderID)
		if err != nil {
			e.log.Warn("pending order lookup failed",
				logger.String("symbol", p.Symbol),
				logger.String("order_id", p.OrderID),
				logger.Error(err))
			rep.Waiting++
			continue
		}

		switch {
		case order.Status.IsFilled():
			e.fillPending(ctx, p, order)
			rep.Filled++
		case order.Status.IsTerminalNonFill():
			e.dropPending(ctx, p, models.StatusDropped, string(order.Status))
			rep.Dropped++
		default:
			rep.Waiting++
		}
	}
	return rep
}

func (e *Executor) fillPending(ctx context.Context, p models.PendingEntry, order models.Order) {
	filledAt := e.now()
	if order.FilledAt != nil {
		filledAt = *order.FilledAt
	}
	meta := p.Metadata
	if meta.ExpectedPrice == 0 {
		meta.ExpectedPrice = p.ExpectedPrice
	}
	e.recordEntry(ctx, p.Symbol, filledAt, meta)
	if err := e.pending.Remove(ctx, p.OrderID); err != nil {
		e.log.Warn("pending entry not removed", logger.String("order_id", p.OrderID), logger.Error(err))
	}

	ev := models.TradeEvent{
		Symbol:     p.Symbol,
		Action:     string(models.ActionBuy),
		Status:     models.StatusFilled,
		Qty:        order.FilledQty,
		Price:      order.FilledAvgPrice,
		EntryPrice: p.ExpectedPrice,
		OrderID:    p.OrderID,
	}
	if p.ExpectedPrice > 0 && order.FilledAvgPrice > 0 {
		slip := (order.FilledAvgPrice - p.ExpectedPrice) / p.ExpectedPrice
		ev.Extra = map[string]any{"slippage_pct": slip}
		if math.Abs(slip) > e.cfg.SlippageWarnPct {
			e.log.Warn("fill slippage above threshold",
				logger.String("symbol", p.Symbol),
				logger.Float("expected", p.ExpectedPrice),
				logger.Float("filled", order.FilledAvgPrice),
				logger.Float("slippage_pct", slip))
		}
	}
	e.record(ctx, ev)
	e.count(func(m repository.Metrics) { m.RecordOrder(string(models.ActionBuy), models.StatusFilled) })
}

func (e *Executor) dropPending(ctx context.Context, p models.PendingEntry, status, reason string) {
	if err := e.pending.Remove(ctx, p.OrderID); err != nil {
		e.log.Warn("pending entry not removed", logger.String("order_id", p.OrderID), logger.Error(err))
	}
	e.record(ctx, models.TradeEvent{
		Symbol:  p.Symbol,
		Action:  string(models.ActionBuy),
		Status:  status,
		Reason:  reason,
		OrderID: p.OrderID,
	})
	e.log.Info("pending entry removed",
		logger.String("symbol", p.Symbol),
		logger.String("order_id", p.OrderID),
		logger.String("status", status))
}
