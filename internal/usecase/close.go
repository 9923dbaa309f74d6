package usecase

import (
	"context"
	"errors"
	"strings"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	"MicroTrader/pkg/logger"
)

// benignCloseMarkers are broker messages meaning the position is already flat.
var benignCloseMarkers = []string{
	"insufficient qty",
	"insufficient quantity",
	"no position",
	"position does not exist",
}

// IsBenignCloseError reports close failures that mean there was nothing to close.
func IsBenignCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, repository.ErrNoPosition) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range benignCloseMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Close flattens symbol. Halt never blocks it; a failed close that is not
// benign trips the halt so no new risk is added while the broker misbehaves.
func (e *Executor) Close(ctx context.Context, symbol, reason string) models.ExecutionResult {
	const action = models.ActionClose
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return e.skip(ctx, symbol, action, models.SkipMissingSymbol, "")
	}
	if e.broker == nil {
		return e.skip(ctx, symbol, action, models.SkipTradingClientUnavailable, "")
	}
	if e.cfg.DryRun {
		return e.skip(ctx, symbol, action, models.SkipDryRun, reason)
	}

	positions, err := e.broker.GetAllPositions(ctx)
	if err != nil {
		return e.trip(ctx, symbol, action, models.HaltListPositionsFailed, err)
	}
	var pos *models.Position
	for i := range positions {
		if models.NormalizeSymbol(positions[i].Symbol) == symbol {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return e.skip(ctx, symbol, action, models.SkipNoPosition, reason)
	}
	// A filled bracket entry has its take-profit and stop legs holding the
	// whole quantity, so the broker rejects a market close until a leg fires.
	// Entry state is kept so the exit is evaluated again next cycle.
	// TODO: cancel the open bracket legs for symbol and then close, so time
	// and signal exits can flatten a bracketed position.
	if pos.Qty <= 0 || pos.HeldForOrders >= pos.Qty {
		return e.skip(ctx, symbol, action, models.SkipPositionHeld, reason)
	}

	ev := models.TradeEvent{
		Symbol:     symbol,
		Action:     string(action),
		Reason:     reason,
		Qty:        pos.Qty,
		Price:      pos.CurrentPrice,
		EntryPrice: pos.EntryPrice,
	}
	if pos.EntryPrice > 0 && pos.CurrentPrice > 0 {
		pnl := (pos.CurrentPrice - pos.EntryPrice) * pos.Qty
		pct := pos.CurrentPrice/pos.EntryPrice - 1
		ev.PnL = &pnl
		ev.PnLPct = &pct
	}

	order, err := e.broker.ClosePosition(ctx, symbol)
	if err != nil {
		if IsBenignCloseError(err) {
			e.clearEntry(ctx, symbol)
			return e.skip(ctx, symbol, action, models.SkipPositionUnavailable, err.Error())
		}
		return e.trip(ctx, symbol, action, models.HaltCloseFailed, err)
	}

	e.clearEntry(ctx, symbol)
	ev.OrderID = order.ID
	ev.Status = models.StatusClosed
	e.record(ctx, ev)
	e.count(func(m repository.Metrics) { m.RecordOrder(string(action), models.StatusClosed) })

	fields := []logger.Field{logger.String("symbol", symbol), logger.String("reason", reason)}
	if ev.PnL != nil {
		fields = append(fields, logger.Float("pnl", *ev.PnL), logger.Float("pnl_pct", *ev.PnLPct))
	}
	e.log.Info("closed", fields...)

	return models.ExecutionResult{Symbol: symbol, Action: action, Submitted: true, OrderID: order.ID, Qty: int(pos.Qty)}
}

func (e *Executor) clearEntry(ctx context.Context, symbol string) {
	if e.store == nil {
		return
	}
	if err := e.store.ClearEntryTimestamp(ctx, symbol); err != nil {
		e.log.Warn("entry timestamp not cleared", logger.String("symbol", symbol), logger.Error(err))
	}
	if err := e.store.ClearEntryMetadata(ctx, symbol); err != nil {
		e.log.Warn("entry metadata not cleared", logger.String("symbol", symbol), logger.Error(err))
	}
}
