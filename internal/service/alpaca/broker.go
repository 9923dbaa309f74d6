package alpaca

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
	xhttp "MicroTrader/pkg/http"
)

// Broker implements repository.Broker over the Alpaca trading API.
type Broker struct {
	c           *Client
	timeInForce string
}

func NewBroker(c *Client, timeInForce string) *Broker {
	if timeInForce == "" {
		timeInForce = "day"
	}
	return &Broker{c: c, timeInForce: timeInForce}
}

func (b *Broker) GetAccount(ctx context.Context) (models.Account, error) {
	var w accountWire
	if err := b.c.trading(ctx, xhttp.MethodGet, "/v2/account", nil, nil, &w); err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return w.model(), nil
}

func (b *Broker) GetAllPositions(ctx context.Context) ([]models.Position, error) {
	var ws []positionWire
	if err := b.c.trading(ctx, xhttp.MethodGet, "/v2/positions", nil, nil, &ws); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]models.Position, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.model())
	}
	return out, nil
}

// SubmitOrder places a market bracket order. A client order id is generated
// when the caller leaves it empty.
func (b *Broker) SubmitOrder(ctx context.Context, order models.BracketOrder) (models.Order, error) {
	if order.Qty <= 0 {
		return models.Order{}, fmt.Errorf("submit %s: qty must be positive", order.Symbol)
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}
	tif := order.TimeInForce
	if tif == "" {
		tif = b.timeInForce
	}
	side := order.Side
	if side == "" {
		side = models.SideBuy
	}
	req := orderRequest{
		Symbol:        models.NormalizeSymbol(order.Symbol),
		Qty:           strconv.Itoa(order.Qty),
		Side:          string(side),
		Type:          "market",
		TimeInForce:   tif,
		OrderClass:    "bracket",
		ClientOrderID: order.ClientOrderID,
		TakeProfit:    &legPrice{LimitPrice: formatPrice(order.TakeProfitPrice)},
		StopLoss:      &legPrice{StopPrice: formatPrice(order.StopLossPrice)},
	}
	var w orderWire
	if err := b.c.trading(ctx, xhttp.MethodPost, "/v2/orders", nil, req, &w); err != nil {
		return models.Order{}, fmt.Errorf("submit order %s: %w", req.Symbol, err)
	}
	return w.model(), nil
}

func (b *Broker) GetOrderByID(ctx context.Context, id string) (models.Order, error) {
	var w orderWire
	if err := b.c.trading(ctx, xhttp.MethodGet, "/v2/orders/"+url.PathEscape(id), nil, nil, &w); err != nil {
		return models.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return w.model(), nil
}

// ClosePosition liquidates symbol at market. Errors meaning there is nothing
// to close unwrap to repository.ErrNoPosition.
func (b *Broker) ClosePosition(ctx context.Context, symbol string) (models.Order, error) {
	symbol = models.NormalizeSymbol(symbol)
	var w orderWire
	if err := b.c.trading(ctx, xhttp.MethodDelete, "/v2/positions/"+url.PathEscape(symbol), nil, nil, &w); err != nil {
		return models.Order{}, fmt.Errorf("close position %s: %w", symbol, err)
	}
	return w.model(), nil
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

var _ repository.Broker = (*Broker)(nil)
