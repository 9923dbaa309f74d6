package models

import "time"

// Account is the subset of broker account state the engine reads.
// Zero values mean the broker did not report the field.
type Account struct {
	Equity      float64 `json:"equity"`
	LastEquity  float64 `json:"last_equity"`
	BuyingPower float64 `json:"buying_power"`
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// BracketOrder is a market entry with attached take-profit and stop-loss legs.
type BracketOrder struct {
	ClientOrderID   string    `json:"client_order_id"`
	Symbol          string    `json:"symbol"`
	Qty             int       `json:"qty"`
	Side            OrderSide `json:"side"`
	TimeInForce     string    `json:"time_in_force"`
	TakeProfitPrice float64   `json:"take_profit"`
	StopLossPrice   float64   `json:"stop_loss"`
}

// OrderStatus mirrors broker order lifecycle states.
type OrderStatus string

const (
	OrderNew             OrderStatus = "new"
	OrderAccepted        OrderStatus = "accepted"
	OrderPendingNew      OrderStatus = "pending_new"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderRejected        OrderStatus = "rejected"
	OrderExpired         OrderStatus = "expired"
	OrderDoneForDay      OrderStatus = "done_for_day"
)

// IsFilled reports a complete fill.
func (s OrderStatus) IsFilled() bool { return s == OrderFilled }

// IsTerminalNonFill reports states that will never produce a fill.
func (s OrderStatus) IsTerminalNonFill() bool {
	switch s {
	case OrderCanceled, OrderRejected, OrderExpired, OrderDoneForDay:
		return true
	default:
		return false
	}
}

// Order is the normalised broker view of a submitted order.
type Order struct {
	ID             string      `json:"id"`
	ClientOrderID  string      `json:"client_order_id"`
	Symbol         string      `json:"symbol"`
	Status         OrderStatus `json:"status"`
	Qty            float64     `json:"qty"`
	FilledQty      float64     `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	FilledAt       *time.Time  `json:"filled_at,omitempty"`
	SubmittedAt    *time.Time  `json:"submitted_at,omitempty"`
}
