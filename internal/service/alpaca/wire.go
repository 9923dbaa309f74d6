package alpaca

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"MicroTrader/internal/domain/models"
)

// flexFloat accepts both JSON numbers and numeric strings; Alpaca sends
// money and quantity fields as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type accountWire struct {
	Equity      flexFloat `json:"equity"`
	LastEquity  flexFloat `json:"last_equity"`
	BuyingPower flexFloat `json:"buying_power"`
}

func (a accountWire) model() models.Account {
	return models.Account{
		Equity:      float64(a.Equity),
		LastEquity:  float64(a.LastEquity),
		BuyingPower: float64(a.BuyingPower),
	}
}

type positionWire struct {
	Symbol        string     `json:"symbol"`
	Qty           flexFloat  `json:"qty"`
	QtyAvailable  *flexFloat `json:"qty_available"`
	AvgEntryPrice flexFloat  `json:"avg_entry_price"`
	CurrentPrice  flexFloat  `json:"current_price"`
	UnrealizedPL  flexFloat  `json:"unrealized_pl"`
}

func (p positionWire) model() models.Position {
	pos := models.Position{
		Symbol:       models.NormalizeSymbol(p.Symbol),
		Qty:          float64(p.Qty),
		EntryPrice:   float64(p.AvgEntryPrice),
		CurrentPrice: float64(p.CurrentPrice),
		UnrealizedPL: float64(p.UnrealizedPL),
	}
	if p.QtyAvailable != nil {
		held := pos.Qty - float64(*p.QtyAvailable)
		if held > 0 {
			pos.HeldForOrders = held
		}
	}
	return pos
}

type orderWire struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Status         string     `json:"status"`
	Qty            flexFloat  `json:"qty"`
	FilledQty      flexFloat  `json:"filled_qty"`
	FilledAvgPrice flexFloat  `json:"filled_avg_price"`
	FilledAt       *time.Time `json:"filled_at"`
	SubmittedAt    *time.Time `json:"submitted_at"`
}

func (o orderWire) model() models.Order {
	return models.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         models.NormalizeSymbol(o.Symbol),
		Status:         models.OrderStatus(o.Status),
		Qty:            float64(o.Qty),
		FilledQty:      float64(o.FilledQty),
		FilledAvgPrice: float64(o.FilledAvgPrice),
		FilledAt:       o.FilledAt,
		SubmittedAt:    o.SubmittedAt,
	}
}

type legPrice struct {
	LimitPrice string `json:"limit_price,omitempty"`
	StopPrice  string `json:"stop_price,omitempty"`
}

type orderRequest struct {
	Symbol        string    `json:"symbol"`
	Qty           string    `json:"qty"`
	Side          string    `json:"side"`
	Type          string    `json:"type"`
	TimeInForce   string    `json:"time_in_force"`
	OrderClass    string    `json:"order_class"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
	TakeProfit    *legPrice `json:"take_profit,omitempty"`
	StopLoss      *legPrice `json:"stop_loss,omitempty"`
}

type barWire struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V float64   `json:"v"`
}

func (b barWire) model() models.Bar {
	return models.Bar{Time: b.T.UTC(), Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V}
}

type barsResponse struct {
	Bars          []barWire `json:"bars"`
	NextPageToken *string   `json:"next_page_token"`
}

type latestTradeResponse struct {
	Symbol string `json:"symbol"`
	Trade  *struct {
		T time.Time `json:"t"`
		P float64   `json:"p"`
	} `json:"trade"`
}
