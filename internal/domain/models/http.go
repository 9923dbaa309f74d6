package models

// Requests for the ops HTTP endpoints.

type TradeHistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,max=12"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type HaltStatus struct {
	Halted      bool   `json:"halted"`
	Code        string `json:"code,omitempty"`
	Reason      string `json:"reason,omitempty"`
	HaltedUntil string `json:"halted_until,omitempty"`
}
