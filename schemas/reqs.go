package schemas

import (
	"github.com/shopspring/decimal"

	"limit-orderbook/pkg/engine"
	"limit-orderbook/pkg/orderbook"
)

// SubmitOrderRequest accepts price and quantity as JSON numbers or strings.
// A zero timestamp is replaced with the server clock.
type SubmitOrderRequest struct {
	OrderID   string          `json:"orderId" validate:"omitempty,max=64"`
	UserID    string          `json:"userId" validate:"required,max=64"`
	Symbol    string          `json:"symbol" validate:"required,max=32"`
	Side      string          `json:"side" validate:"required,oneof=buy sell bid ask BUY SELL BID ASK"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp int64           `json:"timestamp" validate:"omitempty,gt=0"`
}

type SubmitOrderResponse struct {
	Accepted  bool             `json:"accepted"`
	OrderID   string           `json:"orderId,omitempty"`
	Status    string           `json:"status,omitempty"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
	Trades    []engine.Trade   `json:"trades"`
	Error     string           `json:"error,omitempty"`
}

type CancelOrderRequest struct {
	Symbol  string `json:"symbol" validate:"required"`
	OrderID string `json:"orderId" validate:"required"`
}

type CancelOrderResponse struct {
	Cancelled bool `json:"cancelled"`
}

type OrderResponse struct {
	Order orderbook.Order `json:"order"`
}

type OpenOrdersResponse struct {
	Symbol string            `json:"symbol"`
	User   string            `json:"user"`
	Orders []orderbook.Order `json:"orders"`
}

type BookResponse struct {
	Symbol  string            `json:"symbol"`
	Depth   int               `json:"depth"`
	BestBid *decimal.Decimal  `json:"bestBid"`
	BestAsk *decimal.Decimal  `json:"bestAsk"`
	Bids    []orderbook.Level `json:"bids"`
	Asks    []orderbook.Level `json:"asks"`
}

type TradesResponse struct {
	Symbol string         `json:"symbol"`
	Trades []engine.Trade `json:"trades"`
}

// Fill is one trade seen from a single user's side.
type Fill struct {
	TradeID      uint64          `json:"tradeId"`
	OrderID      string          `json:"orderId"`
	Counterparty string          `json:"counterparty"`
	Side         orderbook.Side  `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	IsMaker      bool            `json:"isMaker"`
	Timestamp    int64           `json:"timestamp"`
}

type FillsResponse struct {
	Symbol string `json:"symbol"`
	User   string `json:"user"`
	Fills  []Fill `json:"fills"`
}

// PriceResponse carries a null price when there is nothing to report.
type PriceResponse struct {
	Symbol string           `json:"symbol"`
	Side   string           `json:"side,omitempty"`
	Price  *decimal.Decimal `json:"price"`
}

type SymbolsResponse struct {
	Symbols []string `json:"symbols"`
}
