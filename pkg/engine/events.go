package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"limit-orderbook/pkg/orderbook"
)

type EventType string

const (
	EventTrade  EventType = "trade"
	EventCancel EventType = "cancel"
)

type Cancellation struct {
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	Side      orderbook.Side  `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Remaining decimal.Decimal `json:"remaining"`
	Timestamp int64           `json:"timestamp"`
}

// Event is what the engine hands to its sink: exactly one of Trade or
// Cancel is set, matching Type.
type Event struct {
	Type   EventType     `json:"type"`
	Symbol string        `json:"symbol"`
	Trade  *Trade        `json:"trade,omitempty"`
	Cancel *Cancellation `json:"cancel,omitempty"`
}

// EventSink receives the events of each mutating call, in engine order.
// Emit runs inside the instrument's critical section and must not call back
// into the engine.
type EventSink interface {
	Emit(ctx context.Context, events []Event) error
}

type nopSink struct{}

func (nopSink) Emit(context.Context, []Event) error { return nil }
