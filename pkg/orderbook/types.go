package orderbook

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts buy/sell and the bid/ask aliases, case-insensitively.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "bid":
		return Buy, nil
	case "sell", "ask":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	parsed, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Order is a resting or incoming limit order. Quantity is the remaining
// quantity and only ever decreases once the order is accepted.
type Order struct {
	ID        string          `json:"orderId"`
	UserID    string          `json:"userId"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp int64           `json:"timestamp"`
	Sequence  uint64          `json:"sequence"`
	Active    bool            `json:"active"`
}

// Level is one aggregated price level as returned by depth queries.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// ref points at an arena slot. seq guards against the slot having been
// recycled for a newer order.
type ref struct {
	idx int32
	seq uint64
}
