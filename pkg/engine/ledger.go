package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"limit-orderbook/pkg/orderbook"
)

// Trade is one execution between an incoming order and a resting one. Price
// is always the resting order's price.
type Trade struct {
	ID          uint64          `json:"tradeId"`
	Symbol      string          `json:"symbol"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	BuyUserID   string          `json:"buyUserId"`
	SellUserID  string          `json:"sellUserId"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Aggressor   orderbook.Side  `json:"aggressor"`
	Timestamp   int64           `json:"timestamp"`
}

// Ledger is the append-only trade history of one instrument.
type Ledger struct {
	trades []Trade
}

func (l *Ledger) Append(t Trade) {
	if n := len(l.trades); n > 0 && t.ID <= l.trades[n-1].ID {
		panic(fmt.Sprintf("ledger: trade id %d not after %d", t.ID, l.trades[n-1].ID))
	}
	l.trades = append(l.trades, t)
}

// All returns a copy of every trade, oldest first.
func (l *Ledger) All() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Since returns a copy of the trades with an id greater than id.
func (l *Ledger) Since(id uint64) []Trade {
	i := sort.Search(len(l.trades), func(i int) bool {
		return l.trades[i].ID > id
	})
	out := make([]Trade, len(l.trades)-i)
	copy(out, l.trades[i:])
	return out
}

// LastPrice is the price of the most recent trade; ok is false before the
// first trade.
func (l *Ledger) LastPrice() (price decimal.Decimal, ok bool) {
	if len(l.trades) == 0 {
		return decimal.Decimal{}, false
	}
	return l.trades[len(l.trades)-1].Price, true
}
