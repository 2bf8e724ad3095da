package orderbook

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveQuantity = errors.New("order quantity must be positive")
	ErrDuplicateOrder      = errors.New("order id already resting")
)

type bookSide struct {
	index  sideIndex
	levels *levels
	active int
}

// OrderBook holds the resting orders of a single instrument. It is not safe
// for concurrent use; the owning engine serialises access.
type OrderBook struct {
	symbol string
	orders arena
	byID   map[string]ref
	bids   *bookSide
	asks   *bookSide
	seq    uint64
}

func New(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		byID:   map[string]ref{},
		bids:   &bookSide{index: sideIndex{isBid: true}, levels: newLevels(true)},
		asks:   &bookSide{index: sideIndex{isBid: false}, levels: newLevels(false)},
	}
}

func (b *OrderBook) Symbol() string {
	return b.symbol
}

func (b *OrderBook) side(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// AddOrder rests o on its side. A zero Sequence is assigned from the book's
// own counter so that direct callers still get arrival-order priority.
func (b *OrderBook) AddOrder(o Order) (Order, error) {
	if !o.Side.Valid() {
		return Order{}, fmt.Errorf("add order %s: invalid side %d", o.ID, o.Side)
	}
	if !o.Quantity.IsPositive() {
		return Order{}, fmt.Errorf("add order %s: %w", o.ID, ErrNonPositiveQuantity)
	}
	if r, ok := b.byID[o.ID]; ok && b.orders.live(r) {
		return Order{}, fmt.Errorf("add order %s: %w", o.ID, ErrDuplicateOrder)
	}

	if o.Sequence == 0 {
		o.Sequence = b.seq + 1
	}
	if o.Sequence > b.seq {
		b.seq = o.Sequence
	}
	o.Active = true

	r := b.orders.alloc(o)
	b.byID[o.ID] = r

	side := b.side(o.Side)
	// reap what is already stale at the top before growing the heap
	side.index.top(b.orders.live)
	side.index.insert(heapEntry{price: o.Price, seq: o.Sequence, id: o.ID, ref: r})
	side.levels.apply(o.Price, o.Quantity).enqueue(r)
	side.active++

	return o, nil
}

// Best returns the highest-priority live order on s without removing it.
// Stale heap entries met on the way are dropped permanently.
func (b *OrderBook) Best(s Side) (Order, bool) {
	side := b.side(s)
	e, ok := side.index.top(b.orders.live)
	if !ok {
		return Order{}, false
	}
	return *b.orders.get(e.ref), true
}

// Fill takes qty off the resting order id and returns what is left. An order
// filled down to zero leaves the book immediately. Filling more than the
// remaining quantity, or an order that is not resting, panics.
func (b *OrderBook) Fill(id string, qty decimal.Decimal) decimal.Decimal {
	r, ok := b.byID[id]
	if !ok || !b.orders.live(r) {
		panic(fmt.Sprintf("orderbook: fill of order %s that is not resting", id))
	}
	if !qty.IsPositive() {
		panic(fmt.Sprintf("orderbook: non-positive fill %s for order %s", qty, id))
	}

	o := b.orders.get(r)
	if qty.GreaterThan(o.Quantity) {
		panic(fmt.Sprintf("orderbook: fill %s exceeds remaining %s for order %s", qty, o.Quantity, id))
	}

	o.Quantity = o.Quantity.Sub(qty)
	side := b.side(o.Side)
	lvl := side.levels.apply(o.Price, qty.Neg())

	if o.Quantity.IsZero() {
		b.retire(r, side, lvl)
		return decimal.Zero
	}
	return o.Quantity
}

// RemoveOrder soft-deletes a resting order. It reports whether anything was
// removed, so a repeated call for the same id returns false.
func (b *OrderBook) RemoveOrder(id string) bool {
	_, ok := b.Cancel(id)
	return ok
}

// Cancel is RemoveOrder returning the order as it was at removal time.
func (b *OrderBook) Cancel(id string) (Order, bool) {
	r, ok := b.byID[id]
	if !ok || !b.orders.live(r) {
		return Order{}, false
	}

	o := b.orders.get(r)
	removed := *o
	removed.Active = false

	side := b.side(o.Side)
	lvl := side.levels.apply(o.Price, o.Quantity.Neg())
	b.retire(r, side, lvl)

	return removed, true
}

// retire deactivates the order behind r. Its heap entry stays where it is
// until Best reaches it.
func (b *OrderBook) retire(r ref, side *bookSide, lvl *PriceLevel) {
	o := b.orders.get(r)
	o.Active = false
	delete(b.byID, o.ID)
	b.orders.release(r)

	side.active--
	if lvl != nil {
		lvl.leave(&b.orders)
	}
}

func (b *OrderBook) Order(id string) (Order, bool) {
	r, ok := b.byID[id]
	if !ok || !b.orders.live(r) {
		return Order{}, false
	}
	return *b.orders.get(r), true
}

// Depth returns up to n levels of s, best first. It never touches the heap.
func (b *OrderBook) Depth(s Side, n int) []Level {
	return b.side(s).levels.top(n)
}

// WeightedAveragePrice is sum(price*qty)/sum(qty) over the active orders of
// s. ok is false when the side is empty.
func (b *OrderBook) WeightedAveragePrice(s Side) (decimal.Decimal, bool) {
	return b.side(s).levels.weightedAverage()
}

// Len is the number of active orders on s.
func (b *OrderBook) Len(s Side) int {
	return b.side(s).active
}

// Orders walks the active orders of s in price-time priority.
func (b *OrderBook) Orders(s Side, fn func(Order) bool) {
	b.side(s).levels.scan(func(lvl *PriceLevel) bool {
		return lvl.each(&b.orders, func(o *Order) bool {
			return fn(*o)
		})
	})
}

// Spread returns the best bid and ask prices; each ok is false for an empty side.
func (b *OrderBook) Spread() (bid decimal.Decimal, bidOK bool, ask decimal.Decimal, askOK bool) {
	if lvl := b.bids.levels.best(); lvl != nil {
		bid, bidOK = lvl.Price, true
	}
	if lvl := b.asks.levels.best(); lvl != nil {
		ask, askOK = lvl.Price, true
	}
	return bid, bidOK, ask, askOK
}
