package orderbook

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// PriceLevel aggregates every active order resting at one price. The queue
// holds refs in arrival order; refs of orders that left the book are skipped
// and trimmed lazily.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	count    int
	queue    []ref
	head     int
}

func (lvl *PriceLevel) OrderCount() int {
	return lvl.count
}

func (lvl *PriceLevel) enqueue(r ref) {
	lvl.queue = append(lvl.queue, r)
	lvl.count++
}

// leave is called once per member order that is deactivated.
func (lvl *PriceLevel) leave(a *arena) {
	lvl.count--
	for lvl.head < len(lvl.queue) && !a.live(lvl.queue[lvl.head]) {
		lvl.head++
	}
	if pending := len(lvl.queue) - lvl.head; pending > 2*lvl.count+8 {
		lvl.compact(a)
	}
}

func (lvl *PriceLevel) compact(a *arena) {
	kept := make([]ref, 0, lvl.count)
	for _, r := range lvl.queue[lvl.head:] {
		if a.live(r) {
			kept = append(kept, r)
		}
	}
	lvl.queue = kept
	lvl.head = 0
}

func (lvl *PriceLevel) each(a *arena, fn func(*Order) bool) bool {
	for _, r := range lvl.queue[lvl.head:] {
		if !a.live(r) {
			continue
		}
		if !fn(a.get(r)) {
			return false
		}
	}
	return true
}

// levels keeps one side's price levels ordered best-first together with the
// running totals needed for the weighted average price.
type levels struct {
	tree     *btree.BTreeG[*PriceLevel]
	notional decimal.Decimal
	volume   decimal.Decimal
}

func newLevels(isBid bool) *levels {
	less := func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	}
	if isBid {
		less = func(a, b *PriceLevel) bool {
			return a.Price.GreaterThan(b.Price)
		}
	}
	return &levels{
		tree: btree.NewBTreeGOptions(less, btree.Options{NoLocks: true}),
	}
}

func (l *levels) get(price decimal.Decimal) *PriceLevel {
	lvl, ok := l.tree.Get(&PriceLevel{Price: price})
	if !ok {
		return nil
	}
	return lvl
}

// apply adds delta to the level at price, creating it on demand. A level
// whose aggregate drops to zero or below is removed and nil is returned.
func (l *levels) apply(price, delta decimal.Decimal) *PriceLevel {
	lvl := l.get(price)
	if lvl == nil {
		lvl = &PriceLevel{Price: price}
		l.tree.Set(lvl)
	}

	lvl.Quantity = lvl.Quantity.Add(delta)
	l.volume = l.volume.Add(delta)
	l.notional = l.notional.Add(price.Mul(delta))

	if !lvl.Quantity.IsPositive() {
		l.volume = l.volume.Sub(lvl.Quantity)
		l.notional = l.notional.Sub(price.Mul(lvl.Quantity))
		l.tree.Delete(lvl)
		return nil
	}
	return lvl
}

func (l *levels) len() int {
	return l.tree.Len()
}

// top returns up to n levels best-first.
func (l *levels) top(n int) []Level {
	if n <= 0 {
		return []Level{}
	}
	out := make([]Level, 0, min(n, l.tree.Len()))
	l.tree.Scan(func(lvl *PriceLevel) bool {
		if lvl.Quantity.IsPositive() {
			out = append(out, Level{Price: lvl.Price, Quantity: lvl.Quantity, Orders: lvl.OrderCount()})
		}
		return len(out) < n
	})
	return out
}

func (l *levels) best() *PriceLevel {
	lvl, ok := l.tree.Min()
	if !ok {
		return nil
	}
	return lvl
}

func (l *levels) scan(fn func(*PriceLevel) bool) {
	l.tree.Scan(fn)
}

func (l *levels) weightedAverage() (decimal.Decimal, bool) {
	if !l.volume.IsPositive() {
		return decimal.Decimal{}, false
	}
	return l.notional.Div(l.volume), true
}
