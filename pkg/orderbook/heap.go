package orderbook

import (
	"container/heap"

	"github.com/shopspring/decimal"
)

type heapEntry struct {
	price decimal.Decimal
	seq   uint64
	id    string
	ref   ref
}

// sideIndex is a max-heap (bids) or min-heap (asks) over individual orders
// keyed by (price, sequence, id). Entries for cancelled or filled orders are
// left in place and discarded when they surface at the top.
type sideIndex struct {
	entries []heapEntry
	isBid   bool
}

func (h sideIndex) Len() int {
	return len(h.entries)
}

func (h sideIndex) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if c := a.price.Cmp(b.price); c != 0 {
		if h.isBid {
			return c > 0
		}
		return c < 0
	}
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.id < b.id
}

func (h sideIndex) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *sideIndex) Push(x any) {
	h.entries = append(h.entries, x.(heapEntry))
}

func (h *sideIndex) Pop() any {
	old := h.entries
	n := len(old)
	item := old[n-1]
	old[n-1] = heapEntry{}
	h.entries = old[:n-1]
	return item
}

func (h *sideIndex) Peek() (heapEntry, bool) {
	if h.Len() == 0 {
		return heapEntry{}, false
	}
	return h.entries[0], true
}

func (h *sideIndex) insert(e heapEntry) {
	heap.Push(h, e)
}

// top pops stale entries until the head is live or the heap is empty.
// Popped entries are gone for good.
func (h *sideIndex) top(live func(ref) bool) (heapEntry, bool) {
	for {
		e, ok := h.Peek()
		if !ok {
			return heapEntry{}, false
		}
		if live(e.ref) {
			return e, true
		}
		heap.Pop(h)
	}
}

var _ heap.Interface = (*sideIndex)(nil)
