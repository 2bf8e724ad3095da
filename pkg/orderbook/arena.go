package orderbook

// arena owns every order the book knows about. Heap entries and level
// queues only hold refs into it; a ref whose generation no longer matches
// the slot is stale.
type arena struct {
	slots []slot
	free  []int32
	gen   uint64
}

type slot struct {
	order Order
	gen   uint64
}

func (a *arena) alloc(o Order) ref {
	a.gen++
	s := slot{order: o, gen: a.gen}

	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = s
		return ref{idx: idx, seq: a.gen}
	}

	a.slots = append(a.slots, s)
	return ref{idx: int32(len(a.slots) - 1), seq: a.gen}
}

// get returns the order behind r, or nil when r is stale.
func (a *arena) get(r ref) *Order {
	if r.idx < 0 || int(r.idx) >= len(a.slots) {
		return nil
	}
	s := &a.slots[r.idx]
	if s.gen != r.seq {
		return nil
	}
	return &s.order
}

// live reports whether r still points at an active order with quantity left.
func (a *arena) live(r ref) bool {
	o := a.get(r)
	return o != nil && o.Active && o.Quantity.IsPositive()
}

func (a *arena) release(r ref) {
	if a.get(r) == nil {
		return
	}
	a.slots[r.idx] = slot{}
	a.free = append(a.free, r.idx)
}
