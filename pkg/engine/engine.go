package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"limit-orderbook/pkg/obs"
	"limit-orderbook/pkg/orderbook"
)

type Status string

const (
	StatusResting         Status = "resting"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
)

// Execution is the outcome of one accepted order. Order carries the
// remaining quantity after matching.
type Execution struct {
	Order  orderbook.Order
	Trades []Trade
	Status Status
}

// BookView is a depth snapshot. BestBid and BestAsk are nil for an empty
// side and do not depend on depth.
type BookView struct {
	Symbol  string            `json:"symbol"`
	BestBid *decimal.Decimal  `json:"bestBid"`
	BestAsk *decimal.Decimal  `json:"bestAsk"`
	Bids    []orderbook.Level `json:"bids"`
	Asks    []orderbook.Level `json:"asks"`
}

// Engine matches orders for a single instrument. Submit and Cancel hold the
// write lock for their whole duration; queries take the read lock.
type Engine struct {
	mu       sync.RWMutex
	symbol   string
	book     *orderbook.OrderBook
	ledger   Ledger
	seq      uint64
	tradeSeq uint64
	closed   bool

	sink EventSink
	obs  *obs.Client
	now  func() time.Time
}

type Option func(*Engine)

func WithSink(sink EventSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

func WithObs(client *obs.Client) Option {
	return func(e *Engine) {
		e.obs = client
	}
}

// WithClock replaces time.Now for trade and cancel timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(symbol string, opts ...Option) *Engine {
	e := &Engine{
		symbol: symbol,
		book:   orderbook.New(symbol),
		sink:   nopSink{},
		obs:    &obs.Client{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Symbol() string {
	return e.symbol
}

// Submit validates o, matches it against the opposite side and rests any
// remainder. A rejected order leaves the engine untouched and returns an
// error matching ErrInvalidOrder.
func (e *Engine) Submit(ctx context.Context, o orderbook.Order) (Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Execution{}, ErrEngineClosed
	}

	started := time.Now()
	if err := e.validate(&o); err != nil {
		ordersSubmitted.WithLabelValues(e.symbol, "rejected").Inc()
		e.obs.LogInfo(ctx, "engine.submit.rejected symbol=%s order_id=%s err=%v", e.symbol, o.ID, err)
		return Execution{}, err
	}

	e.seq++
	o.Sequence = e.seq
	o.Active = true

	original := o.Quantity
	trades := e.match(ctx, &o)

	exec := Execution{Trades: trades}
	switch {
	case o.Quantity.IsPositive():
		rested, err := e.book.AddOrder(o)
		if err != nil {
			// validate already ruled out both failure modes of AddOrder
			panic("engine: resting validated order: " + err.Error())
		}
		exec.Order = rested
		exec.Status = StatusResting
		if len(trades) > 0 {
			exec.Status = StatusPartiallyFilled
		}
		e.obs.LogDebug(ctx, "engine.submit.rested symbol=%s order_id=%s side=%s price=%s remaining=%s", e.symbol, o.ID, o.Side, o.Price, o.Quantity)
	default:
		o.Active = false
		exec.Order = o
		exec.Status = StatusFilled
	}

	filled := decimal.Zero
	for _, t := range trades {
		filled = filled.Add(t.Quantity)
	}
	if !filled.Add(o.Quantity).Equal(original) {
		panic("engine: quantity not conserved for order " + o.ID)
	}

	if len(trades) > 0 {
		events := make([]Event, 0, len(trades))
		for i := range trades {
			events = append(events, Event{Type: EventTrade, Symbol: e.symbol, Trade: &trades[i]})
		}
		e.emit(ctx, events)
	}

	ordersSubmitted.WithLabelValues(e.symbol, string(exec.Status)).Inc()
	matchDuration.WithLabelValues(e.symbol).Observe(time.Since(started).Seconds())
	e.updateRestingGauge()

	return exec, nil
}

func (e *Engine) match(ctx context.Context, o *orderbook.Order) []Trade {
	var trades []Trade
	opposite := o.Side.Opposite()

	for o.Quantity.IsPositive() {
		resting, ok := e.book.Best(opposite)
		if !ok || !crosses(o, resting) {
			break
		}

		qty := decimal.Min(o.Quantity, resting.Quantity)
		o.Quantity = o.Quantity.Sub(qty)
		remaining := e.book.Fill(resting.ID, qty)

		trade := e.newTrade(o, resting, qty)
		e.ledger.Append(trade)
		trades = append(trades, trade)
		tradesExecuted.WithLabelValues(e.symbol).Inc()

		e.obs.LogDebug(
			ctx,
			"orderbook.match symbol=%s trade_id=%d taker=%s maker=%s side=%s price=%s qty=%s remaining_incoming=%s remaining_resting=%s",
			e.symbol,
			trade.ID,
			o.ID,
			resting.ID,
			o.Side,
			trade.Price,
			qty,
			o.Quantity,
			remaining,
		)
	}

	return trades
}

func crosses(incoming *orderbook.Order, resting orderbook.Order) bool {
	if incoming.Side == orderbook.Buy {
		return resting.Price.LessThanOrEqual(incoming.Price)
	}
	return resting.Price.GreaterThanOrEqual(incoming.Price)
}

func (e *Engine) newTrade(incoming *orderbook.Order, resting orderbook.Order, qty decimal.Decimal) Trade {
	e.tradeSeq++
	t := Trade{
		ID:        e.tradeSeq,
		Symbol:    e.symbol,
		Price:     resting.Price,
		Quantity:  qty,
		Aggressor: incoming.Side,
		Timestamp: e.now().UnixNano(),
	}
	if incoming.Side == orderbook.Buy {
		t.BuyOrderID, t.BuyUserID = incoming.ID, incoming.UserID
		t.SellOrderID, t.SellUserID = resting.ID, resting.UserID
	} else {
		t.BuyOrderID, t.BuyUserID = resting.ID, resting.UserID
		t.SellOrderID, t.SellUserID = incoming.ID, incoming.UserID
	}
	return t
}

func (e *Engine) validate(o *orderbook.Order) error {
	o.ID = strings.TrimSpace(o.ID)
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if strings.TrimSpace(o.UserID) == "" {
		return invalid("user_id", "is required")
	}
	if o.Symbol == "" {
		return invalid("symbol", "is required")
	}
	if !strings.EqualFold(strings.TrimSpace(o.Symbol), e.symbol) {
		return invalid("symbol", "does not match instrument "+e.symbol)
	}
	o.Symbol = e.symbol
	if !o.Side.Valid() {
		return invalid("side", "must be buy or sell")
	}
	if !o.Price.IsPositive() {
		return invalid("price", "must be positive")
	}
	if !o.Quantity.IsPositive() {
		return invalid("quantity", "must be positive")
	}
	if o.Timestamp <= 0 {
		return invalid("timestamp", "must be positive")
	}
	if _, resting := e.book.Order(o.ID); resting {
		return invalid("order_id", "is already resting")
	}
	return nil
}

// Cancel removes a resting order. It returns false for unknown, filled or
// already cancelled ids, and after Close.
func (e *Engine) Cancel(ctx context.Context, orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}

	removed, ok := e.book.Cancel(orderID)
	if !ok {
		ordersCancelled.WithLabelValues(e.symbol, "not_found").Inc()
		e.obs.LogDebug(ctx, "engine.cancel.miss symbol=%s order_id=%s", e.symbol, orderID)
		return false
	}

	ordersCancelled.WithLabelValues(e.symbol, "cancelled").Inc()
	e.updateRestingGauge()
	e.obs.LogInfo(ctx, "engine.cancel.done symbol=%s order_id=%s size_cancelled=%s", e.symbol, orderID, removed.Quantity)

	e.emit(ctx, []Event{{
		Type:   EventCancel,
		Symbol: e.symbol,
		Cancel: &Cancellation{
			OrderID:   removed.ID,
			UserID:    removed.UserID,
			Side:      removed.Side,
			Price:     removed.Price,
			Remaining: removed.Quantity,
			Timestamp: e.now().UnixNano(),
		},
	}})
	return true
}

func (e *Engine) emit(ctx context.Context, events []Event) {
	if err := e.sink.Emit(ctx, events); err != nil {
		sinkErrors.WithLabelValues(e.symbol).Inc()
		e.obs.LogAlert(ctx, "engine.emit failed symbol=%s events=%d err=%v", e.symbol, len(events), err)
	}
}

func (e *Engine) updateRestingGauge() {
	restingOrders.WithLabelValues(e.symbol, orderbook.Buy.String()).Set(float64(e.book.Len(orderbook.Buy)))
	restingOrders.WithLabelValues(e.symbol, orderbook.Sell.String()).Set(float64(e.book.Len(orderbook.Sell)))
}

// Close stops accepting writes. Queries keep working.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
}

func (e *Engine) Closed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.closed
}

// Book returns up to depth aggregated levels per side, best first.
func (e *Engine) Book(depth int) BookView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	view := BookView{
		Symbol: e.symbol,
		Bids:   e.book.Depth(orderbook.Buy, depth),
		Asks:   e.book.Depth(orderbook.Sell, depth),
	}
	bid, bidOK, ask, askOK := e.book.Spread()
	if bidOK {
		view.BestBid = &bid
	}
	if askOK {
		view.BestAsk = &ask
	}
	return view
}

func (e *Engine) Trades() []Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.ledger.All()
}

func (e *Engine) TradesSince(tradeID uint64) []Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.ledger.Since(tradeID)
}

func (e *Engine) LastTradedPrice() (decimal.Decimal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.ledger.LastPrice()
}

func (e *Engine) WeightedAveragePrice(side orderbook.Side) (decimal.Decimal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.book.WeightedAveragePrice(side)
}

func (e *Engine) Order(orderID string) (orderbook.Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.book.Order(orderID)
}

// OpenOrders lists the resting orders of user, bids then asks, each side in
// price-time priority.
func (e *Engine) OpenOrders(user string) []orderbook.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()

	orders := make([]orderbook.Order, 0)
	if user == "" {
		return orders
	}
	collect := func(o orderbook.Order) bool {
		if o.UserID == user {
			orders = append(orders, o)
		}
		return true
	}
	e.book.Orders(orderbook.Buy, collect)
	e.book.Orders(orderbook.Sell, collect)
	return orders
}
