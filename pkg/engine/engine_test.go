package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limit-orderbook/pkg/orderbook"
)

const symbol = "BTC-USD"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func order(id string, side orderbook.Side, price, qty string) orderbook.Order {
	return orderbook.Order{
		ID:        id,
		UserID:    "user-" + id,
		Symbol:    symbol,
		Side:      side,
		Price:     d(price),
		Quantity:  d(qty),
		Timestamp: 1,
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Emit(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

func newTestEngine(opts ...Option) *Engine {
	clock := time.Unix(1700000000, 0)
	opts = append([]Option{WithClock(func() time.Time { return clock })}, opts...)
	return New(symbol, opts...)
}

func submit(t *testing.T, e *Engine, o orderbook.Order) Execution {
	t.Helper()
	exec, err := e.Submit(context.Background(), o)
	require.NoError(t, err)
	return exec
}

func TestRestingSellPartiallyFilledByBuy(t *testing.T) {
	e := newTestEngine()

	exec := submit(t, e, order("S1", orderbook.Sell, "10.0", "100"))
	assert.Equal(t, StatusResting, exec.Status)
	assert.Empty(t, exec.Trades)

	exec = submit(t, e, order("B1", orderbook.Buy, "10.0", "60"))
	assert.Equal(t, StatusFilled, exec.Status)
	require.Len(t, exec.Trades, 1)

	trade := exec.Trades[0]
	assert.Equal(t, "S1", trade.SellOrderID)
	assert.Equal(t, "B1", trade.BuyOrderID)
	assert.Equal(t, "10", trade.Price.String())
	assert.Equal(t, "60", trade.Quantity.String())
	assert.Equal(t, orderbook.Buy, trade.Aggressor)

	s1, ok := e.Order("S1")
	require.True(t, ok)
	assert.Equal(t, "40", s1.Quantity.String())

	_, ok = e.Order("B1")
	assert.False(t, ok)

	last, ok := e.LastTradedPrice()
	require.True(t, ok)
	assert.Equal(t, "10", last.String())
}

func TestSamePriceOrdersMatchInArrivalOrder(t *testing.T) {
	e := newTestEngine()
	first := order("bid-5", orderbook.Buy, "99.5", "5")
	first.Timestamp = 10
	second := order("bid-7", orderbook.Buy, "99.5", "7")
	second.Timestamp = 11
	submit(t, e, first)
	submit(t, e, second)

	exec := submit(t, e, order("sell-6", orderbook.Sell, "99.5", "6"))
	require.Len(t, exec.Trades, 2)
	assert.Equal(t, "bid-5", exec.Trades[0].BuyOrderID)
	assert.Equal(t, "5", exec.Trades[0].Quantity.String())
	assert.Equal(t, "bid-7", exec.Trades[1].BuyOrderID)
	assert.Equal(t, "1", exec.Trades[1].Quantity.String())

	_, ok := e.Order("bid-5")
	assert.False(t, ok)
	rest, ok := e.Order("bid-7")
	require.True(t, ok)
	assert.Equal(t, "6", rest.Quantity.String())

	book := e.Book(10)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "6", book.Bids[0].Quantity.String())
}

func TestTradeExecutesAtRestingPrice(t *testing.T) {
	e := newTestEngine()
	submit(t, e, order("ask-100", orderbook.Sell, "100", "1"))
	submit(t, e, order("ask-101", orderbook.Sell, "101", "1"))

	exec := submit(t, e, order("buy", orderbook.Buy, "105", "3"))
	require.Len(t, exec.Trades, 2)
	assert.Equal(t, "100", exec.Trades[0].Price.String())
	assert.Equal(t, "101", exec.Trades[1].Price.String())
	assert.Equal(t, StatusPartiallyFilled, exec.Status)
	assert.Equal(t, "1", exec.Order.Quantity.String())

	// the remainder rests at its own limit
	book := e.Book(5)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "105", book.Bids[0].Price.String())
	assert.Empty(t, book.Asks)
}

func TestNonCrossingOrdersRest(t *testing.T) {
	e := newTestEngine()
	submit(t, e, order("bid", orderbook.Buy, "99", "1"))
	exec := submit(t, e, order("ask", orderbook.Sell, "100", "1"))

	assert.Equal(t, StatusResting, exec.Status)
	assert.Empty(t, e.Trades())

	_, ok := e.LastTradedPrice()
	assert.False(t, ok)
}

func TestSellSweepsBidsBestFirst(t *testing.T) {
	e := newTestEngine()
	submit(t, e, order("b98", orderbook.Buy, "98", "1"))
	submit(t, e, order("b100", orderbook.Buy, "100", "1"))
	submit(t, e, order("b99", orderbook.Buy, "99", "1"))

	exec := submit(t, e, order("s", orderbook.Sell, "99", "5"))
	require.Len(t, exec.Trades, 2)
	assert.Equal(t, "b100", exec.Trades[0].BuyOrderID)
	assert.Equal(t, "b99", exec.Trades[1].BuyOrderID)

	book := e.Book(5)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "99", book.Asks[0].Price.String())
	assert.Equal(t, "3", book.Asks[0].Quantity.String())
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "98", book.Bids[0].Price.String())
}

func TestSubmitRejectsInvalidOrders(t *testing.T) {
	cases := map[string]func(o *orderbook.Order){
		"missing user":    func(o *orderbook.Order) { o.UserID = "" },
		"missing symbol":  func(o *orderbook.Order) { o.Symbol = "" },
		"other symbol":    func(o *orderbook.Order) { o.Symbol = "ETH-USD" },
		"bad side":        func(o *orderbook.Order) { o.Side = 0 },
		"zero price":      func(o *orderbook.Order) { o.Price = decimal.Zero },
		"negative price":  func(o *orderbook.Order) { o.Price = d("-1") },
		"zero quantity":   func(o *orderbook.Order) { o.Quantity = decimal.Zero },
		"negative qty":    func(o *orderbook.Order) { o.Quantity = d("-3") },
		"zero timestamp":  func(o *orderbook.Order) { o.Timestamp = 0 },
		"negative stamp":  func(o *orderbook.Order) { o.Timestamp = -5 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine()
			submit(t, e, order("resting", orderbook.Sell, "10", "1"))

			o := order("incoming", orderbook.Buy, "10", "1")
			mutate(&o)
			_, err := e.Submit(context.Background(), o)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidOrder)

			var invalidErr *InvalidOrderError
			assert.True(t, errors.As(err, &invalidErr))

			// nothing was matched or mutated
			assert.Empty(t, e.Trades())
			resting, ok := e.Order("resting")
			require.True(t, ok)
			assert.Equal(t, "1", resting.Quantity.String())
		})
	}
}

func TestSubmitRejectsDuplicateRestingID(t *testing.T) {
	e := newTestEngine()
	submit(t, e, order("dup", orderbook.Buy, "10", "1"))

	_, err := e.Submit(context.Background(), order("dup", orderbook.Buy, "11", "1"))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Len(t, e.Book(10).Bids, 1)
}

func TestSubmitAssignsMissingOrderID(t *testing.T) {
	e := newTestEngine()
	exec := submit(t, e, order("", orderbook.Buy, "10", "1"))
	assert.NotEmpty(t, exec.Order.ID)

	_, ok := e.Order(exec.Order.ID)
	assert.True(t, ok)
}

func TestSymbolIsMatchedCaseInsensitively(t *testing.T) {
	e := newTestEngine()
	o := order("o1", orderbook.Buy, "10", "1")
	o.Symbol = "btc-usd"

	exec := submit(t, e, o)
	assert.Equal(t, symbol, exec.Order.Symbol)
}

func TestCancelIsIdempotent(t *testing.T) {
	e := newTestEngine()
	submit(t, e, order("o1", orderbook.Buy, "10", "5"))

	ctx := context.Background()
	assert.True(t, e.Cancel(ctx, "o1"))
	assert.False(t, e.Cancel(ctx, "o1"))
	assert.False(t, e.Cancel(ctx, "o1"))
	assert.False(t, e.Cancel(ctx, "unknown"))
	assert.Empty(t, e.Book(10).Bids)
}

func TestCancelAfterFullFillReturnsFalse(t *testing.T) {
	e := newTestEngine()
	submit(t, e, order("maker", orderbook.Sell, "10", "2"))
	submit(t, e, order("taker", orderbook.Buy, "10", "2"))

	assert.False(t, e.Cancel(context.Background(), "maker"))
	assert.False(t, e.Cancel(context.Background(), "taker"))
}

func TestCancelledOrderIsSkippedByMatching(t *testing.T) {
	e := newTestEngine()
	submit(t, e, order("cancelled", orderbook.Sell, "10", "5"))
	submit(t, e, order("live", orderbook.Sell, "11", "5"))
	require.True(t, e.Cancel(context.Background(), "cancelled"))

	exec := submit(t, e, order("buy", orderbook.Buy, "11", "2"))
	require.Len(t, exec.Trades, 1)
	assert.Equal(t, "live", exec.Trades[0].SellOrderID)
	assert.Equal(t, "11", exec.Trades[0].Price.String())
}

func TestBookDepthCap(t *testing.T) {
	e := newTestEngine()
	for i := 0; i < 8; i++ {
		submit(t, e, order(fmt.Sprintf("b%d", i), orderbook.Buy, fmt.Sprintf("%d", 90+i), "1"))
		submit(t, e, order(fmt.Sprintf("a%d", i), orderbook.Sell, fmt.Sprintf("%d", 110+i), "1"))
	}

	book := e.Book(3)
	assert.Len(t, book.Bids, 3)
	assert.Len(t, book.Asks, 3)
	assert.Equal(t, "97", book.Bids[0].Price.String())
	assert.Equal(t, "110", book.Asks[0].Price.String())

	empty := e.Book(0)
	assert.Empty(t, empty.Bids)
	assert.Empty(t, empty.Asks)
	require.NotNil(t, empty.BestBid)
	require.NotNil(t, empty.BestAsk)
	assert.Equal(t, "97", empty.BestBid.String())
	assert.Equal(t, "110", empty.BestAsk.String())
}

func TestBookReportsBestPricesAndOrderCounts(t *testing.T) {
	e := newTestEngine()
	view := e.Book(5)
	assert.Nil(t, view.BestBid)
	assert.Nil(t, view.BestAsk)

	submit(t, e, order("b1", orderbook.Buy, "99.5", "5"))
	submit(t, e, order("b2", orderbook.Buy, "99.5", "7"))
	submit(t, e, order("b3", orderbook.Buy, "98", "1"))

	view = e.Book(5)
	require.NotNil(t, view.BestBid)
	assert.Equal(t, "99.5", view.BestBid.String())
	assert.Nil(t, view.BestAsk)
	require.Len(t, view.Bids, 2)
	assert.Equal(t, 2, view.Bids[0].Orders)
	assert.Equal(t, 1, view.Bids[1].Orders)

	submit(t, e, order("s1", orderbook.Sell, "99.5", "5"))
	view = e.Book(5)
	assert.Equal(t, 1, view.Bids[0].Orders)
	assert.Equal(t, "7", view.Bids[0].Quantity.String())
}

func TestWeightedAveragePriceBySide(t *testing.T) {
	e := newTestEngine()
	_, ok := e.WeightedAveragePrice(orderbook.Buy)
	assert.False(t, ok)

	submit(t, e, order("b1", orderbook.Buy, "100.0", "10"))
	submit(t, e, order("b2", orderbook.Buy, "99.0", "20"))
	submit(t, e, order("b3", orderbook.Buy, "98.0", "30"))

	want := decimal.NewFromInt(100*10 + 99*20 + 98*30).Div(decimal.NewFromInt(60))
	got, ok := e.WeightedAveragePrice(orderbook.Buy)
	require.True(t, ok)
	assert.True(t, want.Equal(got), "want %s got %s", want, got)

	_, ok = e.WeightedAveragePrice(orderbook.Sell)
	assert.False(t, ok)
}

func TestTradesAreOrderedAndIDsIncrease(t *testing.T) {
	e := newTestEngine()
	submit(t, e, order("a1", orderbook.Sell, "10", "1"))
	submit(t, e, order("a2", orderbook.Sell, "10", "1"))
	submit(t, e, order("a3", orderbook.Sell, "10", "1"))
	submit(t, e, order("b1", orderbook.Buy, "10", "2"))
	submit(t, e, order("b2", orderbook.Buy, "10", "1"))

	trades := e.Trades()
	require.Len(t, trades, 3)
	for i, tr := range trades {
		assert.Equal(t, uint64(i+1), tr.ID)
	}
	assert.Equal(t, []string{"a1", "a2", "a3"}, []string{trades[0].SellOrderID, trades[1].SellOrderID, trades[2].SellOrderID})

	since := e.TradesSince(1)
	require.Len(t, since, 2)
	assert.Equal(t, uint64(2), since[0].ID)
	assert.Empty(t, e.TradesSince(3))

	// callers get copies
	trades[0].Price = d("999")
	assert.Equal(t, "10", e.Trades()[0].Price.String())
}

func TestEventsReachSinkInOrder(t *testing.T) {
	sink := &recordingSink{}
	e := newTestEngine(WithSink(sink))

	submit(t, e, order("a1", orderbook.Sell, "10", "1"))
	submit(t, e, order("a2", orderbook.Sell, "11", "4"))
	submit(t, e, order("b1", orderbook.Buy, "11", "2"))
	require.True(t, e.Cancel(context.Background(), "a2"))
	assert.False(t, e.Cancel(context.Background(), "a2"))

	require.Len(t, sink.events, 3)
	assert.Equal(t, EventTrade, sink.events[0].Type)
	assert.Equal(t, "a1", sink.events[0].Trade.SellOrderID)
	assert.Equal(t, EventTrade, sink.events[1].Type)
	assert.Equal(t, "a2", sink.events[1].Trade.SellOrderID)
	assert.Equal(t, EventCancel, sink.events[2].Type)
	assert.Equal(t, "a2", sink.events[2].Cancel.OrderID)
	assert.Equal(t, "3", sink.events[2].Cancel.Remaining.String())
	assert.Equal(t, symbol, sink.events[2].Symbol)
}

func TestSinkFailureDoesNotRollBack(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	e := newTestEngine(WithSink(sink))

	submit(t, e, order("a1", orderbook.Sell, "10", "1"))
	exec := submit(t, e, order("b1", orderbook.Buy, "10", "1"))
	assert.Equal(t, StatusFilled, exec.Status)
	assert.Len(t, e.Trades(), 1)
}

func TestClosedEngineRejectsWrites(t *testing.T) {
	e := newTestEngine()
	submit(t, e, order("a1", orderbook.Sell, "10", "1"))
	e.Close()
	assert.True(t, e.Closed())

	_, err := e.Submit(context.Background(), order("b1", orderbook.Buy, "10", "1"))
	assert.ErrorIs(t, err, ErrEngineClosed)
	assert.False(t, e.Cancel(context.Background(), "a1"))

	// reads still work
	assert.Len(t, e.Book(5).Asks, 1)
}

func TestOpenOrdersForUser(t *testing.T) {
	e := newTestEngine()
	mine := func(id string, side orderbook.Side, price string) orderbook.Order {
		o := order(id, side, price, "1")
		o.UserID = "alice"
		return o
	}
	submit(t, e, mine("ask-2", orderbook.Sell, "12"))
	submit(t, e, mine("bid-1", orderbook.Buy, "9"))
	submit(t, e, mine("ask-1", orderbook.Sell, "11"))
	submit(t, e, order("bob", orderbook.Buy, "10", "1"))

	var ids []string
	for _, o := range e.OpenOrders("alice") {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"bid-1", "ask-1", "ask-2"}, ids)
	assert.Empty(t, e.OpenOrders(""))
	assert.Empty(t, e.OpenOrders("carol"))
}

func TestConcurrentSubmitAndCancelKeepBookConsistent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				side := orderbook.Buy
				if (w+i)%2 == 0 {
					side = orderbook.Sell
				}
				price := fmt.Sprintf("%d", 95+(i*7+w)%10)
				_, err := e.Submit(ctx, order(id, side, price, "3"))
				assert.NoError(t, err)
				if i%3 == 0 {
					e.Cancel(ctx, id)
				}
				_ = e.Book(5)
			}
		}(w)
	}
	wg.Wait()

	assertNotCrossed(t, e)
}

func assertNotCrossed(t require.TestingT, e *Engine) {
	book := e.Book(1)
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return
	}
	require.Truef(t, book.Bids[0].Price.LessThan(book.Asks[0].Price),
		"crossed book: bid %s ask %s", book.Bids[0].Price, book.Asks[0].Price)
}
