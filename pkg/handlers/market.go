package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"limit-orderbook/pkg/engine"
	"limit-orderbook/pkg/orderbook"
	"limit-orderbook/schemas"
)

func (h *Handler) GetBook(c *fiber.Ctx) error {
	eng, err := h.engineFor(c)
	if err != nil {
		return notFound(c, err)
	}

	depth := h.limits.DefaultDepth
	if raw := c.Query("depth"); raw != "" {
		depth, err = strconv.Atoi(raw)
		if err != nil || depth < 0 {
			return badRequest(c, errors.New("depth must be a non-negative integer"))
		}
	}
	if depth > h.limits.MaxDepth {
		depth = h.limits.MaxDepth
	}

	view := eng.Book(depth)
	return jsonResponse(c, fiber.StatusOK, schemas.BookResponse{
		Symbol:  view.Symbol,
		Depth:   depth,
		BestBid: view.BestBid,
		BestAsk: view.BestAsk,
		Bids:    view.Bids,
		Asks:    view.Asks,
	})
}

// GetTrades lists the trade history, optionally after a trade id. With
// ?user= it returns that user's fills instead.
func (h *Handler) GetTrades(c *fiber.Ctx) error {
	eng, err := h.engineFor(c)
	if err != nil {
		return notFound(c, err)
	}

	var trades []engine.Trade
	if raw := c.Query("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return badRequest(c, errors.New("since must be a trade id"))
		}
		trades = eng.TradesSince(since)
	} else {
		trades = eng.Trades()
	}

	if user := strings.TrimSpace(c.Query("user")); user != "" {
		ctx := c.UserContext()
		h.obs.LogInfo(ctx, "fills.query: symbol=%s user=%s", eng.Symbol(), user)
		fills := fillsFor(user, trades)
		h.obs.LogInfo(ctx, "fills.query.done: symbol=%s user=%s count=%d", eng.Symbol(), user, len(fills))
		return jsonResponse(c, fiber.StatusOK, schemas.FillsResponse{
			Symbol: eng.Symbol(),
			User:   user,
			Fills:  fills,
		})
	}

	return jsonResponse(c, fiber.StatusOK, schemas.TradesResponse{
		Symbol: eng.Symbol(),
		Trades: trades,
	})
}

func fillsFor(user string, trades []engine.Trade) []schemas.Fill {
	fills := make([]schemas.Fill, 0)
	for _, t := range trades {
		// a self-trade shows up once per side
		if t.BuyUserID == user {
			fills = append(fills, schemas.Fill{
				TradeID:      t.ID,
				OrderID:      t.BuyOrderID,
				Counterparty: t.SellUserID,
				Side:         orderbook.Buy,
				Price:        t.Price,
				Quantity:     t.Quantity,
				IsMaker:      t.Aggressor == orderbook.Sell,
				Timestamp:    t.Timestamp,
			})
		}
		if t.SellUserID == user {
			fills = append(fills, schemas.Fill{
				TradeID:      t.ID,
				OrderID:      t.SellOrderID,
				Counterparty: t.BuyUserID,
				Side:         orderbook.Sell,
				Price:        t.Price,
				Quantity:     t.Quantity,
				IsMaker:      t.Aggressor == orderbook.Buy,
				Timestamp:    t.Timestamp,
			})
		}
	}
	return fills
}

func (h *Handler) GetLastPrice(c *fiber.Ctx) error {
	eng, err := h.engineFor(c)
	if err != nil {
		return notFound(c, err)
	}

	resp := schemas.PriceResponse{Symbol: eng.Symbol()}
	if price, ok := eng.LastTradedPrice(); ok {
		resp.Price = &price
	}
	return jsonResponse(c, fiber.StatusOK, resp)
}

func (h *Handler) GetWeightedAveragePrice(c *fiber.Ctx) error {
	eng, err := h.engineFor(c)
	if err != nil {
		return notFound(c, err)
	}

	side, err := orderbook.ParseSide(c.Query("side"))
	if err != nil {
		return badRequest(c, errors.New("side must be buy or sell"))
	}

	resp := schemas.PriceResponse{Symbol: eng.Symbol(), Side: side.String()}
	if price, ok := eng.WeightedAveragePrice(side); ok {
		resp.Price = &price
	}
	return jsonResponse(c, fiber.StatusOK, resp)
}

func (h *Handler) GetSymbols(c *fiber.Ctx) error {
	return jsonResponse(c, fiber.StatusOK, schemas.SymbolsResponse{
		Symbols: h.registry.Symbols(),
	})
}
