package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"limit-orderbook/pkg/engine"
	"limit-orderbook/pkg/orderbook"
	"limit-orderbook/pkg/registry"
	"limit-orderbook/schemas"
)

func (h *Handler) SubmitOrder(c *fiber.Ctx) error {
	var req schemas.SubmitOrderRequest
	ctx := c.UserContext()

	if err := c.BodyParser(&req); err != nil {
		h.obs.LogErr(ctx, "order.submit: invalid request body: %v", err)
		return rejected(c, errors.New("invalid request body"))
	}
	if err := h.validate.Struct(req); err != nil {
		h.obs.LogErr(ctx, "order.submit: validation failed user=%s symbol=%s: %v", req.UserID, req.Symbol, err)
		return rejected(c, validationError(err))
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		return rejected(c, err)
	}

	eng, err := h.registry.Lookup(req.Symbol)
	if err != nil {
		if errors.Is(err, registry.ErrClosed) {
			return temporaryUnavailable(c, err)
		}
		h.obs.LogErr(ctx, "order.submit: %v", err)
		return rejected(c, err)
	}

	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixNano()
	}

	h.obs.LogInfo(ctx, "order.submit: user=%s symbol=%s side=%s price=%s qty=%s", req.UserID, eng.Symbol(), side, req.Price, req.Quantity)

	exec, err := eng.Submit(ctx, orderbook.Order{
		ID:        req.OrderID,
		UserID:    req.UserID,
		Symbol:    eng.Symbol(),
		Side:      side,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timestamp: timestamp,
	})
	switch {
	case errors.Is(err, engine.ErrInvalidOrder):
		return rejected(c, err)
	case errors.Is(err, engine.ErrEngineClosed):
		return temporaryUnavailable(c, err)
	case err != nil:
		h.obs.LogAlert(ctx, "order.submit failed: symbol=%s err=%v", eng.Symbol(), err)
		return internalServerError(c)
	}

	trades := exec.Trades
	if trades == nil {
		trades = []engine.Trade{}
	}
	remaining := exec.Order.Quantity

	h.obs.LogInfo(ctx, "order.submit done: order_id=%s status=%s trades=%d", exec.Order.ID, exec.Status, len(trades))
	return jsonResponse(c, fiber.StatusOK, schemas.SubmitOrderResponse{
		Accepted:  true,
		OrderID:   exec.Order.ID,
		Status:    string(exec.Status),
		Remaining: &remaining,
		Trades:    trades,
	})
}

func (h *Handler) CancelOrder(c *fiber.Ctx) error {
	var req schemas.CancelOrderRequest
	ctx := c.UserContext()
	if err := c.BodyParser(&req); err != nil {
		h.obs.LogErr(ctx, "order.cancel: invalid request body")
		return badRequest(c, errors.New("invalid request body"))
	}
	if err := h.validate.Struct(req); err != nil {
		h.obs.LogErr(ctx, "order.cancel: validation failed: %v", err)
		return badRequest(c, validationError(err))
	}

	eng, ok := h.registry.Get(req.Symbol)
	if !ok {
		return notFound(c, fmt.Errorf("%w: %s", registry.ErrUnknownSymbol, registry.Normalize(req.Symbol)))
	}

	h.obs.LogInfo(ctx, "order.cancel: symbol=%s order_id=%s", eng.Symbol(), req.OrderID)
	cancelled := eng.Cancel(ctx, strings.TrimSpace(req.OrderID))

	h.obs.LogInfo(ctx, "order.cancel done: order_id=%s cancelled=%t", req.OrderID, cancelled)
	return jsonResponse(c, fiber.StatusOK, schemas.CancelOrderResponse{
		Cancelled: cancelled,
	})
}

func (h *Handler) GetOrder(c *fiber.Ctx) error {
	eng, err := h.engineFor(c)
	if err != nil {
		return notFound(c, err)
	}

	orderID := c.Params("orderId")
	order, ok := eng.Order(orderID)
	if !ok {
		h.obs.LogDebug(c.UserContext(), "order.query: not resting symbol=%s order_id=%s", eng.Symbol(), orderID)
		return notFound(c, errors.New("order not found"))
	}
	return jsonResponse(c, fiber.StatusOK, schemas.OrderResponse{Order: order})
}

func (h *Handler) GetOpenOrders(c *fiber.Ctx) error {
	eng, err := h.engineFor(c)
	if err != nil {
		return notFound(c, err)
	}

	userID := strings.TrimSpace(c.Query("user"))
	if userID == "" {
		h.obs.LogErr(c.UserContext(), "orders.query: missing user")
		return badRequest(c, errors.New("user is required"))
	}

	ctx := c.UserContext()
	h.obs.LogInfo(ctx, "orders.query: symbol=%s user=%s", eng.Symbol(), userID)

	orders := eng.OpenOrders(userID)

	h.obs.LogInfo(ctx, "orders.query.done symbol=%s user=%s count=%d", eng.Symbol(), userID, len(orders))
	return jsonResponse(c, fiber.StatusOK, schemas.OpenOrdersResponse{
		Symbol: eng.Symbol(),
		User:   userID,
		Orders: orders,
	})
}

// engineFor resolves the :symbol route param without creating anything.
func (h *Handler) engineFor(c *fiber.Ctx) (*engine.Engine, error) {
	symbol := c.Params("symbol")
	eng, ok := h.registry.Get(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownSymbol, registry.Normalize(symbol))
	}
	return eng, nil
}
