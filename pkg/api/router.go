package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"limit-orderbook/pkg/handlers"
)

func New(router fiber.Router, handler *handlers.Handler) {
	router.Use(requestIDMiddleware)
	router.Use(metricsMiddleware)

	// should use middleware to pull user_id instead of in request
	orders := router.Group("/orders")
	orders.Post("/submit", handler.SubmitOrder)
	orders.Post("/cancel", handler.CancelOrder)
	orders.Get("/:symbol/:orderId", handler.GetOrder)
	orders.Get("/:symbol", handler.GetOpenOrders)

	router.Get("/books/:symbol", handler.GetBook)
	router.Get("/trades/:symbol", handler.GetTrades)

	prices := router.Group("/prices")
	prices.Get("/:symbol/last", handler.GetLastPrice)
	prices.Get("/:symbol/wap", handler.GetWeightedAveragePrice)

	router.Get("/symbols", handler.GetSymbols)
	router.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
