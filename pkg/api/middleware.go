package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"limit-orderbook/pkg/obs"
)

const RequestIDHeader = "X-Request-ID"

var httpRequests = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "lob",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

func requestIDMiddleware(c *fiber.Ctx) error {
	requestID := strings.TrimSpace(c.Get(RequestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}

	c.SetUserContext(obs.WithRequestID(c.UserContext(), requestID))
	c.Set(RequestIDHeader, requestID)

	return c.Next()
}

func metricsMiddleware(c *fiber.Ctx) error {
	started := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if err != nil {
		status = fiber.StatusInternalServerError
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	httpRequests.
		WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).
		Observe(time.Since(started).Seconds())
	return err
}
