package handlers

import (
	"github.com/go-playground/validator/v10"

	"limit-orderbook/pkg/obs"
	"limit-orderbook/pkg/registry"
)

type Limits struct {
	DefaultDepth int
	MaxDepth     int
}

type Handler struct {
	registry *registry.Registry
	obs      *obs.Client
	validate *validator.Validate
	limits   Limits
}

func New(obs *obs.Client, reg *registry.Registry, limits Limits) *Handler {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = 100
	}
	if limits.DefaultDepth <= 0 || limits.DefaultDepth > limits.MaxDepth {
		limits.DefaultDepth = min(10, limits.MaxDepth)
	}
	return &Handler{
		registry: reg,
		obs:      obs,
		validate: validator.New(),
		limits:   limits,
	}
}
