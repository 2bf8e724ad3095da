package handlers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"limit-orderbook/pkg/engine"
	"limit-orderbook/schemas"
)

func jsonResponse(c *fiber.Ctx, status int, payload interface{}) error {
	return c.Status(status).JSON(payload)
}

func badRequest(c *fiber.Ctx, err error) error {
	return jsonResponse(c, fiber.StatusBadRequest, fiber.Map{
		"error": err.Error(),
	})
}

func notFound(c *fiber.Ctx, err error) error {
	return jsonResponse(c, fiber.StatusNotFound, fiber.Map{
		"error": err.Error(),
	})
}

func internalServerError(c *fiber.Ctx) error {
	return jsonResponse(c, fiber.StatusInternalServerError, fiber.Map{
		"error": "Something went wrong",
	})
}

func temporaryUnavailable(c *fiber.Ctx, err error) error {
	return jsonResponse(c, fiber.StatusServiceUnavailable, fiber.Map{
		"error": err.Error(),
	})
}

func rejected(c *fiber.Ctx, err error) error {
	return jsonResponse(c, fiber.StatusBadRequest, schemas.SubmitOrderResponse{
		Accepted: false,
		Trades:   []engine.Trade{},
		Error:    err.Error(),
	})
}

// validationError flattens validator output into "field rule" pairs.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return errors.New(strings.Join(parts, ", "))
}
