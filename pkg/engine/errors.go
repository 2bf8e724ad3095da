package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrEngineClosed = errors.New("engine closed")
)

// InvalidOrderError describes why Submit rejected an order. It matches
// ErrInvalidOrder under errors.Is.
type InvalidOrderError struct {
	Field  string
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

func (e *InvalidOrderError) Is(target error) bool {
	return target == ErrInvalidOrder
}

func invalid(field, reason string) error {
	return &InvalidOrderError{Field: field, Reason: reason}
}
