package types

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error taxonomy shared between the inventory ledger and the order
// orchestrator. The orchestrator's HTTP ledger client reconstructs these
// from wire responses so callers can use errors.Is/errors.As on both
// sides of the service boundary.
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ProductNotFoundError carries the offending product id across the
// service boundary; errors.Is(err, ErrProductNotFound) still matches.
type ProductNotFoundError struct {
	ProductID uuid.UUID
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error {
	return ErrProductNotFound
}

// InsufficientStockError is a business-rule rejection, not a transport
// failure; it is never retried.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested=%d, available=%d",
		e.ProductID, e.Requested, e.Available)
}

// CompensationError records a ReleaseStock that failed during rollback.
// The original reservation error is kept so the caller still sees the
// reason the order was rejected.
type CompensationError struct {
	ProductID uuid.UUID
	Quantity  int
	Err       error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation failed for product %s (quantity=%d): %v",
		e.ProductID, e.Quantity, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// InvalidStatusTransitionError rejects order status updates that violate
// the pending -> confirmed -> shipped -> delivered (or pending ->
// cancelled) lifecycle.
type InvalidStatusTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition: %s -> %s", e.From, e.To)
}
