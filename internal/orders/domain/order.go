package domain

import (
	"fmt"
	"time"

	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
)

type OrderAggregate struct {
	*types.Order
}

// NewOrderAggregate builds a pending order from fully reserved lines.
// Each item carries the unit price captured at reservation time; the
// total is the sum of unit price times quantity and is frozen here.
func NewOrderAggregate(userID uuid.UUID, items []types.OrderItem) *OrderAggregate {
	var totalAmount float64
	for _, item := range items {
		totalAmount += item.Price * float64(item.Quantity)
	}

	now := time.Now()
	return &OrderAggregate{
		Order: &types.Order{
			ID:          uuid.New(),
			UserID:      userID,
			Items:       items,
			TotalAmount: totalAmount,
			Status:      types.OrderStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

var allowedTransitions = map[types.OrderStatus][]types.OrderStatus{
	types.OrderStatusPending:   {types.OrderStatusConfirmed, types.OrderStatusCancelled},
	types.OrderStatusConfirmed: {types.OrderStatusShipped},
	types.OrderStatusShipped:   {types.OrderStatusDelivered},
}

// TransitionTo enforces the order lifecycle: pending -> confirmed ->
// shipped -> delivered, or pending -> cancelled. Delivered and cancelled
// are terminal.
func (o *OrderAggregate) TransitionTo(status types.OrderStatus) error {
	for _, allowed := range allowedTransitions[o.Status] {
		if allowed == status {
			o.Status = status
			o.UpdatedAt = time.Now()
			return nil
		}
	}
	return &types.InvalidStatusTransitionError{From: o.Status, To: status}
}

type CreateOrderRequest struct {
	Items []OrderItemRequest `json:"items"`
}

// OrderItemRequest deliberately has no price field: prices come from the
// ledger at reservation time, never from the client.
type OrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

func (r CreateOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for i, item := range r.Items {
		if item.ProductID == uuid.Nil {
			return fmt.Errorf("item %d: product ID is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive, got %d", i, item.Quantity)
		}
	}
	return nil
}

type UpdateStatusRequest struct {
	Status types.OrderStatus `json:"status"`
}

func (r UpdateStatusRequest) Validate() error {
	switch r.Status {
	case types.OrderStatusPending, types.OrderStatusConfirmed, types.OrderStatusShipped,
		types.OrderStatusDelivered, types.OrderStatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown order status: %s", r.Status)
	}
}
