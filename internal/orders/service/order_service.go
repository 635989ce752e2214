package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/wahaj4311/microservices-demo/internal/orders/domain"
	"github.com/wahaj4311/microservices-demo/internal/shared/events"
	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
)

// LedgerClient is the reservation surface of the inventory ledger.
// Both operations are atomic per product at the ledger side. The
// reservation reference stays stable across retries of one line so the
// ledger can deduplicate a retry whose first attempt committed.
type LedgerClient interface {
	ReserveStock(ctx context.Context, productID uuid.UUID, quantity int, reference string) (float64, error)
	ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error
}

type OrderRepository interface {
	Create(order *domain.OrderAggregate) error
	GetByID(orderID uuid.UUID) (*domain.OrderAggregate, error)
	List(userID *uuid.UUID, skip, limit int) ([]*domain.OrderAggregate, error)
	UpdateStatus(order *domain.OrderAggregate) error
}

type EventPublisher interface {
	PublishEvent(event events.Event) error
}

const (
	defaultReserveAttempts = 3
	defaultRetryBackoff    = 200 * time.Millisecond
	defaultCallTimeout     = 5 * time.Second
)

// OrderService runs the stock reservation saga: reserve every line in
// request order, and on any failure release what was already reserved
// before surfacing the original error. Either a fully reserved, fully
// priced order is persisted, or no net stock change remains visible.
type OrderService struct {
	orderRepo OrderRepository
	ledger    LedgerClient
	publisher EventPublisher

	reserveAttempts int
	retryBackoff    time.Duration
	callTimeout     time.Duration
}

type OrderServiceOption func(*OrderService)

// WithRetryBackoff overrides the base delay between reservation retries.
func WithRetryBackoff(d time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		if d >= 0 {
			s.retryBackoff = d
		}
	}
}

// WithReserveAttempts overrides how often a reservation call is retried
// on transport errors before the line is treated as failed.
func WithReserveAttempts(n int) OrderServiceOption {
	return func(s *OrderService) {
		if n > 0 {
			s.reserveAttempts = n
		}
	}
}

// WithCallTimeout bounds each outbound ledger call.
func WithCallTimeout(d time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

func NewOrderService(orderRepo OrderRepository, ledger LedgerClient, publisher EventPublisher, opts ...OrderServiceOption) *OrderService {
	svc := &OrderService{
		orderRepo:       orderRepo,
		ledger:          ledger,
		publisher:       publisher,
		reserveAttempts: defaultReserveAttempts,
		retryBackoff:    defaultRetryBackoff,
		callTimeout:     defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateOrder reserves stock line by line in the order given, capturing
// each line's unit price at reservation time. The first failure stops
// the walk, already reserved lines are compensated, and the original
// error is returned; no order is persisted in that case.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, request domain.CreateOrderRequest) (*domain.OrderAggregate, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	var reserved []types.OrderItem

	for _, line := range request.Items {
		price, err := s.reserveWithRetry(ctx, line.ProductID, line.Quantity)
		if err != nil {
			s.compensate(ctx, reserved)
			return nil, err
		}

		reserved = append(reserved, types.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     price,
		})
	}

	order := domain.NewOrderAggregate(userID, reserved)

	if err := s.orderRepo.Create(order); err != nil {
		// The reservations are real even though the order cannot be
		// stored; give the stock back before failing the request.
		s.compensate(ctx, reserved)
		return nil, fmt.Errorf("order persistence error: %v", err)
	}

	log.Printf("Order created: OrderID=%s, UserID=%s, Amount=%.2f",
		order.ID, order.UserID, order.TotalAmount)

	s.publish(events.OrderCreatedEvent, events.OrderCreatedPayload{Order: *order.Order})

	return order, nil
}

// reserveWithRetry retries transport failures a bounded number of times
// with linear backoff. NotFound and InsufficientStock are business
// rejections and never retried. A timeout counts as a transport failure,
// never as success; every attempt carries the same reservation reference
// so a retry of a timed-out-but-committed call cannot decrement twice.
func (s *OrderService) reserveWithRetry(ctx context.Context, productID uuid.UUID, quantity int) (float64, error) {
	var lastErr error
	reference := fmt.Sprintf("reserve:%s", uuid.New())

	for attempt := 0; attempt < s.reserveAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		price, err := s.ledger.ReserveStock(callCtx, productID, quantity, reference)
		cancel()

		if err == nil {
			return price, nil
		}
		if !errors.Is(err, types.ErrServiceUnavailable) {
			return 0, err
		}

		lastErr = err
		log.Printf("Reservation transport error (attempt %d/%d): ProductID=%s: %v",
			attempt+1, s.reserveAttempts, productID, err)

		if attempt < s.reserveAttempts-1 {
			time.Sleep(s.retryBackoff * time.Duration(attempt+1))
		}
	}

	return 0, lastErr
}

// compensate releases every committed reservation, newest first. A
// release that fails is not retried in-line: it is recorded as a
// reconciliation event and stock stays short until the ledger-side
// consumer re-applies it.
func (s *OrderService) compensate(ctx context.Context, reserved []types.OrderItem) {
	for i := len(reserved) - 1; i >= 0; i-- {
		item := reserved[i]

		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err := s.ledger.ReleaseStock(callCtx, item.ProductID, item.Quantity)
		cancel()

		if err == nil {
			continue
		}

		compErr := &types.CompensationError{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Err:       err,
		}
		log.Printf("Compensation failed, recording for reconciliation: %v", compErr)

		s.publish(events.StockReconcileEvent, events.StockReconcilePayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Reference: fmt.Sprintf("release:%s", uuid.New()),
			Reason:    compErr.Error(),
		})
	}
}

func (s *OrderService) GetOrder(orderID uuid.UUID) (*domain.OrderAggregate, error) {
	return s.orderRepo.GetByID(orderID)
}

func (s *OrderService) ListOrders(userID *uuid.UUID, skip, limit int) ([]*domain.OrderAggregate, error) {
	return s.orderRepo.List(userID, skip, limit)
}

// UpdateOrderStatus applies a plain lifecycle transition. No reservation
// side effects: stock was already moved when the order was created.
func (s *OrderService) UpdateOrderStatus(orderID uuid.UUID, status types.OrderStatus) (*domain.OrderAggregate, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}

	if err := order.TransitionTo(status); err != nil {
		return nil, err
	}

	if err := s.orderRepo.UpdateStatus(order); err != nil {
		return nil, err
	}

	if status == types.OrderStatusCancelled {
		s.publish(events.OrderCancelledEvent, events.OrderCancelledPayload{
			OrderID: order.ID,
			Reason:  "cancelled by caller",
		})
	}

	log.Printf("Order status updated: OrderID=%s, Status=%s", order.ID, order.Status)
	return order, nil
}

func (s *OrderService) publish(eventType events.EventType, payload interface{}) {
	event := events.Event{
		ID:        uuid.New(),
		EventType: eventType,
		Service:   "order-service",
		Payload:   payload,
	}

	// Best effort: a lost event never fails the request.
	if err := s.publisher.PublishEvent(event); err != nil {
		log.Printf("Event publish error (%s): %v", eventType, err)
	}
}
