package events

import (
	"time"

	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
)

type EventType string

const (
	// Stock events
	StockAdjustedEvent  EventType = "stock.adjusted"
	StockReconcileEvent EventType = "stock.reconcile"

	// Order events
	OrderCreatedEvent   EventType = "order.created"
	OrderCancelledEvent EventType = "order.cancelled"
)

// Event is the envelope published on the RabbitMQ exchange. Routing key
// format: "shop.<service>.<event_type>".
type Event struct {
	ID            uuid.UUID   `json:"id"`
	EventType     EventType   `json:"event_type"`
	Service       string      `json:"service"`
	Payload       interface{} `json:"payload"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID uuid.UUID   `json:"correlation_id"`
}

type StockAdjustedPayload struct {
	ProductID uuid.UUID `json:"product_id"`
	Delta     int       `json:"delta"`
	NewStock  int       `json:"new_stock"`
}

// StockReconcilePayload is the reconciliation record for a compensation
// that failed in-line at the orchestrator. A consumer on the ledger side
// re-applies the release out of band.
type StockReconcilePayload struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Reference string    `json:"reference"`
	Reason    string    `json:"reason"`
}

type OrderCreatedPayload struct {
	Order types.Order `json:"order"`
}

type OrderCancelledPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}
