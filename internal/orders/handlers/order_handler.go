package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/wahaj4311/microservices-demo/internal/orders/domain"
	"github.com/wahaj4311/microservices-demo/internal/orders/service"
	"github.com/wahaj4311/microservices-demo/internal/shared/authn"
	"github.com/wahaj4311/microservices-demo/internal/shared/httpx"
	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// CreateOrder runs the reservation saga for the authenticated buyer.
// The bearer token was already verified by the authn middleware; an
// unauthenticated request never reaches the ledger.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	identity := authn.IdentityFromCtx(c)
	if identity == nil {
		return httpx.UnauthorizedResponse(c, "Authentication required")
	}

	var request domain.CreateOrderRequest
	if err := c.BodyParser(&request); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}
	if err := request.Validate(); err != nil {
		return httpx.BadRequestResponse(c, err.Error(), nil)
	}

	order, err := h.orderService.CreateOrder(c.Context(), identity.UserID, request)
	if err != nil {
		return orderErrorResponse(c, err)
	}

	return httpx.CreatedResponse(c, "Order created successfully", toOrderResponse(order))
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid order ID", map[string]interface{}{
			"order_id": c.Params("id"),
		})
	}

	order, err := h.orderService.GetOrder(orderID)
	if err != nil {
		if errors.Is(err, types.ErrOrderNotFound) {
			return httpx.NotFoundResponse(c, "Order not found")
		}
		return httpx.InternalServerErrorResponse(c, "Order retrieval failed", nil)
	}

	return httpx.SuccessResponse(c, "Order retrieved successfully", toOrderResponse(order))
}

func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	skip := 0
	limit := 100
	if skipStr := c.Query("skip"); skipStr != "" {
		if s, err := strconv.Atoi(skipStr); err == nil && s >= 0 {
			skip = s
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	var userID *uuid.UUID
	if userIDStr := c.Query("user_id"); userIDStr != "" {
		parsed, err := uuid.Parse(userIDStr)
		if err != nil {
			return httpx.BadRequestResponse(c, "Invalid user ID", nil)
		}
		userID = &parsed
	}

	orders, err := h.orderService.ListOrders(userID, skip, limit)
	if err != nil {
		return httpx.InternalServerErrorResponse(c, "Order listing failed", nil)
	}

	responses := make([]OrderResponse, len(orders))
	for i, order := range orders {
		responses[i] = toOrderResponse(order)
	}

	return httpx.SuccessResponse(c, "Orders retrieved successfully", map[string]interface{}{
		"orders": responses,
		"skip":   skip,
		"limit":  limit,
	})
}

func (h *OrderHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid order ID", nil)
	}

	var request domain.UpdateStatusRequest
	if err := c.BodyParser(&request); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}
	if err := request.Validate(); err != nil {
		return httpx.BadRequestResponse(c, err.Error(), nil)
	}

	order, err := h.orderService.UpdateOrderStatus(orderID, request.Status)
	if err != nil {
		var transitionErr *types.InvalidStatusTransitionError
		switch {
		case errors.Is(err, types.ErrOrderNotFound):
			return httpx.NotFoundResponse(c, "Order not found")
		case errors.As(err, &transitionErr):
			return httpx.ConflictResponse(c, "Invalid status transition", map[string]interface{}{
				"from": string(transitionErr.From),
				"to":   string(transitionErr.To),
			})
		default:
			return httpx.InternalServerErrorResponse(c, "Order status update failed", nil)
		}
	}

	return httpx.SuccessResponse(c, "Order status updated successfully", toOrderResponse(order))
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	return httpx.SuccessResponse(c, "Order service is healthy", map[string]interface{}{
		"service": "order-service",
		"status":  "healthy",
	})
}

func orderErrorResponse(c *fiber.Ctx, err error) error {
	var notFoundErr *types.ProductNotFoundError
	var stockErr *types.InsufficientStockError

	switch {
	case errors.As(err, &notFoundErr):
		return httpx.NotFoundResponse(c, "Product not found: "+notFoundErr.ProductID.String())
	case errors.Is(err, types.ErrProductNotFound):
		return httpx.NotFoundResponse(c, "Product not found")
	case errors.As(err, &stockErr):
		return httpx.ConflictResponse(c, "Insufficient stock", map[string]interface{}{
			"product_id": stockErr.ProductID.String(),
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.Is(err, types.ErrServiceUnavailable):
		return httpx.ServiceUnavailableResponse(c, "Inventory service unavailable")
	default:
		log.Printf("Order creation error: %v", err)
		return httpx.InternalServerErrorResponse(c, "Order creation failed", nil)
	}
}
