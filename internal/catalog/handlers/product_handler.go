package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/wahaj4311/microservices-demo/internal/catalog/domain"
	"github.com/wahaj4311/microservices-demo/internal/catalog/service"
	"github.com/wahaj4311/microservices-demo/internal/shared/httpx"
	"github.com/wahaj4311/microservices-demo/internal/shared/messaging"
	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ProductHandler struct {
	catalogService *service.CatalogService
}

func NewProductHandler(catalogService *service.CatalogService) *ProductHandler {
	return &ProductHandler{
		catalogService: catalogService,
	}
}

func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid product ID", map[string]interface{}{
			"product_id": c.Params("id"),
		})
	}

	product, err := h.catalogService.GetProduct(productID)
	if err != nil {
		if errors.Is(err, types.ErrProductNotFound) {
			return httpx.NotFoundResponse(c, "Product not found")
		}
		return httpx.InternalServerErrorResponse(c, "Product retrieval failed", nil)
	}

	return httpx.SuccessResponse(c, "Product retrieved successfully", product)
}

func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
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

	products, err := h.catalogService.ListProducts(skip, limit)
	if err != nil {
		return httpx.InternalServerErrorResponse(c, "Product listing failed", nil)
	}

	return httpx.SuccessResponse(c, "Products retrieved successfully", map[string]interface{}{
		"products": products,
		"skip":     skip,
		"limit":    limit,
	})
}

func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var input domain.ProductInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	product, err := h.catalogService.CreateProduct(input)
	if err != nil {
		return httpx.BadRequestResponse(c, "Product creation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return httpx.CreatedResponse(c, "Product created successfully", product)
}

func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid product ID", nil)
	}

	var input domain.ProductInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	product, err := h.catalogService.UpdateProduct(productID, input)
	if err != nil {
		if errors.Is(err, types.ErrProductNotFound) {
			return httpx.NotFoundResponse(c, "Product not found")
		}
		return httpx.BadRequestResponse(c, "Product update failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return httpx.SuccessResponse(c, "Product updated successfully", product)
}

func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid product ID", nil)
	}

	if err := h.catalogService.DeleteProduct(productID); err != nil {
		if errors.Is(err, types.ErrProductNotFound) {
			return httpx.NotFoundResponse(c, "Product not found")
		}
		return httpx.InternalServerErrorResponse(c, "Product delete failed", nil)
	}

	return httpx.SuccessResponse(c, "Product deleted successfully", nil)
}

// ReserveStock handles the internal reservation call from the order
// orchestrator. Not reachable through the gateway.
func (h *ProductHandler) ReserveStock(c *fiber.Ctx) error {
	var request domain.StockRequest
	if err := c.BodyParser(&request); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}
	if request.ProductID == uuid.Nil || request.Quantity <= 0 {
		return httpx.BadRequestResponse(c, "Product ID and positive quantity are required", nil)
	}

	price, err := h.catalogService.ReserveStock(request.ProductID, request.Quantity, request.Reference)
	if err != nil {
		return stockErrorResponse(c, err)
	}

	return httpx.SuccessResponse(c, "Stock reserved successfully", map[string]interface{}{
		"product_id": request.ProductID,
		"quantity":   request.Quantity,
		"price":      price,
	})
}

func (h *ProductHandler) ReleaseStock(c *fiber.Ctx) error {
	var request domain.StockRequest
	if err := c.BodyParser(&request); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}
	if request.ProductID == uuid.Nil || request.Quantity <= 0 {
		return httpx.BadRequestResponse(c, "Product ID and positive quantity are required", nil)
	}

	if err := h.catalogService.ReleaseStock(request.ProductID, request.Quantity); err != nil {
		return stockErrorResponse(c, err)
	}

	return httpx.SuccessResponse(c, "Stock released successfully", map[string]interface{}{
		"product_id": request.ProductID,
		"quantity":   request.Quantity,
	})
}

func (h *ProductHandler) AdjustStock(c *fiber.Ctx) error {
	var request domain.AdjustRequest
	if err := c.BodyParser(&request); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}
	if request.ProductID == uuid.Nil {
		return httpx.BadRequestResponse(c, "Product ID is required", nil)
	}

	newStock, err := h.catalogService.AdjustStock(request.ProductID, request.Delta)
	if err != nil {
		return stockErrorResponse(c, err)
	}

	return httpx.SuccessResponse(c, "Stock adjusted successfully", map[string]interface{}{
		"product_id": request.ProductID,
		"new_stock":  newStock,
	})
}

func (h *ProductHandler) HealthCheck(c *fiber.Ctx) error {
	return httpx.SuccessResponse(c, "Product service is healthy", map[string]interface{}{
		"service": "product-service",
		"status":  "healthy",
	})
}

// StartConsuming subscribes to reconciliation events published by the
// order orchestrator when an in-line compensation failed.
func (h *ProductHandler) StartConsuming(consumer *messaging.Consumer) error {
	routingKeys := []string{
		"shop.order-service.stock.reconcile",
	}

	return consumer.ConsumeEvents(routingKeys, h.catalogService.HandleReconcileEvent)
}

func stockErrorResponse(c *fiber.Ctx, err error) error {
	var stockErr *types.InsufficientStockError
	switch {
	case errors.Is(err, types.ErrProductNotFound):
		return httpx.NotFoundResponse(c, "Product not found")
	case errors.As(err, &stockErr):
		return httpx.ConflictResponse(c, "Insufficient stock", map[string]interface{}{
			"product_id": stockErr.ProductID.String(),
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	default:
		log.Printf("Stock operation error: %v", err)
		return httpx.InternalServerErrorResponse(c, "Stock operation failed", nil)
	}
}
