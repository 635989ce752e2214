package domain

import (
	"fmt"

	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
)

// ProductInput is the catalog CRUD payload. Stock set here is the
// initial stock on create; afterwards stock moves only through the
// reservation/compensation primitives.
type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category"`
}

func (in ProductInput) Validate() error {
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if in.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if in.Stock < 0 {
		return fmt.Errorf("stock must not be negative")
	}
	return nil
}

func NewProduct(in ProductInput) *types.Product {
	return &types.Product{
		ID:          uuid.New(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
	}
}

// StockRequest is the internal reserve/release payload used by the
// order orchestrator. Reference identifies one logical reservation
// across transport retries so the ledger can suppress duplicates.
type StockRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Reference string    `json:"reference,omitempty"`
}

// AdjustRequest is the administrative stock adjustment payload; Delta
// may be negative but may never drive stock below zero.
type AdjustRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Delta     int       `json:"delta"`
}
