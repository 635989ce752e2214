package types

import (
	"github.com/google/uuid"
)

// Product is the authoritative catalog/inventory record. It is owned by
// product-service; other services only ever see snapshots of it.
type Product struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category"`
}
