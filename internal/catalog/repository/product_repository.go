package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetByID(productID uuid.UUID) (*types.Product, error) {
	query := `
		SELECT id, name, description, price, stock, category
		FROM products
		WHERE id = $1
	`

	product := &types.Product{}
	err := r.db.QueryRow(query, productID).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Stock,
		&product.Category,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("product query error: %v", err)
	}

	return product, nil
}

func (r *ProductRepository) List(skip, limit int) ([]*types.Product, error) {
	query := `
		SELECT id, name, description, price, stock, category
		FROM products
		ORDER BY name
		OFFSET $1 LIMIT $2
	`

	rows, err := r.db.Query(query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("product list error: %v", err)
	}
	defer rows.Close()

	var products []*types.Product
	for rows.Next() {
		product := &types.Product{}
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Description,
			&product.Price,
			&product.Stock,
			&product.Category,
		)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	return products, rows.Err()
}

func (r *ProductRepository) Create(product *types.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, stock, category)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Stock,
		product.Category,
	)
	if err != nil {
		return fmt.Errorf("product creation error: %v", err)
	}

	return nil
}

// Update mutates catalog attributes only. Stock is deliberately absent:
// it moves exclusively through AdjustStock.
func (r *ProductRepository) Update(product *types.Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, category = $5
		WHERE id = $1
	`

	result, err := r.db.Exec(
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Category,
	)
	if err != nil {
		return fmt.Errorf("product update error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return types.ErrProductNotFound
	}

	return nil
}

func (r *ProductRepository) Delete(productID uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("product delete error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return types.ErrProductNotFound
	}

	return nil
}

// AdjustStock applies delta to stock in a single conditional UPDATE, so
// the check and the decrement are one atomic step with respect to
// concurrent callers on the same product row. A negative delta that
// would take stock below zero affects no row and is rejected.
func (r *ProductRepository) AdjustStock(productID uuid.UUID, delta int) (newStock int, price float64, err error) {
	query := `
		UPDATE products
		SET stock = stock + $2
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock, price
	`

	err = r.db.QueryRow(query, productID, delta).Scan(&newStock, &price)
	if errors.Is(err, sql.ErrNoRows) {
		// No row matched: either the product is gone or the decrement
		// would oversell. Re-read to tell the two apart.
		product, getErr := r.GetByID(productID)
		if getErr != nil {
			return 0, 0, getErr
		}
		return 0, 0, &types.InsufficientStockError{
			ProductID: productID,
			Requested: -delta,
			Available: product.Stock,
		}
	}
	if err != nil {
		return 0, 0, fmt.Errorf("stock adjustment error: %v", err)
	}

	return newStock, price, nil
}
