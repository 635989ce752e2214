package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wahaj4311/microservices-demo/internal/orders/domain"
	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(order *domain.OrderAggregate) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("items serialization error: %v", err)
	}

	query := `
		INSERT INTO orders (id, user_id, items, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.Exec(
		query,
		order.ID,
		order.UserID,
		itemsJSON,
		order.TotalAmount,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("order creation error: %v", err)
	}

	return nil
}

func (r *OrderRepository) GetByID(orderID uuid.UUID) (*domain.OrderAggregate, error) {
	query := `
		SELECT id, user_id, items, total_amount, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	order := &domain.OrderAggregate{Order: &types.Order{}}
	var itemsJSON []byte

	err := r.db.QueryRow(query, orderID).Scan(
		&order.ID,
		&order.UserID,
		&itemsJSON,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order query error: %v", err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("items deserialization error: %v", err)
	}

	return order, nil
}

// List returns orders newest first, optionally filtered by user.
func (r *OrderRepository) List(userID *uuid.UUID, skip, limit int) ([]*domain.OrderAggregate, error) {
	query := `
		SELECT id, user_id, items, total_amount, status, created_at, updated_at
		FROM orders
		WHERE ($1::uuid IS NULL OR user_id = $1)
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`

	rows, err := r.db.Query(query, userID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("order list error: %v", err)
	}
	defer rows.Close()

	var orders []*domain.OrderAggregate
	for rows.Next() {
		order := &domain.OrderAggregate{Order: &types.Order{}}
		var itemsJSON []byte

		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&itemsJSON,
			&order.TotalAmount,
			&order.Status,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
			return nil, fmt.Errorf("items deserialization error: %v", err)
		}

		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// UpdateStatus persists a status transition. Items and total are
// immutable after creation, so they are deliberately not written here.
func (r *OrderRepository) UpdateStatus(order *domain.OrderAggregate) error {
	query := `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.Exec(query, order.ID, order.Status, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("order status update error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return types.ErrOrderNotFound
	}

	return nil
}
