package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/repositories"
)

const orderColumns = `id, order_number, user_id, currency, items, subtotal_cents, tax_cents,
	shipping_cents, total_cents, status, payment, shipment, created_at, updated_at`

// OrderRepository persists placed orders in Postgres. Line items and the
// payment/shipment snapshots are stored as JSON columns.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository constructs an OrderRepository over an open database.
func NewOrderRepository(db *sql.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: database handle is required")
	}
	return &OrderRepository{db: db}, nil
}

// Create inserts a new order row.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("postgres: marshal order items: %w", err)
	}
	paymentJSON, err := json.Marshal(order.Payment)
	if err != nil {
		return fmt.Errorf("postgres: marshal payment snapshot: %w", err)
	}
	shipmentJSON, err := json.Marshal(order.Shipment)
	if err != nil {
		return fmt.Errorf("postgres: marshal shipment snapshot: %w", err)
	}

	query := `INSERT INTO orders (id, order_number, user_id, currency, items, subtotal_cents, tax_cents,
	          shipping_cents, total_cents, status, payment, shipment, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.Currency,
		itemsJSON,
		order.Subtotal,
		order.Tax,
		order.Shipping,
		order.Total,
		string(order.Status),
		paymentJSON,
		shipmentJSON,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: order %s", repositories.ErrDuplicate, order.ID)
		}
		return fmt.Errorf("postgres: insert order: %w", err)
	}
	return nil
}

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var order domain.Order
	var status string
	var itemsJSON, paymentJSON, shipmentJSON []byte
	if err := scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.Currency,
		&itemsJSON,
		&order.Subtotal,
		&order.Tax,
		&order.Shipping,
		&order.Total,
		&status,
		&paymentJSON,
		&shipmentJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(paymentJSON, &order.Payment); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal payment snapshot: %w", err)
	}
	if err := json.Unmarshal(shipmentJSON, &order.Shipment); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal shipment snapshot: %w", err)
	}
	return order, nil
}

// GetByID fetches one order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("%w: order %s", repositories.ErrNotFound, id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: query order by id: %w", err)
	}
	return order, nil
}

// List returns one page of orders, newest first, with the total row count.
func (r *OrderRepository) List(ctx context.Context, offset, limit int) ([]domain.Order, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, orderColumns)
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: query orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListByUser returns one page of a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, orderColumns)
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: query orders by user: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus transitions an order's lifecycle state.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update order status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %s", repositories.ErrNotFound, id)
	}
	return nil
}
