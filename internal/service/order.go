package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shopcore/internal/model"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderService struct {
	db *sql.DB
}

func NewOrderService(db *sql.DB) *OrderService {
	return &OrderService{db: db}
}

// Create persists the order and its line items in one transaction. The
// total and payment reference are written once here and never updated.
func (s *OrderService) Create(ctx context.Context, o *model.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, total_amount, payment_intent_id, shipping_address, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.UserID, o.TotalAmount, o.PaymentIntentID, nullableJSON(o.ShippingAddress), o.Status, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4)`,
			o.ID, it.ProductID, it.Quantity, it.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func (s *OrderService) FindByPaymentIntentID(ctx context.Context, intentID string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, total_amount, payment_intent_id, COALESCE(shipping_address, 'null'), status, created_at
		 FROM orders WHERE payment_intent_id = $1`, intentID)
	return s.scanOrderWithItems(ctx, row)
}

func (s *OrderService) FindForUser(ctx context.Context, userID, orderID string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, total_amount, payment_intent_id, COALESCE(shipping_address, 'null'), status, created_at
		 FROM orders WHERE id = $1 AND user_id = $2`, orderID, userID)
	return s.scanOrderWithItems(ctx, row)
}

func (s *OrderService) scanOrderWithItems(ctx context.Context, row *sql.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.PaymentIntentID, &o.ShippingAddress, &o.Status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	items, err := s.listItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *OrderService) listItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, quantity, unit_price FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return items, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, total_amount, payment_intent_id, COALESCE(shipping_address, 'null'), status, created_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.PaymentIntentID, &o.ShippingAddress, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	for i := range orders {
		items, err := s.listItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// MarkProcessing flips a pending order to processing. The condition on
// the current status makes the transition a one-shot gate: the first
// caller wins and gets true, later callers get false.
func (s *OrderService) MarkProcessing(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		model.OrderStatusProcessing, orderID, model.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CancelStalePending cancels orders that have sat in pending longer than
// maxAge. The same status condition used by MarkProcessing keeps this
// from racing a concurrent settlement.
func (s *OrderService) CancelStalePending(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE status = $2 AND created_at < $3`,
		model.OrderStatusCancelled, model.OrderStatusPending, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("cancel stale orders: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
