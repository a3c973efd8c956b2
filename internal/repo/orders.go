package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/order"
)

const orderColumns = `id::text, store_id::text, user_id, status, payment_status, payment_method,
	COALESCE(payment_reference, ''), original_subtotal::text, subtotal::text, discount_amount::text,
	shipping_cost::text, shipping_mode, total::text, shipping_address, tracking_number, notes,
	created_at, updated_at`

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o                             order.Order
		status, paymentStatus, method string
		amounts                       [5]string
		address                       []byte
	)
	if err := row.Scan(&o.ID, &o.StoreID, &o.UserID, &status, &paymentStatus, &method,
		&o.PaymentReference, &amounts[0], &amounts[1], &amounts[2], &amounts[3], &o.ShippingMode, &amounts[4],
		&address, &o.TrackingNumber, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.PaymentMethod = order.PaymentMethod(method)
	targets := []*decimal.Decimal{&o.OriginalSubtotal, &o.Subtotal, &o.DiscountAmount, &o.ShippingCost, &o.Total}
	for i, dst := range targets {
		v, err := parseMoney(amounts[i])
		if err != nil {
			return order.Order{}, err
		}
		*dst = v
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return order.Order{}, fmt.Errorf("decode shipping address: %w", err)
		}
	}
	return o, nil
}

// GetOrder loads an order with its items.
func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	oid, err := uuidValue(id)
	if err != nil {
		return order.Order{}, order.ErrNotFound
	}
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, oid))
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("get order: %w", err)
	}
	if o.Items, err = s.orderItems(ctx, oid); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (s *Store) orderItems(ctx context.Context, orderID any) ([]order.Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id::text, order_id::text, product_id::text, product_name, quantity, unit_price::text,
		       original_unit_price::text, discount_percent::text, promotion_id::text, promotion_name, subtotal::text
		FROM order_items WHERE order_id = $1
		ORDER BY product_name, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()
	var items []order.Item
	for rows.Next() {
		var (
			it      order.Item
			amounts [4]string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &amounts[0],
			&amounts[1], &amounts[2], &it.PromotionID, &it.PromotionName, &amounts[3]); err != nil {
			return nil, err
		}
		targets := []*decimal.Decimal{&it.UnitPrice, &it.OriginalUnitPrice, &it.DiscountPercent, &it.Subtotal}
		for i, dst := range targets {
			v, err := parseMoney(amounts[i])
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListOrders returns a page of the user's orders, newest first, without items.
func (s *Store) ListOrders(ctx context.Context, userID string, limit, offset int) ([]order.Order, int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+`
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// History returns the change log of an order, oldest first.
func (s *Store) History(ctx context.Context, orderID string) ([]order.HistoryEntry, error) {
	oid, err := uuidValue(orderID)
	if err != nil {
		return nil, order.ErrNotFound
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id::text, order_id::text, field, actor, old_value, new_value, note, created_at
		FROM order_history WHERE order_id = $1
		ORDER BY created_at, id`, oid)
	if err != nil {
		return nil, fmt.Errorf("list order history: %w", err)
	}
	defer rows.Close()
	var out []order.HistoryEntry
	for rows.Next() {
		var (
			h     order.HistoryEntry
			field string
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &field, &h.Actor, &h.OldValue, &h.NewValue, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Field = order.Field(field)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ApplyTransition compare-and-sets the status field named by the entry and
// appends the entry to the history in one transaction.
func (s *Store) ApplyTransition(ctx context.Context, t order.Transition) error {
	oid, err := uuidValue(t.Entry.OrderID)
	if err != nil {
		return order.ErrNotFound
	}
	var (
		query string
		args  []any
	)
	switch t.Entry.Field {
	case order.FieldStatus:
		query = `UPDATE orders SET status = $2, tracking_number = COALESCE($3, tracking_number), updated_at = $4
			WHERE id = $1 AND status = $5`
		args = []any{oid, t.Entry.NewValue, t.TrackingNumber, t.Entry.CreatedAt, t.Entry.OldValue}
	case order.FieldPaymentStatus:
		query = `UPDATE orders SET payment_status = $2, updated_at = $3
			WHERE id = $1 AND payment_status = $4`
		args = []any{oid, t.Entry.NewValue, t.Entry.CreatedAt, t.Entry.OldValue}
	default:
		return fmt.Errorf("unknown order field %q", t.Entry.Field)
	}
	hid, err := uuidValue(t.Entry.ID)
	if err != nil {
		return fmt.Errorf("history id: %w", err)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, oid).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrConflict
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_history (id, order_id, field, actor, old_value, new_value, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		hid, oid, string(t.Entry.Field), t.Entry.Actor, t.Entry.OldValue, t.Entry.NewValue, t.Entry.Note, t.Entry.CreatedAt); err != nil {
		return fmt.Errorf("append order history: %w", err)
	}
	return tx.Commit(ctx)
}
