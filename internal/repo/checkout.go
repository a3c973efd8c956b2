package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/order"
)

// Commit stores the order and its items, then applies the stock decrements and
// cart cleanup inside savepoints of the same transaction. A stock shortfall
// rolls back the whole transaction; any other failure of the stock or cart
// step only rolls back that step and is reported in the result.
func (s *Store) Commit(ctx context.Context, m checkout.Mutation) (checkout.CommitResult, error) {
	var res checkout.CommitResult
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin checkout: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertOrder(ctx, tx, m.Order); err != nil {
		return res, err
	}
	if len(m.Stock) > 0 {
		err := savepoint(ctx, tx, func(sp pgx.Tx) error {
			return decrementStock(ctx, sp, m.Order.ID, m.Stock)
		})
		if errors.Is(err, cart.ErrInsufficientStock) {
			return checkout.CommitResult{}, err
		}
		res.StockErr = err
	}
	if len(m.CartProductIDs) > 0 {
		res.CartErr = savepoint(ctx, tx, func(sp pgx.Tx) error {
			return deleteCartLines(ctx, sp, m.CartUserID, m.CartStoreID, m.CartProductIDs)
		})
	}
	if err := tx.Commit(ctx); err != nil {
		return checkout.CommitResult{}, fmt.Errorf("commit checkout: %w", err)
	}
	return res, nil
}

// savepoint runs fn in a pgx pseudo nested transaction, which pgx backs with
// SAVEPOINT and ROLLBACK TO SAVEPOINT.
func savepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func insertOrder(ctx context.Context, db DB, o order.Order) error {
	id, err := uuidValue(o.ID)
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	sid, err := uuidValue(o.StoreID)
	if err != nil {
		return fmt.Errorf("store id: %w", err)
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	var reference *string
	if o.PaymentReference != "" {
		reference = &o.PaymentReference
	}
	_, err = db.Exec(ctx, `
		INSERT INTO orders (id, store_id, user_id, status, payment_status, payment_method, payment_reference,
		                    original_subtotal, subtotal, discount_amount, shipping_cost, shipping_mode, total,
		                    shipping_address, tracking_number, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
		        $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12, $13::numeric,
		        $14::jsonb, $15, $16, $17, $18)`,
		id, sid, o.UserID, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), reference,
		moneyArg(o.OriginalSubtotal), moneyArg(o.Subtotal), moneyArg(o.DiscountAmount), moneyArg(o.ShippingCost),
		o.ShippingMode, moneyArg(o.Total), string(address), o.TrackingNumber, o.Notes, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if len(o.Items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range o.Items {
		itemID, err := uuidValue(it.ID)
		if err != nil {
			return fmt.Errorf("item id: %w", err)
		}
		pid, err := uuidValue(it.ProductID)
		if err != nil {
			return fmt.Errorf("item product id: %w", err)
		}
		batch.Queue(`
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price,
			                         original_unit_price, discount_percent, promotion_id, promotion_name, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::uuid, $10, $11::numeric)`,
			itemID, id, pid, it.ProductName, it.Quantity, moneyArg(it.UnitPrice), moneyArg(it.OriginalUnitPrice),
			moneyArg(it.DiscountPercent), it.PromotionID, it.PromotionName, moneyArg(it.Subtotal))
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

// decrementStock applies each decrement once per (order, product) and only
// while enough stock remains. Lines are locked in product id order.
func decrementStock(ctx context.Context, db DB, orderID string, lines []checkout.StockLine) error {
	oid, err := uuidValue(orderID)
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	sorted := append([]checkout.StockLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	for _, l := range sorted {
		pid, err := uuidValue(l.ProductID)
		if err != nil {
			return &cart.LineError{ProductID: l.ProductID, Err: fmt.Errorf("invalid product id: %w", err)}
		}
		tag, err := db.Exec(ctx, `
			INSERT INTO stock_movements (order_id, product_id, quantity)
			VALUES ($1, $2, $3) ON CONFLICT (order_id, product_id) DO NOTHING`, oid, pid, l.Quantity)
		if err != nil {
			return fmt.Errorf("record stock movement: %w", err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		tag, err = db.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock IS NOT NULL AND stock >= $2`, pid, l.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &cart.LineError{ProductID: l.ProductID, Err: cart.ErrInsufficientStock}
		}
	}
	return nil
}

func deleteCartLines(ctx context.Context, db DB, userID, storeID string, productIDs []string) error {
	sid, err := uuidValue(storeID)
	if err != nil {
		return fmt.Errorf("store id: %w", err)
	}
	ids, err := uuidList(productIDs)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		DELETE FROM cart_lines c
		USING products p
		WHERE c.product_id = p.id AND c.user_id = $1 AND p.store_id = $2 AND c.product_id = ANY($3)`,
		userID, sid, ids)
	if err != nil {
		return fmt.Errorf("delete cart lines: %w", err)
	}
	return nil
}

// DecrementStock replays stock decrements for an order in their own transaction.
func (s *Store) DecrementStock(ctx context.Context, orderID string, lines []checkout.StockLine) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := decrementStock(ctx, tx, orderID, lines); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteCartLines removes the given products of one store from the user's cart.
func (s *Store) DeleteCartLines(ctx context.Context, userID, storeID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	return deleteCartLines(ctx, s.DB, userID, storeID, productIDs)
}

// SetPaymentReference stores the gateway identifier of the order's payment.
func (s *Store) SetPaymentReference(ctx context.Context, orderID, reference string) error {
	id, err := uuidValue(orderID)
	if err != nil {
		return order.ErrNotFound
	}
	tag, err := s.DB.Exec(ctx, `
		UPDATE orders SET payment_reference = $2, updated_at = now() WHERE id = $1`, id, reference)
	if err != nil {
		return fmt.Errorf("set payment reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}
