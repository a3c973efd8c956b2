package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/order"
)

const (
	orderID   = "6f1c2a9e-3b7d-4e55-9a1f-0c2d3e4f5a6b"
	storeID   = "0b8e7c3a-1d2f-4a5b-8c9d-0e1f2a3b4c5d"
	productA  = "11111111-1111-4111-8111-111111111111"
	productB  = "22222222-2222-4222-8222-222222222222"
	itemID    = "33333333-3333-4333-8333-333333333333"
	historyID = "44444444-4444-4444-8444-444444444444"
)

func mutation() checkout.Mutation {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("45.00")
	return checkout.Mutation{
		Order: order.Order{
			ID: orderID, StoreID: storeID, UserID: "user-1",
			Status: order.StatusPending, PaymentStatus: order.PaymentPending, PaymentMethod: order.MethodPix,
			OriginalSubtotal: amount, Subtotal: amount, ShippingMode: "fixed", Total: amount,
			Items: []order.Item{{
				ID: itemID, OrderID: orderID, ProductID: productA, ProductName: "Caneca", Quantity: 2,
				UnitPrice: decimal.RequireFromString("22.50"), OriginalUnitPrice: decimal.RequireFromString("22.50"),
				Subtotal: amount,
			}},
			CreatedAt: now, UpdatedAt: now,
		},
		Stock:          []checkout.StockLine{{ProductID: productB, Quantity: 1}, {ProductID: productA, Quantity: 2}},
		CartUserID:     "user-1",
		CartStoreID:    storeID,
		CartProductIDs: []string{productA},
	}
}

func TestCommitStoresOrderStockAndCart(t *testing.T) {
	t.Parallel()
	db := newFakeDB(
		execRule{contains: "UPDATE products", tag: "UPDATE 1"},
		execRule{contains: "DELETE FROM cart_lines", tag: "DELETE 1"},
	)
	res, err := New(db, Capabilities{}).Commit(context.Background(), mutation())
	require.NoError(t, err)
	require.NoError(t, res.StockErr)
	require.NoError(t, res.CartErr)
	require.Equal(t, 1, db.ran("INSERT INTO orders"))
	require.Equal(t, 1, db.batchQueued)
	require.Equal(t, 2, db.ran("UPDATE products"))
	require.Equal(t, 1, db.ran("DELETE FROM cart_lines"))
	require.Equal(t, 1, db.commits[1])
	require.Equal(t, 2, db.commits[2])
}

func TestCommitShortfallAbortsEverything(t *testing.T) {
	t.Parallel()
	db := newFakeDB(execRule{contains: "UPDATE products", tag: "UPDATE 0"})
	_, err := New(db, Capabilities{}).Commit(context.Background(), mutation())
	require.ErrorIs(t, err, cart.ErrInsufficientStock)
	var lineErr *cart.LineError
	require.True(t, errors.As(err, &lineErr))
	require.Equal(t, productA, lineErr.ProductID)
	require.Zero(t, db.commits[1])
	require.Equal(t, 1, db.rollbacks[1])
	require.Zero(t, db.ran("DELETE FROM cart_lines"))
}

func TestCommitCartFailureKeepsOrder(t *testing.T) {
	t.Parallel()
	boom := errors.New("cart table locked")
	db := newFakeDB(
		execRule{contains: "UPDATE products", tag: "UPDATE 1"},
		execRule{contains: "DELETE FROM cart_lines", err: boom},
	)
	res, err := New(db, Capabilities{}).Commit(context.Background(), mutation())
	require.NoError(t, err)
	require.NoError(t, res.StockErr)
	require.ErrorIs(t, res.CartErr, boom)
	require.Equal(t, 1, db.commits[1])
	require.Equal(t, 1, db.rollbacks[2])
}

func TestCommitStockErrorIsDegraded(t *testing.T) {
	t.Parallel()
	boom := errors.New("deadlock detected")
	db := newFakeDB(execRule{contains: "INSERT INTO stock_movements", err: boom})
	res, err := New(db, Capabilities{}).Commit(context.Background(), mutation())
	require.NoError(t, err)
	require.ErrorIs(t, res.StockErr, boom)
	require.Equal(t, 1, db.commits[1])
}

func TestDecrementStockSkipsRecordedMovements(t *testing.T) {
	t.Parallel()
	db := newFakeDB(execRule{contains: "INSERT INTO stock_movements", tag: "INSERT 0 0"})
	err := New(db, Capabilities{}).DecrementStock(context.Background(), orderID,
		[]checkout.StockLine{{ProductID: productA, Quantity: 2}})
	require.NoError(t, err)
	require.Zero(t, db.ran("UPDATE products"))
	require.Equal(t, 1, db.commits[1])
}

func TestSetPaymentReferenceMissingOrder(t *testing.T) {
	t.Parallel()
	db := newFakeDB(execRule{contains: "payment_reference", tag: "UPDATE 0"})
	s := New(db, Capabilities{})
	require.ErrorIs(t, s.SetPaymentReference(context.Background(), orderID, "mp-1"), order.ErrNotFound)
	require.ErrorIs(t, s.SetPaymentReference(context.Background(), "not-a-uuid", "mp-1"), order.ErrNotFound)
}

func TestApplyTransitionAppendsHistory(t *testing.T) {
	t.Parallel()
	db := newFakeDB(execRule{contains: "UPDATE orders SET status", tag: "UPDATE 1"})
	err := New(db, Capabilities{}).ApplyTransition(context.Background(), order.Transition{Entry: order.HistoryEntry{
		ID: historyID, OrderID: orderID, Field: order.FieldStatus, Actor: "admin",
		OldValue: "pending", NewValue: "confirmed", CreatedAt: time.Now().UTC(),
	}})
	require.NoError(t, err)
	require.Equal(t, 1, db.ran("INSERT INTO order_history"))
	require.Equal(t, 1, db.commits[1])
}
