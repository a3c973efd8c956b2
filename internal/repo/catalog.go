package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
)

// GetStore loads a store with its shipping and PIX settings.
func (s *Store) GetStore(ctx context.Context, id string) (catalog.Store, error) {
	sid, err := uuidValue(id)
	if err != nil {
		return catalog.Store{}, catalog.ErrStoreNotFound
	}
	var (
		st                catalog.Store
		fixed, threshold *string
	)
	err = s.DB.QueryRow(ctx, `
		SELECT id::text, name, city, COALESCE(pix_key, ''),
		       shipping_fixed_price::text, shipping_negotiate, shipping_free_threshold::text
		FROM stores WHERE id = $1`, sid).
		Scan(&st.ID, &st.Name, &st.City, &st.PixKey, &fixed, &st.Shipping.NegotiateExternally, &threshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Store{}, catalog.ErrStoreNotFound
	}
	if err != nil {
		return catalog.Store{}, fmt.Errorf("get store: %w", err)
	}
	if st.Shipping.FixedPrice, err = parseOptionalMoney(fixed); err != nil {
		return catalog.Store{}, err
	}
	if st.Shipping.FreeThreshold, err = parseOptionalMoney(threshold); err != nil {
		return catalog.Store{}, err
	}
	return st, nil
}

// GetProduct loads a product. A NULL stock column means stock is not tracked.
func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	pid, err := uuidValue(id)
	if err != nil {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	var (
		p     catalog.Product
		price string
	)
	err = s.DB.QueryRow(ctx, `
		SELECT id::text, store_id::text, name, price::text, stock, active
		FROM products WHERE id = $1`, pid).
		Scan(&p.ID, &p.StoreID, &p.Name, &price, &p.Stock, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("get product: %w", err)
	}
	if p.Price, err = parseMoney(price); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// ListCartLines returns every cart line of the user across stores, oldest first.
func (s *Store) ListCartLines(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT product_id::text, quantity
		FROM cart_lines WHERE user_id = $1
		ORDER BY created_at, product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()
	var lines []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
