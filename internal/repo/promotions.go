package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/promotion"
)

func (s *Store) promotionSelect() string {
	appliesTo := "NULL::text"
	if s.Caps.PromotionScope == ScopeJSON {
		appliesTo = "applies_to::text"
	}
	showTimer := "FALSE"
	if s.Caps.ShowTimer {
		showTimer = "show_timer"
	}
	return `SELECT id::text, store_id::text, name, product_id::text, ` + appliesTo + `,
		       discount_type, discount_value::text, starts_at, ends_at, active, ` + showTimer + `, created_at
		FROM promotions`
}

// ActivePromotions returns the enabled promotions of a store whose window
// contains now, newest first. Scopes are normalized to product id lists.
func (s *Store) ActivePromotions(ctx context.Context, storeID string, now time.Time) ([]promotion.Promotion, error) {
	sid, err := uuidValue(storeID)
	if err != nil {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, s.promotionSelect()+`
		WHERE store_id = $1 AND active AND starts_at <= $2 AND ends_at >= $2
		ORDER BY created_at DESC, id`, sid, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()
	var out []promotion.Promotion
	for rows.Next() {
		var (
			p         promotion.Promotion
			productID *string
			appliesTo *string
			kind      string
			value     string
		)
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Name, &productID, &appliesTo,
			&kind, &value, &p.StartsAt, &p.EndsAt, &p.Active, &p.ShowTimer, &p.CreatedAt); err != nil {
			return nil, err
		}
		var raw []byte
		if appliesTo != nil {
			raw = []byte(*appliesTo)
		}
		if p.ProductIDs, err = decodeScope(s.Caps.PromotionScope, productID, raw); err != nil {
			return nil, fmt.Errorf("promotion %s: %w", p.ID, err)
		}
		if p.Discount.Kind, err = pricing.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("promotion %s: %w", p.ID, err)
		}
		if p.Discount.Value, err = parseMoney(value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePromotion stores a validated promotion. Multi-product scopes need the
// applies_to column and fail with promotion.ErrScopeUnsupported otherwise.
func (s *Store) CreatePromotion(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error) {
	productID, appliesTo, err := encodeScope(s.Caps.PromotionScope, p.ProductIDs)
	if err != nil {
		return promotion.Promotion{}, err
	}
	id, err := uuidValue(p.ID)
	if err != nil {
		return promotion.Promotion{}, fmt.Errorf("promotion id: %w", err)
	}
	sid, err := uuidValue(p.StoreID)
	if err != nil {
		return promotion.Promotion{}, fmt.Errorf("store id: %w", err)
	}
	args := []any{id, sid, p.Name, productID, string(p.Discount.Kind), p.Discount.Value.String(),
		p.StartsAt, p.EndsAt, p.Active, p.CreatedAt}
	columns := "id, store_id, name, product_id, discount_type, discount_value, starts_at, ends_at, active, created_at"
	values := "$1, $2, $3, $4::uuid, $5, $6::numeric, $7, $8, $9, $10"
	if s.Caps.PromotionScope == ScopeJSON {
		var scope *string
		if appliesTo != nil {
			v := string(appliesTo)
			scope = &v
		}
		args = append(args, scope)
		columns += ", applies_to"
		values += fmt.Sprintf(", $%d::jsonb", len(args))
	}
	if s.Caps.ShowTimer {
		args = append(args, p.ShowTimer)
		columns += ", show_timer"
		values += fmt.Sprintf(", $%d", len(args))
	}
	if _, err := s.DB.Exec(ctx, `INSERT INTO promotions (`+columns+`) VALUES (`+values+`)`, args...); err != nil {
		return promotion.Promotion{}, fmt.Errorf("insert promotion: %w", err)
	}
	if !s.Caps.ShowTimer {
		p.ShowTimer = false
	}
	return p, nil
}
