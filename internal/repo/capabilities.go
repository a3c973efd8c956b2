package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/promotion"
)

// ScopeMode names how a deployment stores a promotion's product scope.
type ScopeMode string

const (
	// ScopeColumn keeps at most one product in promotions.product_id.
	ScopeColumn ScopeMode = "column"
	// ScopeJSON keeps a product id list in promotions.applies_to, falling back
	// to product_id for rows written before the column existed.
	ScopeJSON ScopeMode = "json"
)

// Capabilities describes optional schema features of the connected database.
type Capabilities struct {
	PromotionScope ScopeMode
	ShowTimer      bool
}

func (c Capabilities) normalized() Capabilities {
	if c.PromotionScope == "" {
		c.PromotionScope = ScopeColumn
	}
	return c
}

// ParseScopeMode validates a configured scope mode. Empty and "auto" mean the
// mode is probed from the schema.
func ParseScopeMode(s string) (ScopeMode, bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", false, nil
	case string(ScopeColumn):
		return ScopeColumn, true, nil
	case string(ScopeJSON):
		return ScopeJSON, true, nil
	default:
		return "", false, fmt.Errorf("unknown promotion scope mode %q", s)
	}
}

// Probe inspects information_schema once at startup. A non-empty forced mode
// overrides the detected promotion scope layout.
func Probe(ctx context.Context, db DB, forced string) (Capabilities, error) {
	mode, isForced, err := ParseScopeMode(forced)
	if err != nil {
		return Capabilities{}, err
	}
	rows, err := db.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'promotions'`)
	if err != nil {
		return Capabilities{}, fmt.Errorf("probe promotions columns: %w", err)
	}
	defer rows.Close()
	columns := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Capabilities{}, err
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return Capabilities{}, err
	}
	return detect(columns, mode, isForced)
}

func detect(columns map[string]bool, forced ScopeMode, isForced bool) (Capabilities, error) {
	caps := Capabilities{PromotionScope: ScopeColumn, ShowTimer: columns["show_timer"]}
	if columns["applies_to"] {
		caps.PromotionScope = ScopeJSON
	}
	if isForced {
		if forced == ScopeJSON && !columns["applies_to"] {
			return Capabilities{}, fmt.Errorf("promotion scope forced to %s but promotions.applies_to is missing", forced)
		}
		caps.PromotionScope = forced
	}
	return caps, nil
}

// decodeScope turns the stored scope columns into a product id list. An empty
// list means the promotion is store-wide.
func decodeScope(mode ScopeMode, productID *string, appliesTo []byte) ([]string, error) {
	if mode == ScopeJSON && len(appliesTo) > 0 && string(appliesTo) != "null" {
		var ids []string
		if err := json.Unmarshal(appliesTo, &ids); err != nil {
			return nil, fmt.Errorf("decode applies_to: %w", err)
		}
		out := ids[:0]
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
		return out, nil
	}
	if productID != nil && *productID != "" {
		return []string{*productID}, nil
	}
	return nil, nil
}

// encodeScope is the inverse of decodeScope. In column mode a promotion may
// name at most one product.
func encodeScope(mode ScopeMode, ids []string) (productID *string, appliesTo []byte, err error) {
	if len(ids) == 1 {
		id := ids[0]
		productID = &id
	}
	switch mode {
	case ScopeJSON:
		if len(ids) > 0 {
			appliesTo, err = json.Marshal(ids)
			if err != nil {
				return nil, nil, err
			}
		}
	default:
		if len(ids) > 1 {
			return nil, nil, promotion.ErrScopeUnsupported
		}
	}
	return productID, appliesTo, nil
}
