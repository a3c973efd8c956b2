package mysqlstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/promotion"
	"github.com/noah-isme/toko-checkout/internal/shipping"
)

func toDomainStore(m storeModel) catalog.Store {
	st := catalog.Store{
		ID:   m.ID,
		Name: m.Name,
		City: m.City,
		Shipping: shipping.Settings{
			FixedPrice:          m.ShippingFixedPrice,
			NegotiateExternally: m.ShippingNegotiate,
			FreeThreshold:       m.ShippingFreeThreshold,
		},
	}
	if m.PixKey != nil {
		st.PixKey = *m.PixKey
	}
	return st
}

func toDomainProduct(m productModel) catalog.Product {
	return catalog.Product{ID: m.ID, StoreID: m.StoreID, Name: m.Name, Price: m.Price, Stock: m.Stock, Active: m.Active}
}

// productScope reads applies_to, falling back to the single product_id column.
func productScope(m promotionModel) ([]string, error) {
	if m.AppliesTo != nil && *m.AppliesTo != "" && *m.AppliesTo != "null" {
		var ids []string
		if err := json.Unmarshal([]byte(*m.AppliesTo), &ids); err != nil {
			return nil, fmt.Errorf("promotion %s: decode applies_to: %w", m.ID, err)
		}
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
		return out, nil
	}
	if m.ProductID != nil && *m.ProductID != "" {
		return []string{*m.ProductID}, nil
	}
	return nil, nil
}

func toDomainPromotion(m promotionModel) (promotion.Promotion, error) {
	scope, err := productScope(m)
	if err != nil {
		return promotion.Promotion{}, err
	}
	kind, err := pricing.ParseKind(m.DiscountType)
	if err != nil {
		return promotion.Promotion{}, fmt.Errorf("promotion %s: %w", m.ID, err)
	}
	return promotion.Promotion{
		ID:         m.ID,
		StoreID:    m.StoreID,
		Name:       m.Name,
		ProductIDs: scope,
		Discount:   pricing.Discount{Kind: kind, Value: m.DiscountValue},
		StartsAt:   m.StartsAt.UTC(),
		EndsAt:     m.EndsAt.UTC(),
		Active:     m.Active,
		ShowTimer:  m.ShowTimer,
		CreatedAt:  m.CreatedAt.UTC(),
	}, nil
}

func fromDomainPromotion(p promotion.Promotion) (promotionModel, error) {
	m := promotionModel{
		ID:            p.ID,
		StoreID:       p.StoreID,
		Name:          p.Name,
		DiscountType:  string(p.Discount.Kind),
		DiscountValue: p.Discount.Value,
		StartsAt:      p.StartsAt,
		EndsAt:        p.EndsAt,
		Active:        p.Active,
		ShowTimer:     p.ShowTimer,
		CreatedAt:     p.CreatedAt,
	}
	if len(p.ProductIDs) == 1 {
		id := p.ProductIDs[0]
		m.ProductID = &id
	}
	if len(p.ProductIDs) > 0 {
		raw, err := json.Marshal(p.ProductIDs)
		if err != nil {
			return promotionModel{}, err
		}
		scope := string(raw)
		m.AppliesTo = &scope
	}
	return m, nil
}

func fromDomainOrder(o order.Order) (orderModel, error) {
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return orderModel{}, err
	}
	m := orderModel{
		ID:               o.ID,
		StoreID:          o.StoreID,
		UserID:           o.UserID,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentMethod:    string(o.PaymentMethod),
		OriginalSubtotal: o.OriginalSubtotal,
		Subtotal:         o.Subtotal,
		DiscountAmount:   o.DiscountAmount,
		ShippingCost:     o.ShippingCost,
		ShippingMode:     o.ShippingMode,
		Total:            o.Total,
		ShippingAddress:  string(address),
		TrackingNumber:   o.TrackingNumber,
		Notes:            o.Notes,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	if o.PaymentReference != "" {
		ref := o.PaymentReference
		m.PaymentReference = &ref
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, orderItemModel{
			ID:                it.ID,
			OrderID:           o.ID,
			ProductID:         it.ProductID,
			ProductName:       it.ProductName,
			Quantity:          it.Quantity,
			UnitPrice:         it.UnitPrice,
			OriginalUnitPrice: it.OriginalUnitPrice,
			DiscountPercent:   it.DiscountPercent,
			PromotionID:       it.PromotionID,
			PromotionName:     it.PromotionName,
			Subtotal:          it.Subtotal,
		})
	}
	return m, nil
}

func toDomainOrder(m orderModel) (order.Order, error) {
	o := order.Order{
		ID:               m.ID,
		StoreID:          m.StoreID,
		UserID:           m.UserID,
		Status:           order.Status(m.Status),
		PaymentStatus:    order.PaymentStatus(m.PaymentStatus),
		PaymentMethod:    order.PaymentMethod(m.PaymentMethod),
		OriginalSubtotal: m.OriginalSubtotal,
		Subtotal:         m.Subtotal,
		DiscountAmount:   m.DiscountAmount,
		ShippingCost:     m.ShippingCost,
		ShippingMode:     m.ShippingMode,
		Total:            m.Total,
		TrackingNumber:   m.TrackingNumber,
		Notes:            m.Notes,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	if m.PaymentReference != nil {
		o.PaymentReference = *m.PaymentReference
	}
	if m.ShippingAddress != "" {
		if err := json.Unmarshal([]byte(m.ShippingAddress), &o.ShippingAddress); err != nil {
			return order.Order{}, fmt.Errorf("order %s: decode shipping address: %w", m.ID, err)
		}
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, order.Item{
			ID:                it.ID,
			OrderID:           it.OrderID,
			ProductID:         it.ProductID,
			ProductName:       it.ProductName,
			Quantity:          it.Quantity,
			UnitPrice:         it.UnitPrice,
			OriginalUnitPrice: it.OriginalUnitPrice,
			DiscountPercent:   it.DiscountPercent,
			PromotionID:       it.PromotionID,
			PromotionName:     it.PromotionName,
			Subtotal:          it.Subtotal,
		})
	}
	return o, nil
}

func toDomainHistory(m historyModel) order.HistoryEntry {
	return order.HistoryEntry{
		ID:        m.ID,
		OrderID:   m.OrderID,
		Field:     order.Field(m.Field),
		Actor:     m.Actor,
		OldValue:  m.OldValue,
		NewValue:  m.NewValue,
		Note:      m.Note,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func fromDomainHistory(h order.HistoryEntry) historyModel {
	return historyModel{
		ID:        h.ID,
		OrderID:   h.OrderID,
		Field:     string(h.Field),
		Actor:     h.Actor,
		OldValue:  h.OldValue,
		NewValue:  h.NewValue,
		Note:      h.Note,
		CreatedAt: h.CreatedAt,
	}
}

func fromDomainEvent(e events.Event) eventModel {
	payload := string(e.Payload)
	if payload == "" {
		payload = "null"
	}
	return eventModel{ID: e.ID, Topic: e.Topic, AggregateID: e.AggregateID, Payload: payload, OccurredAt: e.OccurredAt}
}
