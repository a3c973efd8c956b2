package repo

import (
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/promotion"
)

var (
	_ catalog.StoreReader          = (*Store)(nil)
	_ checkout.Repository          = (*Store)(nil)
	_ checkout.ReconcileRepository = (*Store)(nil)
	_ order.Repository             = (*Store)(nil)
	_ promotion.Repository         = (*Store)(nil)
	_ events.EventStore            = (*Store)(nil)
)
