// Package mysqlstore persists the checkout domain in MySQL through gorm.
// Promotion scopes are always stored as a JSON product id list.
package mysqlstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noah-isme/toko-checkout/internal/cart"
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

// Store is the gorm implementation of the checkout repositories.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// NormalizeDSN forces the driver options the store relies on: parsed
// DATETIME columns in UTC.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Open connects to MySQL and optionally creates the schema.
func Open(dsn string, migrate bool, log zerolog.Logger) (*gorm.DB, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(mysql.Open(normalized), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if migrate {
		if err := db.AutoMigrate(allModels()...); err != nil {
			return nil, fmt.Errorf("migrate mysql: %w", err)
		}
		log.Info().Msg("mysql schema migrated")
	}
	return db, nil
}

// GetStore loads a store with its shipping and PIX settings.
func (s *Store) GetStore(ctx context.Context, id string) (catalog.Store, error) {
	var m storeModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.Store{}, catalog.ErrStoreNotFound
	}
	if err != nil {
		return catalog.Store{}, fmt.Errorf("get store: %w", err)
	}
	return toDomainStore(m), nil
}

// GetProduct loads a product. A NULL stock means stock is not tracked.
func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	var m productModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("get product: %w", err)
	}
	return toDomainProduct(m), nil
}

// ListCartLines returns every cart line of the user across stores, oldest first.
func (s *Store) ListCartLines(ctx context.Context, userID string) ([]cart.Line, error) {
	var rows []cartLineModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at, product_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	lines := make([]cart.Line, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, cart.Line{ProductID: r.ProductID, Quantity: r.Quantity})
	}
	return lines, nil
}

// ActivePromotions returns the enabled promotions of a store whose window contains now.
func (s *Store) ActivePromotions(ctx context.Context, storeID string, now time.Time) ([]promotion.Promotion, error) {
	var rows []promotionModel
	err := s.db.WithContext(ctx).
		Where("store_id = ? AND active = ? AND starts_at <= ? AND ends_at >= ?", storeID, true, now.UTC(), now.UTC()).
		Order("created_at DESC, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	out := make([]promotion.Promotion, 0, len(rows))
	for _, r := range rows {
		p, err := toDomainPromotion(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// CreatePromotion stores a validated promotion.
func (s *Store) CreatePromotion(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error) {
	m, err := fromDomainPromotion(p)
	if err != nil {
		return promotion.Promotion{}, err
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return promotion.Promotion{}, fmt.Errorf("insert promotion: %w", err)
	}
	return p, nil
}

// Commit stores the order, then runs the stock and cart steps in nested
// transactions, which gorm maps to savepoints. A stock shortfall rolls back
// everything; other step failures are reported in the result.
func (s *Store) Commit(ctx context.Context, m checkout.Mutation) (checkout.CommitResult, error) {
	model, err := fromDomainOrder(m.Order)
	if err != nil {
		return checkout.CommitResult{}, err
	}
	var res checkout.CommitResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&model).Error; err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if len(model.Items) > 0 {
			if err := tx.CreateInBatches(model.Items, 100).Error; err != nil {
				return fmt.Errorf("insert order items: %w", err)
			}
		}
		if len(m.Stock) > 0 {
			err := tx.Transaction(func(sp *gorm.DB) error {
				return decrementStock(sp, m.Order.ID, m.Stock)
			})
			if errors.Is(err, cart.ErrInsufficientStock) {
				return err
			}
			res.StockErr = err
		}
		if len(m.CartProductIDs) > 0 {
			res.CartErr = tx.Transaction(func(sp *gorm.DB) error {
				return deleteCartLines(sp, m.CartUserID, m.CartStoreID, m.CartProductIDs)
			})
		}
		return nil
	})
	if err != nil {
		return checkout.CommitResult{}, err
	}
	return res, nil
}

func decrementStock(tx *gorm.DB, orderID string, lines []checkout.StockLine) error {
	sorted := append([]checkout.StockLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	for _, l := range sorted {
		mv := stockMovementModel{OrderID: orderID, ProductID: l.ProductID, Quantity: l.Quantity}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&mv)
		if res.Error != nil {
			return fmt.Errorf("record stock movement: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		res = tx.Model(&productModel{}).
			Where("id = ? AND stock IS NOT NULL AND stock >= ?", l.ProductID, l.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", l.Quantity))
		if res.Error != nil {
			return fmt.Errorf("decrement stock: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &cart.LineError{ProductID: l.ProductID, Err: cart.ErrInsufficientStock}
		}
	}
	return nil
}

func deleteCartLines(tx *gorm.DB, userID, storeID string, productIDs []string) error {
	storeProducts := tx.Model(&productModel{}).Select("id").Where("store_id = ?", storeID)
	err := tx.Where("user_id = ? AND product_id IN ? AND product_id IN (?)", userID, productIDs, storeProducts).
		Delete(&cartLineModel{}).Error
	if err != nil {
		return fmt.Errorf("delete cart lines: %w", err)
	}
	return nil
}

// DecrementStock replays stock decrements for an order in their own transaction.
func (s *Store) DecrementStock(ctx context.Context, orderID string, lines []checkout.StockLine) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return decrementStock(tx, orderID, lines)
	})
}

// DeleteCartLines removes the given products of one store from the user's cart.
func (s *Store) DeleteCartLines(ctx context.Context, userID, storeID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	return deleteCartLines(s.db.WithContext(ctx), userID, storeID, productIDs)
}

// SetPaymentReference stores the gateway identifier of the order's payment.
func (s *Store) SetPaymentReference(ctx context.Context, orderID, reference string) error {
	res := s.db.WithContext(ctx).Model(&orderModel{}).Where("id = ?", orderID).
		Updates(map[string]any{"payment_reference": reference, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("set payment reference: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return order.ErrNotFound
	}
	return nil
}

// GetOrder loads an order with its items.
func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var m orderModel
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_name, id") }).
		Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("get order: %w", err)
	}
	return toDomainOrder(m)
}

// ListOrders returns a page of the user's orders, newest first, without items.
func (s *Store) ListOrders(ctx context.Context, userID string, limit, offset int) ([]order.Order, int, error) {
	var total int64
	q := s.db.WithContext(ctx).Model(&orderModel{}).Where("user_id = ?", userID).Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	var rows []orderModel
	if err := q.Order("created_at DESC, id").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	out := make([]order.Order, 0, len(rows))
	for _, r := range rows {
		o, err := toDomainOrder(r)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, int(total), nil
}

// History returns the change log of an order, oldest first.
func (s *Store) History(ctx context.Context, orderID string) ([]order.HistoryEntry, error) {
	var rows []historyModel
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list order history: %w", err)
	}
	out := make([]order.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDomainHistory(r))
	}
	return out, nil
}

// ApplyTransition compare-and-sets the field named by the entry and appends
// the history entry in one transaction.
func (s *Store) ApplyTransition(ctx context.Context, t order.Transition) error {
	updates := map[string]any{"updated_at": t.Entry.CreatedAt}
	var column string
	switch t.Entry.Field {
	case order.FieldStatus:
		column = "status"
		if t.TrackingNumber != nil {
			updates["tracking_number"] = *t.TrackingNumber
		}
	case order.FieldPaymentStatus:
		column = "payment_status"
	default:
		return fmt.Errorf("unknown order field %q", t.Entry.Field)
	}
	updates[column] = t.Entry.NewValue
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&orderModel{}).Where("id = ? AND "+column+" = ?", t.Entry.OrderID, t.Entry.OldValue).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&orderModel{}).Where("id = ?", t.Entry.OrderID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return order.ErrNotFound
			}
			return order.ErrConflict
		}
		h := fromDomainHistory(t.Entry)
		if err := tx.Create(&h).Error; err != nil {
			return fmt.Errorf("append order history: %w", err)
		}
		return nil
	})
}

// InsertDomainEvent appends an event to the outbox table.
func (s *Store) InsertDomainEvent(ctx context.Context, e events.Event) (events.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	m := fromDomainEvent(e)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return events.Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return e, nil
}
