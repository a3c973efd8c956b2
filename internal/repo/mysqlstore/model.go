package mysqlstore

import (
	"time"

	"github.com/shopspring/decimal"
)

type storeModel struct {
	ID                    string           `gorm:"primaryKey;size:36"`
	Name                  string           `gorm:"size:200;not null"`
	City                  string           `gorm:"size:120;not null;default:''"`
	PixKey                *string          `gorm:"size:77"`
	ShippingFixedPrice    *decimal.Decimal `gorm:"type:decimal(12,2)"`
	ShippingNegotiate     bool             `gorm:"not null;default:false"`
	ShippingFreeThreshold *decimal.Decimal `gorm:"type:decimal(12,2)"`
	CreatedAt             time.Time
}

func (storeModel) TableName() string { return "stores" }

type productModel struct {
	ID        string          `gorm:"primaryKey;size:36"`
	StoreID   string          `gorm:"size:36;not null;index"`
	Name      string          `gorm:"size:200;not null"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Stock     *int
	Active    bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (productModel) TableName() string { return "products" }

// promotionModel always carries applies_to; product_id is kept for rows that
// predate the JSON list.
type promotionModel struct {
	ID            string          `gorm:"primaryKey;size:36"`
	StoreID       string          `gorm:"size:36;not null;index:promotions_store_window,priority:1"`
	Name          string          `gorm:"size:200;not null"`
	ProductID     *string         `gorm:"size:36"`
	AppliesTo     *string         `gorm:"type:json"`
	DiscountType  string          `gorm:"size:20;not null"`
	DiscountValue decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	StartsAt      time.Time       `gorm:"not null;index:promotions_store_window,priority:2"`
	EndsAt        time.Time       `gorm:"not null"`
	Active        bool            `gorm:"not null;default:true"`
	ShowTimer     bool            `gorm:"not null;default:false"`
	CreatedAt     time.Time
}

func (promotionModel) TableName() string { return "promotions" }

type cartLineModel struct {
	UserID    string `gorm:"primaryKey;size:64"`
	ProductID string `gorm:"primaryKey;size:36"`
	Quantity  int    `gorm:"not null"`
	CreatedAt time.Time
}

func (cartLineModel) TableName() string { return "cart_lines" }

type orderModel struct {
	ID               string          `gorm:"primaryKey;size:36"`
	StoreID          string          `gorm:"size:36;not null"`
	UserID           string          `gorm:"size:64;not null;index:orders_user_created,priority:1"`
	Status           string          `gorm:"size:20;not null"`
	PaymentStatus    string          `gorm:"size:20;not null"`
	PaymentMethod    string          `gorm:"size:20;not null"`
	PaymentReference *string         `gorm:"size:64"`
	OriginalSubtotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ShippingCost     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ShippingMode     string          `gorm:"size:20;not null"`
	Total            decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ShippingAddress  string          `gorm:"type:json;not null"`
	TrackingNumber   *string         `gorm:"size:64"`
	Notes            string          `gorm:"type:text"`
	CreatedAt        time.Time       `gorm:"index:orders_user_created,priority:2"`
	UpdatedAt        time.Time

	Items []orderItemModel `gorm:"foreignKey:OrderID"`
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID                string          `gorm:"primaryKey;size:36"`
	OrderID           string          `gorm:"size:36;not null;index"`
	ProductID         string          `gorm:"size:36;not null"`
	ProductName       string          `gorm:"size:200;not null"`
	Quantity          int             `gorm:"not null"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OriginalUnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountPercent   decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	PromotionID       *string         `gorm:"size:36"`
	PromotionName     *string         `gorm:"size:200"`
	Subtotal          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

func (orderItemModel) TableName() string { return "order_items" }

type historyModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	OrderID   string    `gorm:"size:36;not null;index"`
	Field     string    `gorm:"size:20;not null"`
	Actor     string    `gorm:"size:64;not null"`
	OldValue  string    `gorm:"size:20;not null"`
	NewValue  string    `gorm:"size:20;not null"`
	Note      string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

func (historyModel) TableName() string { return "order_history" }

type stockMovementModel struct {
	OrderID   string `gorm:"primaryKey;size:36"`
	ProductID string `gorm:"primaryKey;size:36"`
	Quantity  int    `gorm:"not null"`
	CreatedAt time.Time
}

func (stockMovementModel) TableName() string { return "stock_movements" }

type eventModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Topic       string    `gorm:"size:64;not null"`
	AggregateID string    `gorm:"size:64;not null;index"`
	Payload     string    `gorm:"type:json;not null"`
	OccurredAt  time.Time `gorm:"not null"`
}

func (eventModel) TableName() string { return "domain_events" }

func allModels() []any {
	return []any{
		&storeModel{}, &productModel{}, &promotionModel{}, &cartLineModel{},
		&orderModel{}, &orderItemModel{}, &historyModel{}, &stockMovementModel{}, &eventModel{},
	}
}
