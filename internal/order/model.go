package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus is tracked separately from fulfilment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethod is the payment option chosen at checkout.
type PaymentMethod string

const (
	MethodPix            PaymentMethod = "pix"
	MethodCard           PaymentMethod = "card"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	MethodManual         PaymentMethod = "manual"
)

// Field names the column a history entry refers to.
type Field string

const (
	FieldStatus        Field = "status"
	FieldPaymentStatus Field = "payment_status"
)

// Address is the shipping address snapshot stored with the order.
type Address struct {
	Recipient  string `json:"recipient" validate:"required,max=120"`
	Street     string `json:"street" validate:"required,max=200"`
	Number     string `json:"number" validate:"max=20"`
	Complement string `json:"complement,omitempty" validate:"max=120"`
	District   string `json:"district,omitempty" validate:"max=120"`
	City       string `json:"city" validate:"required,max=120"`
	State      string `json:"state" validate:"required,len=2"`
	PostalCode string `json:"postalCode" validate:"required,max=9"`
	Phone      string `json:"phone,omitempty" validate:"max=20"`
}

// Item snapshots a purchased line. Price fields never change after creation.
type Item struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"orderId"`
	ProductID         string          `json:"productId"`
	ProductName       string          `json:"productName"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	OriginalUnitPrice decimal.Decimal `json:"originalUnitPrice"`
	DiscountPercent   decimal.Decimal `json:"discountPercent"`
	PromotionID       *string         `json:"promotionId,omitempty"`
	PromotionName     *string         `json:"promotionName,omitempty"`
	Subtotal          decimal.Decimal `json:"subtotal"`
}

// Order is the persisted result of a checkout.
type Order struct {
	ID               string          `json:"id"`
	StoreID          string          `json:"storeId"`
	UserID           string          `json:"userId"`
	Status           Status          `json:"status"`
	PaymentStatus    PaymentStatus   `json:"paymentStatus"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	OriginalSubtotal decimal.Decimal `json:"originalSubtotal"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
	ShippingCost     decimal.Decimal `json:"shippingCost"`
	ShippingMode     string          `json:"shippingMode"`
	Total            decimal.Decimal `json:"total"`
	ShippingAddress  Address         `json:"shippingAddress"`
	TrackingNumber   *string         `json:"trackingNumber,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Items            []Item          `json:"items,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// HistoryEntry is one append-only record of a status change.
type HistoryEntry struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Field     Field     `json:"field"`
	Actor     string    `json:"actor"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
