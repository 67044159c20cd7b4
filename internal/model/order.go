package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrLedgerImmutable  = errors.New("stock adjustments are immutable")
	ErrHistoryImmutable = errors.New("order status history is append-only")
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
	OrderStatusOnHold     OrderStatus = "ON_HOLD"
)

var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusOnHold,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

var PaymentStatuses = []PaymentStatus{
	PaymentPending,
	PaymentPaid,
	PaymentFailed,
	PaymentRefunded,
	PaymentPartiallyRefunded,
}

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentCreditCard     PaymentMethod = "CREDIT_CARD"
	PaymentDebitCard      PaymentMethod = "DEBIT_CARD"
	PaymentBankTransfer   PaymentMethod = "BANK_TRANSFER"
	PaymentDigitalWallet  PaymentMethod = "DIGITAL_WALLET"
	PaymentOther          PaymentMethod = "OTHER"
)

// Order is a customer order. Total is always Subtotal + ShippingCost + TaxAmount - DiscountAmount.
type Order struct {
	ID              uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber     string               `gorm:"type:varchar(50);uniqueIndex;not null" json:"order_number"`
	AccountID       *uuid.UUID           `gorm:"type:uuid;index" json:"account_id,omitempty"`
	Status          OrderStatus          `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus   PaymentStatus        `gorm:"type:varchar(30);not null;index" json:"payment_status"`
	PaymentMethod   PaymentMethod        `gorm:"type:varchar(30)" json:"payment_method,omitempty"`
	CustomerName    string               `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail   string               `gorm:"type:varchar(255);not null;index" json:"customer_email"`
	CustomerPhone   string               `gorm:"type:varchar(50)" json:"customer_phone,omitempty"`
	ShippingAddress string               `gorm:"type:text" json:"shipping_address"`
	ShippingCity    string               `gorm:"type:varchar(100)" json:"shipping_city"`
	ShippingState   string               `gorm:"type:varchar(100)" json:"shipping_state,omitempty"`
	ShippingZip     string               `gorm:"type:varchar(20)" json:"shipping_zip,omitempty"`
	ShippingCountry string               `gorm:"type:varchar(100)" json:"shipping_country"`
	BillingAddress  string               `gorm:"type:text" json:"billing_address,omitempty"`
	BillingCity     string               `gorm:"type:varchar(100)" json:"billing_city,omitempty"`
	BillingState    string               `gorm:"type:varchar(100)" json:"billing_state,omitempty"`
	BillingZip      string               `gorm:"type:varchar(20)" json:"billing_zip,omitempty"`
	BillingCountry  string               `gorm:"type:varchar(100)" json:"billing_country,omitempty"`
	Subtotal        decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	ShippingCost    decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"shipping_cost"`
	TaxAmount       decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	DiscountAmount  decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"discount_amount"`
	Total           decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"total"`
	Notes           string               `gorm:"type:text" json:"notes,omitempty"`
	InternalNotes   string               `gorm:"type:text" json:"internal_notes,omitempty"`
	TrackingNumber  string               `gorm:"type:varchar(100)" json:"tracking_number,omitempty"`
	ShippingCarrier string               `gorm:"type:varchar(100)" json:"shipping_carrier,omitempty"`
	ShippedAt       *time.Time           `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time           `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	CreatedBy       string               `gorm:"type:varchar(255)" json:"created_by,omitempty"`
	Items           []OrderItem          `gorm:"foreignKey:OrderID" json:"items"`
	StatusHistory   []OrderStatusHistory `gorm:"foreignKey:OrderID" json:"status_history"`
	CreatedAt       time.Time            `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	DeletedAt       gorm.DeletedAt       `gorm:"index" json:"-"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// RecalculateTotal derives Total from the cost fields.
func (o *Order) RecalculateTotal() {
	o.Total = o.Subtotal.Add(o.ShippingCost).Add(o.TaxAmount).Sub(o.DiscountAmount)
}

// OrderItem is a line item with name snapshots taken when the order was placed.
type OrderItem struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID    *uuid.UUID      `gorm:"type:uuid;index" json:"product_id,omitempty"`
	VariantID    *uuid.UUID      `gorm:"type:uuid;index" json:"variant_id,omitempty"`
	ProductName  string          `gorm:"type:varchar(255);not null" json:"product_name"`
	ProductSKU   string          `gorm:"type:varchar(100)" json:"product_sku,omitempty"`
	ProductImage string          `gorm:"type:text" json:"product_image,omitempty"`
	VariantName  string          `gorm:"type:varchar(255)" json:"variant_name,omitempty"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Quantity     int             `gorm:"type:int;not null" json:"quantity"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// TracksStock reports whether the line refers to a stocked product or variant.
func (i *OrderItem) TracksStock() bool {
	return i.ProductID != nil || i.VariantID != nil
}

// OrderStatusHistory is one append-only row per status change.
type OrderStatusHistory struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"order_id"`
	FromStatus *OrderStatus `gorm:"type:varchar(20)" json:"from_status,omitempty"`
	ToStatus   OrderStatus  `gorm:"type:varchar(20);not null" json:"to_status"`
	Note       string       `gorm:"type:text" json:"note,omitempty"`
	ChangedBy  string       `gorm:"type:varchar(255)" json:"changed_by,omitempty"`
	CreatedAt  time.Time    `gorm:"index" json:"created_at"`
}

func (h *OrderStatusHistory) BeforeCreate(tx *gorm.DB) error {
	ensureID(&h.ID)
	return nil
}

func (h *OrderStatusHistory) BeforeUpdate(tx *gorm.DB) error {
	return ErrHistoryImmutable
}

func (h *OrderStatusHistory) BeforeDelete(tx *gorm.DB) error {
	return ErrHistoryImmutable
}
