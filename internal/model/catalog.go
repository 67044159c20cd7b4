package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusArchived ProductStatus = "ARCHIVED"
)

// Product is a catalog item. Stock is a denormalized counter written only by the stock ledger.
type Product struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string           `gorm:"type:varchar(255);not null" json:"name"`
	Slug              string           `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	SKU               string           `gorm:"type:varchar(100);index" json:"sku,omitempty"`
	BasePrice         decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"base_price"`
	Stock             int              `gorm:"type:int;not null;default:0" json:"stock"`
	LowStockThreshold *int             `gorm:"type:int" json:"low_stock_threshold,omitempty"`
	HasVariants       bool             `gorm:"not null" json:"has_variants"`
	Status            ProductStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	Variants          []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	DeletedAt         gorm.DeletedAt   `gorm:"index" json:"-"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductVariant carries its own stock counter, independent of the parent product's.
type ProductVariant struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID         uuid.UUID        `gorm:"type:uuid;not null;index" json:"product_id"`
	Product           *Product         `gorm:"foreignKey:ProductID" json:"-"`
	Name              string           `gorm:"type:varchar(255);not null" json:"name"`
	SKU               string           `gorm:"type:varchar(100);index" json:"sku,omitempty"`
	Price             *decimal.Decimal `gorm:"type:decimal(12,2)" json:"price,omitempty"`
	Stock             int              `gorm:"type:int;not null;default:0" json:"stock"`
	LowStockThreshold *int             `gorm:"type:int" json:"low_stock_threshold,omitempty"`
	IsActive          bool             `gorm:"not null" json:"is_active"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	DeletedAt         gorm.DeletedAt   `gorm:"index" json:"-"`
}

func (v *ProductVariant) BeforeCreate(tx *gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// EffectivePrice falls back to the parent's base price.
func (v *ProductVariant) EffectivePrice(parent *Product) decimal.Decimal {
	if v.Price != nil {
		return *v.Price
	}
	if parent != nil {
		return parent.BasePrice
	}
	return decimal.Zero
}
