package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AdjustmentType string

const (
	AdjustmentIncrease    AdjustmentType = "INCREASE"
	AdjustmentDecrease    AdjustmentType = "DECREASE"
	AdjustmentSale        AdjustmentType = "SALE"
	AdjustmentReturn      AdjustmentType = "RETURN"
	AdjustmentRestock     AdjustmentType = "RESTOCK"
	AdjustmentCorrection  AdjustmentType = "CORRECTION"
	AdjustmentDamage      AdjustmentType = "DAMAGE"
	AdjustmentExpired     AdjustmentType = "EXPIRED"
	AdjustmentTransferIn  AdjustmentType = "TRANSFER_IN"
	AdjustmentTransferOut AdjustmentType = "TRANSFER_OUT"
	AdjustmentInitial     AdjustmentType = "INITIAL"
)

var AdjustmentTypes = []AdjustmentType{
	AdjustmentIncrease,
	AdjustmentDecrease,
	AdjustmentSale,
	AdjustmentReturn,
	AdjustmentRestock,
	AdjustmentCorrection,
	AdjustmentDamage,
	AdjustmentExpired,
	AdjustmentTransferIn,
	AdjustmentTransferOut,
	AdjustmentInitial,
}

func (t AdjustmentType) Valid() bool {
	for _, known := range AdjustmentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// StockAdjustment is one immutable ledger row. NewStock == PreviousStock + Quantity.
// A row with VariantID set targets the variant counter; ProductID then refers to the parent.
type StockAdjustment struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID     *uuid.UUID     `gorm:"type:uuid;index" json:"product_id,omitempty"`
	VariantID     *uuid.UUID     `gorm:"type:uuid;index" json:"variant_id,omitempty"`
	ProductName   string         `gorm:"type:varchar(255)" json:"product_name,omitempty"` // snapshot at write time
	VariantName   string         `gorm:"type:varchar(255)" json:"variant_name,omitempty"` // snapshot at write time
	Type          AdjustmentType `gorm:"type:varchar(20);not null;index" json:"type"`
	Quantity      int            `gorm:"type:int;not null" json:"quantity"`
	PreviousStock int            `gorm:"type:int;not null" json:"previous_stock"`
	NewStock      int            `gorm:"type:int;not null" json:"new_stock"`
	OrderID       *uuid.UUID     `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Reason        string         `gorm:"type:text" json:"reason,omitempty"`
	Notes         string         `gorm:"type:text" json:"notes,omitempty"`
	AdjustedBy    string         `gorm:"type:varchar(255)" json:"adjusted_by,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

func (a *StockAdjustment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// BeforeUpdate refuses any in-place edit of a ledger row.
func (a *StockAdjustment) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

func (a *StockAdjustment) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}
