package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdjustmentFilter narrows ledger history queries. Zero values are ignored.
type AdjustmentFilter struct {
	ProductID *uuid.UUID
	VariantID *uuid.UUID
	// AnyOfVariants widens ProductID to also match rows of these variants.
	AnyOfVariants []uuid.UUID
	OrderID       *uuid.UUID
	Type          model.AdjustmentType
	From          *time.Time
	To            *time.Time
}

// StockAdjustmentRepository is insert-only; ledger rows are never updated or deleted.
type StockAdjustmentRepository interface {
	Create(ctx context.Context, adj *model.StockAdjustment) error
	List(ctx context.Context, filter AdjustmentFilter, offset, limit int) ([]model.StockAdjustment, int64, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]model.StockAdjustment, error)
	// LatestForProduct returns the newest row targeting the product's own counter.
	LatestForProduct(ctx context.Context, productID uuid.UUID) (*model.StockAdjustment, error)
	LatestForVariant(ctx context.Context, variantID uuid.UUID) (*model.StockAdjustment, error)
}

type stockAdjustmentRepository struct {
	db *gorm.DB
}

func NewStockAdjustmentRepository(db *gorm.DB) StockAdjustmentRepository {
	return &stockAdjustmentRepository{db: db}
}

func (r *stockAdjustmentRepository) Create(ctx context.Context, adj *model.StockAdjustment) error {
	return GetDB(ctx, r.db).Create(adj).Error
}

func (r *stockAdjustmentRepository) List(ctx context.Context, filter AdjustmentFilter, offset, limit int) ([]model.StockAdjustment, int64, error) {
	var rows []model.StockAdjustment
	var total int64

	db := GetDB(ctx, r.db).Model(&model.StockAdjustment{})
	switch {
	case filter.ProductID != nil && len(filter.AnyOfVariants) > 0:
		db = db.Where("product_id = ? OR variant_id IN ?", *filter.ProductID, filter.AnyOfVariants)
	case filter.ProductID != nil:
		db = db.Where("product_id = ?", *filter.ProductID)
	}
	if filter.VariantID != nil {
		db = db.Where("variant_id = ?", *filter.VariantID)
	}
	if filter.OrderID != nil {
		db = db.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Type != "" {
		db = db.Where("type = ?", filter.Type)
	}
	if filter.From != nil {
		db = db.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("created_at <= ?", *filter.To)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}

func (r *stockAdjustmentRepository) ListBetween(ctx context.Context, from, to time.Time) ([]model.StockAdjustment, error) {
	var rows []model.StockAdjustment
	err := GetDB(ctx, r.db).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Order("created_at asc").
		Find(&rows).Error
	return rows, err
}

func (r *stockAdjustmentRepository) LatestForProduct(ctx context.Context, productID uuid.UUID) (*model.StockAdjustment, error) {
	var adj model.StockAdjustment
	if err := GetDB(ctx, r.db).
		Where("product_id = ? AND variant_id IS NULL", productID).
		Order("created_at desc").
		First(&adj).Error; err != nil {
		return nil, err
	}
	return &adj, nil
}

func (r *stockAdjustmentRepository) LatestForVariant(ctx context.Context, variantID uuid.UUID) (*model.StockAdjustment, error) {
	var adj model.StockAdjustment
	if err := GetDB(ctx, r.db).
		Where("variant_id = ?", variantID).
		Order("created_at desc").
		First(&adj).Error; err != nil {
		return nil, err
	}
	return &adj, nil
}
