package repository

import (
	"context"
	"errors"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VariantRepository interface {
	Create(ctx context.Context, variant *model.ProductVariant) error
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ProductVariant, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, includeDeleted bool) ([]model.ProductVariant, error)
	// FindByIDForUpdate locks the variant row and loads its parent for name snapshots.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.ProductVariant, error)
	UpdateStock(ctx context.Context, id uuid.UUID, stock int) error
}

type variantRepository struct {
	db *gorm.DB
}

func NewVariantRepository(db *gorm.DB) VariantRepository {
	return &variantRepository{db: db}
}

func (r *variantRepository) Create(ctx context.Context, variant *model.ProductVariant) error {
	return GetDB(ctx, r.db).Create(variant).Error
}

func (r *variantRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	delete(fields, "stock")
	if len(fields) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.ProductVariant{}).Where("id = ?", id).Updates(fields).Error
}

func (r *variantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.ProductVariant{}).Error
}

func (r *variantRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ProductVariant, error) {
	var variant model.ProductVariant
	if err := GetDB(ctx, r.db).Preload("Product").First(&variant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *variantRepository) ListByProduct(ctx context.Context, productID uuid.UUID, includeDeleted bool) ([]model.ProductVariant, error) {
	var variants []model.ProductVariant
	db := GetDB(ctx, r.db)
	if includeDeleted {
		db = db.Unscoped()
	}
	err := db.Where("product_id = ?", productID).Order("created_at asc").Find(&variants).Error
	return variants, err
}

func (r *variantRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.ProductVariant, error) {
	var variant model.ProductVariant
	db := GetDB(ctx, r.db)
	if includeDeleted {
		db = db.Unscoped()
	}
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&variant).Error; err != nil {
		return nil, err
	}

	var parent model.Product
	err := GetDB(ctx, r.db).Unscoped().First(&parent, "id = ?", variant.ProductID).Error
	switch {
	case err == nil:
		variant.Product = &parent
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return &variant, nil
}

func (r *variantRepository) UpdateStock(ctx context.Context, id uuid.UUID, stock int) error {
	return GetDB(ctx, r.db).Unscoped().Model(&model.ProductVariant{}).Where("id = ?", id).Update("stock", stock).Error
}
