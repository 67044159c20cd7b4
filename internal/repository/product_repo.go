package repository

import (
	"context"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search string
	Status model.ProductStatus
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindBySlug(ctx context.Context, slug string) (*model.Product, error)
	List(ctx context.Context, filter ProductFilter, offset, limit int) ([]model.Product, int64, error)
	// ListWithVariants returns every live product with its live variants.
	ListWithVariants(ctx context.Context) ([]model.Product, error)
	// FindByIDForUpdate locks the product row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.Product, error)
	UpdateStock(ctx context.Context, id uuid.UUID, stock int) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Create(product).Error
}

// UpdateFields never writes the stock column.
func (r *productRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	delete(fields, "stock")
	if len(fields) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.Product{}).Where("id = ?", id).Updates(fields).Error
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Product{}).Error
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Preload("Variants").First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindBySlug(ctx context.Context, slug string) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Where("slug = ?", slug).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) List(ctx context.Context, filter ProductFilter, offset, limit int) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Product{})
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("LOWER(name) LIKE LOWER(?) OR LOWER(sku) LIKE LOWER(?)", like, like)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *productRepository) ListWithVariants(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := GetDB(ctx, r.db).
		Preload("Variants").
		Order("name asc").
		Find(&products).Error
	return products, err
}

func (r *productRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.Product, error) {
	var product model.Product
	db := GetDB(ctx, r.db)
	if includeDeleted {
		db = db.Unscoped()
	}
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) UpdateStock(ctx context.Context, id uuid.UUID, stock int) error {
	return GetDB(ctx, r.db).Unscoped().Model(&model.Product{}).Where("id = ?", id).Update("stock", stock).Error
}
