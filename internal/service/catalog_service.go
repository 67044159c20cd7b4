package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"backoffice/internal/database"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateProductInput struct {
	Name              string
	Slug              string
	SKU               string
	BasePrice         decimal.Decimal
	InitialStock      int
	LowStockThreshold *int
	Status            model.ProductStatus
	Actor             Actor
}

type UpdateProductInput struct {
	Name              *string
	Slug              *string
	SKU               *string
	BasePrice         *decimal.Decimal
	LowStockThreshold *int
	Status            *model.ProductStatus
	Actor             Actor
}

type CreateVariantInput struct {
	ProductID         uuid.UUID
	Name              string
	SKU               string
	Price             *decimal.Decimal
	InitialStock      int
	LowStockThreshold *int
	IsActive          *bool
	Actor             Actor
}

type UpdateVariantInput struct {
	Name              *string
	SKU               *string
	Price             *decimal.Decimal
	LowStockThreshold *int
	IsActive          *bool
	Actor             Actor
}

// CatalogService manages the products and variants the ledger counts. It never
// writes a stock column directly: initial stock goes through the ledger.
type CatalogService interface {
	CreateProduct(ctx context.Context, in CreateProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in UpdateProductInput) (*model.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID, actor Actor) error
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	ListProducts(ctx context.Context, filter repository.ProductFilter, page pagination.Params) ([]model.Product, int64, error)
	CreateVariant(ctx context.Context, in CreateVariantInput) (*model.ProductVariant, error)
	UpdateVariant(ctx context.Context, id uuid.UUID, in UpdateVariantInput) (*model.ProductVariant, error)
	DeleteVariant(ctx context.Context, id uuid.UUID, actor Actor) error
}

type catalogService struct {
	productRepo repository.ProductRepository
	variantRepo repository.VariantRepository
	auditRepo   repository.AuditRepository
	ledger      StockLedger
	txManager   repository.TransactionManager
}

func NewCatalogService(
	productRepo repository.ProductRepository,
	variantRepo repository.VariantRepository,
	auditRepo repository.AuditRepository,
	ledger StockLedger,
	txManager repository.TransactionManager,
) CatalogService {
	return &catalogService{
		productRepo: productRepo,
		variantRepo: variantRepo,
		auditRepo:   auditRepo,
		ledger:      ledger,
		txManager:   txManager,
	}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of other characters into one dash.
func Slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func validProductStatus(s model.ProductStatus) bool {
	switch s {
	case model.ProductStatusActive, model.ProductStatusDraft, model.ProductStatusArchived:
		return true
	}
	return false
}

func uniqueErr(err error, field string) error {
	if database.IsUniqueViolation(err) {
		return validation(field, "already exists")
	}
	return err
}

func (s *catalogService) CreateProduct(ctx context.Context, in CreateProductInput) (*model.Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validation("name", "is required")
	}
	if in.BasePrice.IsNegative() {
		return nil, validation("base_price", "must not be negative")
	}
	if in.InitialStock < 0 {
		return nil, validation("stock", "must not be negative")
	}
	if in.Status == "" {
		in.Status = model.ProductStatusDraft
	}
	if !validProductStatus(in.Status) {
		return nil, validation("status", "unknown product status %q", in.Status)
	}
	slug := in.Slug
	if slug == "" {
		slug = Slugify(in.Name)
	}

	product := &model.Product{
		Name:              in.Name,
		Slug:              slug,
		SKU:               in.SKU,
		BasePrice:         in.BasePrice,
		LowStockThreshold: in.LowStockThreshold,
		Status:            in.Status,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Create(txCtx, product); err != nil {
			return uniqueErr(fmt.Errorf("failed to create product: %w", err), "slug")
		}
		if in.InitialStock > 0 {
			if _, err := s.ledger.Adjust(txCtx, AdjustInput{
				Target: ProductTarget(product.ID),
				Delta:  in.InitialStock,
				Type:   model.AdjustmentInitial,
				Reason: "Initial stock",
				Actor:  in.Actor,
			}); err != nil {
				return err
			}
		}
		return writeAudit(txCtx, s.auditRepo, in.Actor, model.ActionCreateProduct, product.ID.String(), product.Name,
			map[string]interface{}{"slug": product.Slug, "sku": product.SKU, "initial_stock": in.InitialStock})
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *catalogService) UpdateProduct(ctx context.Context, id uuid.UUID, in UpdateProductInput) (*model.Product, error) {
	fields := map[string]interface{}{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validation("name", "must not be empty")
		}
		fields["name"] = *in.Name
	}
	if in.Slug != nil {
		fields["slug"] = Slugify(*in.Slug)
	}
	if in.SKU != nil {
		fields["sku"] = *in.SKU
	}
	if in.BasePrice != nil {
		if in.BasePrice.IsNegative() {
			return nil, validation("base_price", "must not be negative")
		}
		fields["base_price"] = *in.BasePrice
	}
	if in.LowStockThreshold != nil {
		fields["low_stock_threshold"] = *in.LowStockThreshold
	}
	if in.Status != nil {
		if !validProductStatus(*in.Status) {
			return nil, validation("status", "unknown product status %q", *in.Status)
		}
		fields["status"] = *in.Status
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.GetProduct(txCtx, id)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		if err := s.productRepo.UpdateFields(txCtx, id, fields); err != nil {
			return uniqueErr(fmt.Errorf("failed to update product: %w", err), "slug")
		}
		return writeAudit(txCtx, s.auditRepo, in.Actor, model.ActionUpdateProduct, id.String(), product.Name, fields)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}

func (s *catalogService) DeleteProduct(ctx context.Context, id uuid.UUID, actor Actor) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.GetProduct(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.productRepo.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionDeleteProduct, id.String(), product.Name,
			map[string]interface{}{"stock": product.Stock})
	})
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("product", id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter repository.ProductFilter, page pagination.Params) ([]model.Product, int64, error) {
	return s.productRepo.List(ctx, filter, page.Offset, page.Limit)
}

func (s *catalogService) getVariant(ctx context.Context, id uuid.UUID) (*model.ProductVariant, error) {
	variant, err := s.variantRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("variant", id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return variant, nil
}

func (s *catalogService) CreateVariant(ctx context.Context, in CreateVariantInput) (*model.ProductVariant, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validation("name", "is required")
	}
	if in.Price != nil && in.Price.IsNegative() {
		return nil, validation("price", "must not be negative")
	}
	if in.InitialStock < 0 {
		return nil, validation("stock", "must not be negative")
	}

	variant := &model.ProductVariant{
		ProductID:         in.ProductID,
		Name:              in.Name,
		SKU:               in.SKU,
		Price:             in.Price,
		LowStockThreshold: in.LowStockThreshold,
		IsActive:          in.IsActive == nil || *in.IsActive,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.GetProduct(txCtx, in.ProductID)
		if err != nil {
			return err
		}
		if err := s.variantRepo.Create(txCtx, variant); err != nil {
			return fmt.Errorf("failed to create variant: %w", err)
		}
		if !product.HasVariants {
			if err := s.productRepo.UpdateFields(txCtx, product.ID, map[string]interface{}{"has_variants": true}); err != nil {
				return err
			}
		}
		if in.InitialStock > 0 {
			if _, err := s.ledger.Adjust(txCtx, AdjustInput{
				Target: VariantTarget(variant.ID),
				Delta:  in.InitialStock,
				Type:   model.AdjustmentInitial,
				Reason: "Initial stock",
				Actor:  in.Actor,
			}); err != nil {
				return err
			}
		}
		return writeAudit(txCtx, s.auditRepo, in.Actor, model.ActionCreateVariant, variant.ID.String(),
			product.Name+" / "+variant.Name, map[string]interface{}{"sku": variant.SKU, "initial_stock": in.InitialStock})
	})
	if err != nil {
		return nil, err
	}
	return s.getVariant(ctx, variant.ID)
}

func (s *catalogService) UpdateVariant(ctx context.Context, id uuid.UUID, in UpdateVariantInput) (*model.ProductVariant, error) {
	fields := map[string]interface{}{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validation("name", "must not be empty")
		}
		fields["name"] = *in.Name
	}
	if in.SKU != nil {
		fields["sku"] = *in.SKU
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return nil, validation("price", "must not be negative")
		}
		fields["price"] = *in.Price
	}
	if in.LowStockThreshold != nil {
		fields["low_stock_threshold"] = *in.LowStockThreshold
	}
	if in.IsActive != nil {
		fields["is_active"] = *in.IsActive
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		variant, err := s.getVariant(txCtx, id)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		if err := s.variantRepo.UpdateFields(txCtx, id, fields); err != nil {
			return fmt.Errorf("failed to update variant: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, in.Actor, model.ActionUpdateVariant, id.String(), variant.Name, fields)
	})
	if err != nil {
		return nil, err
	}
	return s.getVariant(ctx, id)
}

func (s *catalogService) DeleteVariant(ctx context.Context, id uuid.UUID, actor Actor) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		variant, err := s.getVariant(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.variantRepo.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete variant: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionDeleteVariant, id.String(), variant.Name,
			map[string]interface{}{"stock": variant.Stock})
	})
}
