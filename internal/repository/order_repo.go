package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderFilter narrows order listings. Zero values are ignored.
type OrderFilter struct {
	Status        model.OrderStatus
	PaymentStatus model.PaymentStatus
	Search        string
	AccountID     *uuid.UUID
}

// StatusCount is one row of a GROUP BY status query.
type StatusCount struct {
	Status string
	Count  int64
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	CreateItems(ctx context.Context, items []model.OrderItem) error
	AppendHistory(ctx context.Context, entry *model.OrderStatusHistory) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindByNumber(ctx context.Context, number string) (*model.Order, error)
	// FindByIDForUpdate locks the order row and loads its items.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter OrderFilter, offset, limit int) ([]model.Order, int64, error)
	CountHistory(ctx context.Context, orderID uuid.UUID) (int64, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	CountByPaymentStatus(ctx context.Context) ([]StatusCount, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	SumTotalByPaymentStatus(ctx context.Context, status model.PaymentStatus) (decimal.Decimal, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(order).Error
}

func (r *orderRepository) CreateItems(ctx context.Context, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&items).Error
}

func (r *orderRepository) AppendHistory(ctx context.Context, entry *model.OrderStatusHistory) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *orderRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("created_at desc") })
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := r.withRelations(GetDB(ctx, r.db)).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByNumber(ctx context.Context, number string) (*model.Order, error) {
	var order model.Order
	if err := r.withRelations(GetDB(ctx, r.db)).First(&order, "order_number = ?", number).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	if err := GetDB(ctx, r.db).Where("order_id = ?", id).Order("created_at asc").Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.Order{}).Where("id = ?", id).Updates(fields).Error
}

// Delete soft-deletes the order; items and status history stay in place.
func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Order{}).Error
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter, offset, limit int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Order{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		db = db.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.AccountID != nil {
		db = db.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("LOWER(order_number) LIKE LOWER(?) OR LOWER(customer_name) LIKE LOWER(?) OR LOWER(customer_email) LIKE LOWER(?)", like, like, like)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.
		Preload("Items").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) CountHistory(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.OrderStatusHistory{}).Where("order_id = ?", orderID).Count(&n).Error
	return n, err
}

func (r *orderRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := GetDB(ctx, r.db).Model(&model.Order{}).
		Select("status AS status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	return rows, err
}

func (r *orderRepository) CountByPaymentStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := GetDB(ctx, r.db).Model(&model.Order{}).
		Select("payment_status AS status, COUNT(*) AS count").
		Group("payment_status").
		Scan(&rows).Error
	return rows, err
}

func (r *orderRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Order{}).Where("created_at >= ?", since).Count(&n).Error
	return n, err
}

func (r *orderRepository) SumTotalByPaymentStatus(ctx context.Context, status model.PaymentStatus) (decimal.Decimal, error) {
	var totals []decimal.Decimal
	if err := GetDB(ctx, r.db).Model(&model.Order{}).
		Where("payment_status = ?", status).
		Pluck("total", &totals).Error; err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t)
	}
	return sum, nil
}
