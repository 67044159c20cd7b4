package repository

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesTotals is the headline row of a sales window.
type SalesTotals struct {
	Orders int64
	Units  int64
	Value  decimal.Decimal
}

type StatisticsRepository interface {
	GetSalesTotals(ctx context.Context, excluded []model.OrderStatus, start, end time.Time) (SalesTotals, error)
	GetTopProducts(ctx context.Context, excluded []model.OrderStatus, start, end time.Time, limit int) ([]model.ProductRanking, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

// soldLines selects order_items of live orders created in [start, end].
func (r *statisticsRepository) soldLines(ctx context.Context, excluded []model.OrderStatus, start, end time.Time) *gorm.DB {
	q := GetDB(ctx, r.db).Table("order_items").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.deleted_at IS NULL AND orders.created_at >= ? AND orders.created_at <= ?", start, end)
	if len(excluded) > 0 {
		q = q.Where("orders.status NOT IN ?", excluded)
	}
	return q
}

func (r *statisticsRepository) GetSalesTotals(ctx context.Context, excluded []model.OrderStatus, start, end time.Time) (SalesTotals, error) {
	var row struct {
		Orders int64
		Units  int64
		Value  decimal.NullDecimal
	}
	err := r.soldLines(ctx, excluded, start, end).
		Select("COUNT(DISTINCT orders.id) AS orders, COALESCE(SUM(order_items.quantity), 0) AS units, SUM(order_items.subtotal) AS value").
		Scan(&row).Error
	if err != nil {
		return SalesTotals{}, fmt.Errorf("failed to query sales totals: %w", err)
	}
	totals := SalesTotals{Orders: row.Orders, Units: row.Units, Value: decimal.Zero}
	if row.Value.Valid {
		totals.Value = row.Value.Decimal
	}
	return totals, nil
}

func (r *statisticsRepository) GetTopProducts(ctx context.Context, excluded []model.OrderStatus, start, end time.Time, limit int) ([]model.ProductRanking, error) {
	rankings := make([]model.ProductRanking, 0, limit)
	err := r.soldLines(ctx, excluded, start, end).
		Select("order_items.product_id AS product_id, order_items.product_name AS product_name, order_items.product_sku AS product_sku, " +
			"SUM(order_items.quantity) AS total_quantity, SUM(order_items.subtotal) AS total_value").
		Group("order_items.product_id, order_items.product_name, order_items.product_sku").
		Order("total_quantity DESC, product_name ASC").
		Limit(limit).
		Scan(&rankings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	return rankings, nil
}
