package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SalesReport aggregates sold order lines over a time window. Cancelled and
// refunded orders are excluded.
type SalesReport struct {
	TotalOrders        int64            `json:"total_orders"`
	UnitsSold          int64            `json:"units_sold"`
	GrossSales         decimal.Decimal  `json:"gross_sales"`
	TopProducts        []ProductRanking `json:"top_products"`
	TimeRangeStartDate time.Time        `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time        `json:"time_range_end_date"`
}

// ProductRanking is a product ranked by units sold. Name and SKU come from the
// order line snapshot, so deleted products still rank.
type ProductRanking struct {
	ProductID     *uuid.UUID      `json:"product_id,omitempty"`
	ProductName   string          `json:"product_name"`
	ProductSKU    string          `json:"product_sku,omitempty"`
	TotalQuantity int64           `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
}
