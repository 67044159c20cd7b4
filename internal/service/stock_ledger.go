package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/pkg/logger"
	"backoffice/pkg/metrics"
	"backoffice/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	EventStockAdjusted = "stock.adjusted"

	overstockLevel     = 100
	criticalStockLevel = 5
	topMovers          = 5
)

// EventPublisher fans committed changes out to live subscribers. Publish must not block.
type EventPublisher interface {
	Publish(event string, data interface{})
}

// StockTarget names one stock counter: a product's own counter, or a variant's.
// When both ids are set the variant is the target and ProductID must be its parent.
type StockTarget struct {
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
}

func ProductTarget(id uuid.UUID) StockTarget { return StockTarget{ProductID: &id} }

func VariantTarget(id uuid.UUID) StockTarget { return StockTarget{VariantID: &id} }

func (t StockTarget) validate() error {
	if t.ProductID == nil && t.VariantID == nil {
		return validation("target", "product_id or variant_id is required")
	}
	return nil
}

// lockKey orders targets so concurrent transactions lock rows in the same sequence.
func (t StockTarget) lockKey() string {
	if t.VariantID != nil {
		return "v:" + t.VariantID.String()
	}
	if t.ProductID != nil {
		return "p:" + t.ProductID.String()
	}
	return ""
}

type AdjustInput struct {
	Target  StockTarget
	Delta   int
	Type    model.AdjustmentType
	Reason  string
	Notes   string
	OrderID *uuid.UUID
	Actor   Actor
	// IncludeDeleted lets order compensation reach soft-deleted products.
	IncludeDeleted bool
}

type BulkAdjustItem struct {
	Target StockTarget `json:"target"`
	Delta  int         `json:"delta"`
}

type BulkAdjustInput struct {
	Items  []BulkAdjustItem
	Type   model.AdjustmentType
	Reason string
	Notes  string
	Actor  Actor
}

type BulkItemError struct {
	Index     int        `json:"index"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Error     string     `json:"error"`
}

type BulkAdjustResult struct {
	SuccessCount int                     `json:"success_count"`
	FailedCount  int                     `json:"failed_count"`
	Adjustments  []model.StockAdjustment `json:"adjustments"`
	Errors       []BulkItemError         `json:"errors"`
}

type HistoryQuery struct {
	ProductID *uuid.UUID
	VariantID *uuid.UUID
	Type      model.AdjustmentType
	From      *time.Time
	To        *time.Time
}

type StockSummary struct {
	TotalProducts int             `json:"total_products"`
	TotalVariants int             `json:"total_variants"`
	TotalUnits    int             `json:"total_units"`
	LowStock      int             `json:"low_stock"`
	OutOfStock    int             `json:"out_of_stock"`
	Overstocked   int             `json:"overstocked"`
	StockValue    decimal.Decimal `json:"stock_value"`
}

type StockAlert struct {
	ProductID   uuid.UUID  `json:"product_id"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	ProductName string     `json:"product_name"`
	VariantName string     `json:"variant_name,omitempty"`
	SKU         string     `json:"sku,omitempty"`
	Stock       int        `json:"stock"`
	Threshold   int        `json:"threshold"`
	Critical    bool       `json:"critical"`
}

type TypeVolume struct {
	Count  int `json:"count"`
	Volume int `json:"volume"`
}

type ProductMovement struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
}

type MovementReport struct {
	Days     int                                 `json:"days"`
	From     time.Time                           `json:"from"`
	To       time.Time                           `json:"to"`
	TotalIn  int                                 `json:"total_in"`
	TotalOut int                                 `json:"total_out"`
	Net      int                                 `json:"net"`
	ByType   map[model.AdjustmentType]TypeVolume `json:"by_type"`
	TopIn    []ProductMovement                   `json:"top_in"`
	TopOut   []ProductMovement                   `json:"top_out"`
}

// StockLedger is the only writer of product and variant stock counters.
// Every counter change is paired with one immutable StockAdjustment row in
// the same transaction.
type StockLedger interface {
	Adjust(ctx context.Context, in AdjustInput) (*model.StockAdjustment, error)
	// BulkAdjust applies each item in its own transaction and reports per-item outcomes.
	BulkAdjust(ctx context.Context, in BulkAdjustInput) BulkAdjustResult
	// SetStock writes a CORRECTION moving the counter to newStock. It returns
	// nil, nil when the counter already holds newStock.
	SetStock(ctx context.Context, target StockTarget, newStock int, reason, notes string, actor Actor) (*model.StockAdjustment, error)
	History(ctx context.Context, q HistoryQuery, page pagination.Params) ([]model.StockAdjustment, int64, error)
	ProductHistory(ctx context.Context, productID uuid.UUID, page pagination.Params) ([]model.StockAdjustment, int64, error)
	Summary(ctx context.Context) (*StockSummary, error)
	LowStockAlerts(ctx context.Context, threshold int, includeOutOfStock bool) ([]StockAlert, error)
	MovementReport(ctx context.Context, days int) (*MovementReport, error)
}

type stockLedger struct {
	productRepo      repository.ProductRepository
	variantRepo      repository.VariantRepository
	adjustmentRepo   repository.StockAdjustmentRepository
	txManager        repository.TransactionManager
	publisher        EventPublisher
	defaultThreshold int
	now              func() time.Time
}

func NewStockLedger(
	productRepo repository.ProductRepository,
	variantRepo repository.VariantRepository,
	adjustmentRepo repository.StockAdjustmentRepository,
	txManager repository.TransactionManager,
	publisher EventPublisher,
	defaultThreshold int,
) StockLedger {
	if defaultThreshold <= 0 {
		defaultThreshold = 10
	}
	return &stockLedger{
		productRepo:      productRepo,
		variantRepo:      variantRepo,
		adjustmentRepo:   adjustmentRepo,
		txManager:        txManager,
		publisher:        publisher,
		defaultThreshold: defaultThreshold,
		now:              time.Now,
	}
}

// lockedCounter is a target whose row is held FOR UPDATE by the current transaction.
type lockedCounter struct {
	kind        string
	id          uuid.UUID
	productID   uuid.UUID
	variantID   *uuid.UUID
	productName string
	variantName string
	current     int
	write       func(ctx context.Context, stock int) error
}

func (l *stockLedger) lock(ctx context.Context, target StockTarget, includeDeleted bool) (*lockedCounter, error) {
	if target.VariantID != nil {
		variant, err := l.variantRepo.FindByIDForUpdate(ctx, *target.VariantID, includeDeleted)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("variant", *target.VariantID)
			}
			return nil, fmt.Errorf("lock variant: %w", err)
		}
		if target.ProductID != nil && *target.ProductID != variant.ProductID {
			return nil, validation("variant_id", "variant %s does not belong to product %s", variant.ID, *target.ProductID)
		}
		c := &lockedCounter{
			kind:        "variant",
			id:          variant.ID,
			productID:   variant.ProductID,
			variantID:   &variant.ID,
			variantName: variant.Name,
			current:     variant.Stock,
			write: func(ctx context.Context, stock int) error {
				return l.variantRepo.UpdateStock(ctx, variant.ID, stock)
			},
		}
		if variant.Product != nil {
			c.productName = variant.Product.Name
		}
		return c, nil
	}

	product, err := l.productRepo.FindByIDForUpdate(ctx, *target.ProductID, includeDeleted)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("product", *target.ProductID)
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return &lockedCounter{
		kind:        "product",
		id:          product.ID,
		productID:   product.ID,
		productName: product.Name,
		current:     product.Stock,
		write: func(ctx context.Context, stock int) error {
			return l.productRepo.UpdateStock(ctx, product.ID, stock)
		},
	}, nil
}

// apply locks the target, derives the delta from the locked value and writes
// the counter and its ledger row. A zero delta writes nothing.
func (l *stockLedger) apply(ctx context.Context, in AdjustInput, deltaFor func(current int) int) (*model.StockAdjustment, error) {
	counter, err := l.lock(ctx, in.Target, in.IncludeDeleted)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			metrics.StockRejections.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	delta := deltaFor(counter.current)
	if delta == 0 {
		return nil, nil
	}

	newStock := counter.current + delta
	if newStock < 0 {
		metrics.StockRejections.WithLabelValues("negative_stock").Inc()
		return nil, &NegativeStockError{
			TargetKind: counter.kind,
			TargetID:   counter.id.String(),
			Requested:  delta,
			Available:  counter.current,
		}
	}

	if err := counter.write(ctx, newStock); err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}

	productID := counter.productID
	adj := &model.StockAdjustment{
		ProductID:     &productID,
		VariantID:     counter.variantID,
		ProductName:   counter.productName,
		VariantName:   counter.variantName,
		Type:          in.Type,
		Quantity:      delta,
		PreviousStock: counter.current,
		NewStock:      newStock,
		OrderID:       in.OrderID,
		Reason:        in.Reason,
		Notes:         in.Notes,
		AdjustedBy:    in.Actor.Name(),
	}
	if err := l.adjustmentRepo.Create(ctx, adj); err != nil {
		return nil, fmt.Errorf("record adjustment: %w", err)
	}

	repository.AfterCommit(ctx, func() {
		metrics.StockAdjustments.WithLabelValues(string(adj.Type)).Inc()
		if l.publisher != nil {
			l.publisher.Publish(EventStockAdjusted, adj)
		}
	})
	return adj, nil
}

func (l *stockLedger) validateInput(in AdjustInput) error {
	if err := in.Target.validate(); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return validation("type", "unknown adjustment type %q", in.Type)
	}
	return nil
}

func (l *stockLedger) Adjust(ctx context.Context, in AdjustInput) (*model.StockAdjustment, error) {
	if err := l.validateInput(in); err != nil {
		metrics.StockRejections.WithLabelValues("validation").Inc()
		return nil, err
	}
	if in.Delta == 0 {
		metrics.StockRejections.WithLabelValues("validation").Inc()
		return nil, validation("quantity", "must not be zero")
	}

	var adj *model.StockAdjustment
	err := l.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		adj, err = l.apply(txCtx, in, func(int) int { return in.Delta })
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.WithCtx(ctx).Debug("stock adjusted",
		"product_id", adj.ProductID,
		"variant_id", adj.VariantID,
		"type", adj.Type,
		"quantity", adj.Quantity,
		"new_stock", adj.NewStock,
	)
	return adj, nil
}

func (l *stockLedger) BulkAdjust(ctx context.Context, in BulkAdjustInput) BulkAdjustResult {
	result := BulkAdjustResult{
		Adjustments: make([]model.StockAdjustment, 0, len(in.Items)),
		Errors:      make([]BulkItemError, 0),
	}

	for i, item := range in.Items {
		adj, err := l.Adjust(ctx, AdjustInput{
			Target: item.Target,
			Delta:  item.Delta,
			Type:   in.Type,
			Reason: in.Reason,
			Notes:  in.Notes,
			Actor:  in.Actor,
		})
		if err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, BulkItemError{
				Index:     i,
				ProductID: item.Target.ProductID,
				VariantID: item.Target.VariantID,
				Error:     err.Error(),
			})
			continue
		}
		result.SuccessCount++
		result.Adjustments = append(result.Adjustments, *adj)
	}

	logger.WithCtx(ctx).Info("bulk stock adjustment finished",
		"type", in.Type,
		"succeeded", result.SuccessCount,
		"failed", result.FailedCount,
	)
	return result
}

func (l *stockLedger) SetStock(ctx context.Context, target StockTarget, newStock int, reason, notes string, actor Actor) (*model.StockAdjustment, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	if newStock < 0 {
		return nil, validation("stock", "must not be negative")
	}

	in := AdjustInput{
		Target: target,
		Type:   model.AdjustmentCorrection,
		Reason: reason,
		Notes:  notes,
		Actor:  actor,
	}
	if in.Reason == "" {
		in.Reason = "Quick stock update"
	}

	var adj *model.StockAdjustment
	err := l.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		adj, err = l.apply(txCtx, in, func(current int) int { return newStock - current })
		return err
	})
	return adj, err
}

func (l *stockLedger) History(ctx context.Context, q HistoryQuery, page pagination.Params) ([]model.StockAdjustment, int64, error) {
	if q.Type != "" && !q.Type.Valid() {
		return nil, 0, validation("type", "unknown adjustment type %q", q.Type)
	}
	return l.adjustmentRepo.List(ctx, repository.AdjustmentFilter{
		ProductID: q.ProductID,
		VariantID: q.VariantID,
		Type:      q.Type,
		From:      q.From,
		To:        q.To,
	}, page.Offset, page.Limit)
}

func (l *stockLedger) ProductHistory(ctx context.Context, productID uuid.UUID, page pagination.Params) ([]model.StockAdjustment, int64, error) {
	if _, err := l.productRepo.FindByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, notFound("product", productID)
		}
		return nil, 0, err
	}

	variants, err := l.variantRepo.ListByProduct(ctx, productID, true)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]uuid.UUID, 0, len(variants))
	for _, v := range variants {
		ids = append(ids, v.ID)
	}

	return l.adjustmentRepo.List(ctx, repository.AdjustmentFilter{
		ProductID:     &productID,
		AnyOfVariants: ids,
	}, page.Offset, page.Limit)
}

// stockItem is one counter as seen by reporting: a product without variants, or a variant.
type stockItem struct {
	productID   uuid.UUID
	variantID   *uuid.UUID
	productName string
	variantName string
	sku         string
	stock       int
	threshold   *int
	price       decimal.Decimal
}

func (l *stockLedger) stockItems(ctx context.Context) ([]stockItem, int, error) {
	products, err := l.productRepo.ListWithVariants(ctx)
	if err != nil {
		return nil, 0, err
	}

	items := make([]stockItem, 0, len(products))
	for i := range products {
		p := &products[i]
		if !p.HasVariants || len(p.Variants) == 0 {
			items = append(items, stockItem{
				productID:   p.ID,
				productName: p.Name,
				sku:         p.SKU,
				stock:       p.Stock,
				threshold:   p.LowStockThreshold,
				price:       p.BasePrice,
			})
			continue
		}
		for j := range p.Variants {
			v := &p.Variants[j]
			threshold := v.LowStockThreshold
			if threshold == nil {
				threshold = p.LowStockThreshold
			}
			id := v.ID
			items = append(items, stockItem{
				productID:   p.ID,
				variantID:   &id,
				productName: p.Name,
				variantName: v.Name,
				sku:         v.SKU,
				stock:       v.Stock,
				threshold:   threshold,
				price:       v.EffectivePrice(p),
			})
		}
	}
	return items, len(products), nil
}

func (l *stockLedger) thresholdFor(item stockItem, override int) int {
	if override > 0 {
		return override
	}
	if item.threshold != nil {
		return *item.threshold
	}
	return l.defaultThreshold
}

func (l *stockLedger) Summary(ctx context.Context) (*StockSummary, error) {
	items, productCount, err := l.stockItems(ctx)
	if err != nil {
		return nil, err
	}

	summary := &StockSummary{TotalProducts: productCount, StockValue: decimal.Zero}
	for _, item := range items {
		if item.variantID != nil {
			summary.TotalVariants++
		}
		summary.TotalUnits += item.stock
		summary.StockValue = summary.StockValue.Add(item.price.Mul(decimal.NewFromInt(int64(item.stock))))

		switch {
		case item.stock == 0:
			summary.OutOfStock++
		case item.stock <= l.thresholdFor(item, 0):
			summary.LowStock++
		case item.stock > overstockLevel:
			summary.Overstocked++
		}
	}
	return summary, nil
}

func (l *stockLedger) LowStockAlerts(ctx context.Context, threshold int, includeOutOfStock bool) ([]StockAlert, error) {
	items, _, err := l.stockItems(ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]StockAlert, 0)
	for _, item := range items {
		limit := l.thresholdFor(item, threshold)
		if item.stock > limit {
			continue
		}
		if item.stock == 0 && !includeOutOfStock {
			continue
		}
		alerts = append(alerts, StockAlert{
			ProductID:   item.productID,
			VariantID:   item.variantID,
			ProductName: item.productName,
			VariantName: item.variantName,
			SKU:         item.sku,
			Stock:       item.stock,
			Threshold:   limit,
			Critical:    item.stock <= criticalStockLevel,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].Stock < alerts[j].Stock })
	return alerts, nil
}

func (l *stockLedger) MovementReport(ctx context.Context, days int) (*MovementReport, error) {
	if days < 1 || days > 365 {
		return nil, validation("days", "must be between 1 and 365")
	}

	to := l.now()
	from := to.AddDate(0, 0, -days)
	rows, err := l.adjustmentRepo.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &MovementReport{
		Days:   days,
		From:   from,
		To:     to,
		ByType: make(map[model.AdjustmentType]TypeVolume),
	}
	in := make(map[uuid.UUID]*ProductMovement)
	out := make(map[uuid.UUID]*ProductMovement)

	for _, row := range rows {
		volume := row.Quantity
		if volume < 0 {
			volume = -volume
		}
		tv := report.ByType[row.Type]
		tv.Count++
		tv.Volume += volume
		report.ByType[row.Type] = tv

		bucket := in
		if row.Quantity > 0 {
			report.TotalIn += row.Quantity
		} else {
			report.TotalOut += volume
			bucket = out
		}

		if row.ProductID == nil {
			continue
		}
		m, ok := bucket[*row.ProductID]
		if !ok {
			m = &ProductMovement{ProductID: *row.ProductID, ProductName: row.ProductName}
			bucket[*row.ProductID] = m
		}
		m.Quantity += volume
	}

	report.Net = report.TotalIn - report.TotalOut
	report.TopIn = topMovements(in)
	report.TopOut = topMovements(out)
	return report, nil
}

func topMovements(byProduct map[uuid.UUID]*ProductMovement) []ProductMovement {
	list := make([]ProductMovement, 0, len(byProduct))
	for _, m := range byProduct {
		list = append(list, *m)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Quantity != list[j].Quantity {
			return list[i].Quantity > list[j].Quantity
		}
		return list[i].ProductName < list[j].ProductName
	})
	if len(list) > topMovers {
		list = list[:topMovers]
	}
	return list
}
