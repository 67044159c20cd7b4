package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
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
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
)

type CreateOrderItem struct {
	ProductID    *uuid.UUID
	VariantID    *uuid.UUID
	ProductName  string
	ProductSKU   string
	ProductImage string
	VariantName  string
	// UnitPrice defaults to the variant price, then the product base price.
	UnitPrice *decimal.Decimal
	Quantity  int
}

type Address struct {
	Address string
	City    string
	State   string
	Zip     string
	Country string
}

type CreateOrderInput struct {
	AccountID      *uuid.UUID
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	Shipping       Address
	Billing        Address
	PaymentMethod  model.PaymentMethod
	PaymentStatus  model.PaymentStatus
	ShippingCost   decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Notes          string
	Items          []CreateOrderItem
	Actor          Actor
}

// UpdateOrderInput is a partial update; nil fields are left unchanged.
type UpdateOrderInput struct {
	Status          *model.OrderStatus
	StatusNote      string
	PaymentStatus   *model.PaymentStatus
	PaymentMethod   *model.PaymentMethod
	CustomerPhone   *string
	ShippingAddress *string
	ShippingCity    *string
	ShippingState   *string
	ShippingZip     *string
	ShippingCountry *string
	TrackingNumber  *string
	ShippingCarrier *string
	Notes           *string
	InternalNotes   *string
	ShippingCost    *decimal.Decimal
	TaxAmount       *decimal.Decimal
	DiscountAmount  *decimal.Decimal
	Actor           Actor
}

type OrderStats struct {
	TotalOrders     int64                         `json:"total_orders"`
	ByStatus        map[model.OrderStatus]int64   `json:"by_status"`
	ByPaymentStatus map[model.PaymentStatus]int64 `json:"by_payment_status"`
	TodayOrders     int64                         `json:"today_orders"`
	Revenue         decimal.Decimal               `json:"revenue"`
}

// OrderService is the order state machine. Creation and every status change
// run in one transaction together with their stock ledger side effects.
type OrderService interface {
	Create(ctx context.Context, in CreateOrderInput) (*model.Order, error)
	Transition(ctx context.Context, id uuid.UUID, to model.OrderStatus, note string, actor Actor) (*model.Order, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, in UpdateOrderInput) (*model.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetByNumber(ctx context.Context, number string) (*model.Order, error)
	List(ctx context.Context, filter repository.OrderFilter, page pagination.Params) ([]model.Order, int64, error)
	Delete(ctx context.Context, id uuid.UUID, actor Actor) error
	Stats(ctx context.Context) (*OrderStats, error)
}

type orderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	variantRepo repository.VariantRepository
	auditRepo   repository.AuditRepository
	ledger      StockLedger
	txManager   repository.TransactionManager
	publisher   EventPublisher
	now         func() time.Time
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	variantRepo repository.VariantRepository,
	auditRepo repository.AuditRepository,
	ledger StockLedger,
	txManager repository.TransactionManager,
	publisher EventPublisher,
) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		variantRepo: variantRepo,
		auditRepo:   auditRepo,
		ledger:      ledger,
		txManager:   txManager,
		publisher:   publisher,
		now:         time.Now,
	}
}

// NewOrderNumber formats ORD-YYYYMMDD-XXXXXX with six random upper-case hex digits.
func NewOrderNumber(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(random))
}

func itemTarget(item model.OrderItem) StockTarget {
	return StockTarget{ProductID: item.ProductID, VariantID: item.VariantID}
}

// stockedItems returns the items that move stock, in lock order.
func stockedItems(items []model.OrderItem) []model.OrderItem {
	out := make([]model.OrderItem, 0, len(items))
	for _, item := range items {
		if item.TracksStock() {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return itemTarget(out[i]).lockKey() < itemTarget(out[j]).lockKey()
	})
	return out
}

func validateCreate(in CreateOrderInput) error {
	if strings.TrimSpace(in.CustomerName) == "" {
		return validation("customer_name", "is required")
	}
	if strings.TrimSpace(in.CustomerEmail) == "" {
		return validation("customer_email", "is required")
	}
	if len(in.Items) == 0 {
		return validation("items", "at least one item is required")
	}
	for name, v := range map[string]decimal.Decimal{
		"shipping_cost":   in.ShippingCost,
		"tax_amount":      in.TaxAmount,
		"discount_amount": in.DiscountAmount,
	} {
		if v.IsNegative() {
			return validation(name, "must not be negative")
		}
	}
	if in.PaymentStatus != "" && !validPaymentStatus(in.PaymentStatus) {
		return validation("payment_status", "unknown payment status %q", in.PaymentStatus)
	}
	for i, item := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.Quantity <= 0 {
			return validation(field+".quantity", "must be greater than zero")
		}
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			return validation(field+".unit_price", "must not be negative")
		}
		if item.ProductID == nil && item.VariantID == nil {
			if strings.TrimSpace(item.ProductName) == "" || item.UnitPrice == nil {
				return validation(field, "product_name and unit_price are required for items without a product")
			}
		}
	}
	return nil
}

func validPaymentStatus(s model.PaymentStatus) bool {
	for _, known := range model.PaymentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// buildItem fills snapshots and price from the catalog.
func (s *orderService) buildItem(ctx context.Context, in CreateOrderItem) (model.OrderItem, error) {
	item := model.OrderItem{
		ProductID:    in.ProductID,
		VariantID:    in.VariantID,
		ProductName:  in.ProductName,
		ProductSKU:   in.ProductSKU,
		ProductImage: in.ProductImage,
		VariantName:  in.VariantName,
		Quantity:     in.Quantity,
	}

	price := decimal.Zero
	switch {
	case in.VariantID != nil:
		variant, err := s.variantRepo.FindByID(ctx, *in.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return item, notFound("variant", *in.VariantID)
			}
			return item, err
		}
		if in.ProductID != nil && *in.ProductID != variant.ProductID {
			return item, validation("variant_id", "variant %s does not belong to product %s", variant.ID, *in.ProductID)
		}
		parentID := variant.ProductID
		item.ProductID = &parentID
		if item.VariantName == "" {
			item.VariantName = variant.Name
		}
		if item.ProductSKU == "" {
			item.ProductSKU = variant.SKU
		}
		if variant.Product != nil && item.ProductName == "" {
			item.ProductName = variant.Product.Name
		}
		price = variant.EffectivePrice(variant.Product)
	case in.ProductID != nil:
		product, err := s.productRepo.FindByID(ctx, *in.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return item, notFound("product", *in.ProductID)
			}
			return item, err
		}
		if item.ProductName == "" {
			item.ProductName = product.Name
		}
		if item.ProductSKU == "" {
			item.ProductSKU = product.SKU
		}
		price = product.BasePrice
	}

	if in.UnitPrice != nil {
		price = *in.UnitPrice
	}
	item.UnitPrice = price
	item.Subtotal = price.Mul(decimal.NewFromInt(int64(in.Quantity)))
	return item, nil
}

func (s *orderService) Create(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	var orderID uuid.UUID
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		items := make([]model.OrderItem, 0, len(in.Items))
		subtotal := decimal.Zero
		for _, reqItem := range in.Items {
			item, err := s.buildItem(txCtx, reqItem)
			if err != nil {
				return err
			}
			subtotal = subtotal.Add(item.Subtotal)
			items = append(items, item)
		}

		paymentStatus := in.PaymentStatus
		if paymentStatus == "" {
			paymentStatus = model.PaymentPending
		}
		order := &model.Order{
			OrderNumber:     NewOrderNumber(s.now()),
			AccountID:       in.AccountID,
			Status:          model.OrderStatusPending,
			PaymentStatus:   paymentStatus,
			PaymentMethod:   in.PaymentMethod,
			CustomerName:    in.CustomerName,
			CustomerEmail:   in.CustomerEmail,
			CustomerPhone:   in.CustomerPhone,
			ShippingAddress: in.Shipping.Address,
			ShippingCity:    in.Shipping.City,
			ShippingState:   in.Shipping.State,
			ShippingZip:     in.Shipping.Zip,
			ShippingCountry: in.Shipping.Country,
			BillingAddress:  in.Billing.Address,
			BillingCity:     in.Billing.City,
			BillingState:    in.Billing.State,
			BillingZip:      in.Billing.Zip,
			BillingCountry:  in.Billing.Country,
			Subtotal:        subtotal,
			ShippingCost:    in.ShippingCost,
			TaxAmount:       in.TaxAmount,
			DiscountAmount:  in.DiscountAmount,
			Notes:           in.Notes,
			CreatedBy:       in.Actor.Name(),
		}
		order.RecalculateTotal()

		if err := s.orderRepo.Create(txCtx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := s.orderRepo.CreateItems(txCtx, items); err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}

		for _, item := range stockedItems(items) {
			orderRef := order.ID
			if _, err := s.ledger.Adjust(txCtx, AdjustInput{
				Target:  itemTarget(item),
				Delta:   -item.Quantity,
				Type:    model.AdjustmentSale,
				Reason:  "Order " + order.OrderNumber,
				OrderID: &orderRef,
				Actor:   in.Actor,
			}); err != nil {
				return err
			}
		}

		if err := s.orderRepo.AppendHistory(txCtx, &model.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  model.OrderStatusPending,
			Note:      "Order created",
			ChangedBy: in.Actor.Name(),
		}); err != nil {
			return fmt.Errorf("failed to write status history: %w", err)
		}

		orderID = order.ID
		number := order.OrderNumber
		repository.AfterCommit(txCtx, func() {
			s.publish(EventOrderCreated, map[string]interface{}{
				"order_id":     orderID,
				"order_number": number,
				"total":        order.Total,
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithCtx(ctx).Info("order created", "order_id", orderID)
	return s.Get(ctx, orderID)
}

func (s *orderService) lockOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("order", id)
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

// transition applies one status change to a locked order: stock compensation,
// timestamps and the history row. The caller owns the transaction.
func (s *orderService) transition(ctx context.Context, order *model.Order, to model.OrderStatus, note string, actor Actor) error {
	from := order.Status

	var delta func(qty int) int
	var adjType model.AdjustmentType
	var reason string
	switch {
	case to == model.OrderStatusCancelled && from != model.OrderStatusCancelled:
		delta = func(qty int) int { return qty }
		adjType = model.AdjustmentReturn
		reason = fmt.Sprintf("Order %s cancelled", order.OrderNumber)
	case from == model.OrderStatusCancelled && to != model.OrderStatusCancelled:
		delta = func(qty int) int { return -qty }
		adjType = model.AdjustmentSale
		reason = fmt.Sprintf("Order %s restored from cancelled", order.OrderNumber)
	}

	if delta != nil {
		for _, item := range stockedItems(order.Items) {
			orderRef := order.ID
			if _, err := s.ledger.Adjust(ctx, AdjustInput{
				Target:         itemTarget(item),
				Delta:          delta(item.Quantity),
				Type:           adjType,
				Reason:         reason,
				OrderID:        &orderRef,
				Actor:          actor,
				IncludeDeleted: true,
			}); err != nil {
				return err
			}
		}
	}

	now := s.now()
	fields := map[string]interface{}{"status": to}
	switch to {
	case model.OrderStatusShipped:
		if order.ShippedAt == nil {
			fields["shipped_at"] = now
			order.ShippedAt = &now
		}
	case model.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			fields["delivered_at"] = now
			order.DeliveredAt = &now
		}
	case model.OrderStatusCancelled:
		if order.CancelledAt == nil {
			fields["cancelled_at"] = now
			order.CancelledAt = &now
		}
	}
	if err := s.orderRepo.UpdateFields(ctx, order.ID, fields); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = to

	fromStatus := from
	if err := s.orderRepo.AppendHistory(ctx, &model.OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: &fromStatus,
		ToStatus:   to,
		Note:       note,
		ChangedBy:  actor.Name(),
	}); err != nil {
		return fmt.Errorf("failed to write status history: %w", err)
	}

	orderID, number := order.ID, order.OrderNumber
	repository.AfterCommit(ctx, func() {
		metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
		s.publish(EventOrderStatusChanged, map[string]interface{}{
			"order_id":     orderID,
			"order_number": number,
			"from":         from,
			"to":           to,
		})
	})
	return nil
}

func (s *orderService) Transition(ctx context.Context, id uuid.UUID, to model.OrderStatus, note string, actor Actor) (*model.Order, error) {
	if !to.Valid() {
		return nil, validation("status", "unknown order status %q", to)
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.lockOrder(txCtx, id)
		if err != nil {
			return err
		}
		return s.transition(txCtx, order, to, note, actor)
	})
	if err != nil {
		return nil, err
	}

	logger.WithCtx(ctx).Info("order status changed", "order_id", id, "to", to)
	return s.Get(ctx, id)
}

func (s *orderService) UpdateDetails(ctx context.Context, id uuid.UUID, in UpdateOrderInput) (*model.Order, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, validation("status", "unknown order status %q", *in.Status)
	}
	if in.PaymentStatus != nil && !validPaymentStatus(*in.PaymentStatus) {
		return nil, validation("payment_status", "unknown payment status %q", *in.PaymentStatus)
	}
	for name, v := range map[string]*decimal.Decimal{
		"shipping_cost":   in.ShippingCost,
		"tax_amount":      in.TaxAmount,
		"discount_amount": in.DiscountAmount,
	} {
		if v != nil && v.IsNegative() {
			return nil, validation(name, "must not be negative")
		}
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.lockOrder(txCtx, id)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{}
		setString := func(column string, v *string) {
			if v != nil {
				fields[column] = *v
			}
		}
		setString("customer_phone", in.CustomerPhone)
		setString("shipping_address", in.ShippingAddress)
		setString("shipping_city", in.ShippingCity)
		setString("shipping_state", in.ShippingState)
		setString("shipping_zip", in.ShippingZip)
		setString("shipping_country", in.ShippingCountry)
		setString("tracking_number", in.TrackingNumber)
		setString("shipping_carrier", in.ShippingCarrier)
		setString("notes", in.Notes)
		setString("internal_notes", in.InternalNotes)
		if in.PaymentStatus != nil {
			fields["payment_status"] = *in.PaymentStatus
		}
		if in.PaymentMethod != nil {
			fields["payment_method"] = *in.PaymentMethod
		}

		costChanged := false
		if in.ShippingCost != nil {
			order.ShippingCost, costChanged = *in.ShippingCost, true
		}
		if in.TaxAmount != nil {
			order.TaxAmount, costChanged = *in.TaxAmount, true
		}
		if in.DiscountAmount != nil {
			order.DiscountAmount, costChanged = *in.DiscountAmount, true
		}
		if costChanged {
			order.RecalculateTotal()
			fields["shipping_cost"] = order.ShippingCost
			fields["tax_amount"] = order.TaxAmount
			fields["discount_amount"] = order.DiscountAmount
			fields["total"] = order.Total
		}

		if len(fields) > 0 {
			if err := s.orderRepo.UpdateFields(txCtx, order.ID, fields); err != nil {
				return fmt.Errorf("failed to update order: %w", err)
			}
			if err := writeAudit(txCtx, s.auditRepo, in.Actor, model.ActionUpdateOrder,
				order.ID.String(), order.OrderNumber, fields); err != nil {
				return err
			}
		}

		if in.Status != nil {
			return s.transition(txCtx, order, *in.Status, in.StatusNote, in.Actor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *orderService) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("order", id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return order, nil
}

func (s *orderService) GetByNumber(ctx context.Context, number string) (*model.Order, error) {
	order, err := s.orderRepo.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "order", ID: number}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter repository.OrderFilter, page pagination.Params) ([]model.Order, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, validation("status", "unknown order status %q", filter.Status)
	}
	return s.orderRepo.List(ctx, filter, page.Offset, page.Limit)
}

// Delete soft-deletes the order. Stock is not touched; cancel first to return it.
func (s *orderService) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.lockOrder(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.orderRepo.Delete(txCtx, order.ID); err != nil {
			return fmt.Errorf("failed to delete order: %w", err)
		}
		if err := writeAudit(txCtx, s.auditRepo, actor, model.ActionDeleteOrder, order.ID.String(), order.OrderNumber,
			map[string]interface{}{"status": order.Status, "total": order.Total}); err != nil {
			return err
		}
		orderID := order.ID
		repository.AfterCommit(txCtx, func() {
			s.publish(EventOrderDeleted, map[string]interface{}{"order_id": orderID})
		})
		return nil
	})
}

func (s *orderService) Stats(ctx context.Context) (*OrderStats, error) {
	stats := &OrderStats{
		ByStatus:        make(map[model.OrderStatus]int64),
		ByPaymentStatus: make(map[model.PaymentStatus]int64),
	}

	byStatus, err := s.orderRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		stats.ByStatus[model.OrderStatus(row.Status)] = row.Count
		stats.TotalOrders += row.Count
	}

	byPayment, err := s.orderRepo.CountByPaymentStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range byPayment {
		stats.ByPaymentStatus[model.PaymentStatus(row.Status)] = row.Count
	}

	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if stats.TodayOrders, err = s.orderRepo.CountSince(ctx, startOfDay); err != nil {
		return nil, err
	}

	if stats.Revenue, err = s.orderRepo.SumTotalByPaymentStatus(ctx, model.PaymentPaid); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *orderService) publish(event string, data interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(event, data)
	}
}
