package handler

import (
	"net/http"
	"strings"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	orderService service.OrderService
	evaluator    *service.Evaluator
}

func NewOrderHandler(orderService service.OrderService, evaluator *service.Evaluator) *OrderHandler {
	return &OrderHandler{orderService: orderService, evaluator: evaluator}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	view := middleware.RequirePermission(h.evaluator, model.ModuleOrders, model.LevelView)
	edit := middleware.RequirePermission(h.evaluator, model.ModuleOrders, model.LevelEdit)

	orders := router.Group("/orders")
	{
		orders.GET("", view, h.ListOrders)
		orders.GET("/stats", view, h.Stats)
		orders.GET("/number/:number", view, h.GetOrderByNumber)
		orders.GET("/:id", view, h.GetOrder)
		orders.POST("", edit, h.CreateOrder)
		orders.PATCH("/:id/status", edit, h.UpdateStatus)
		orders.PATCH("/:id", edit, h.UpdateOrder)
		orders.DELETE("/:id", edit, h.DeleteOrder)
	}
}

type OrderItemRequest struct {
	ProductID    *uuid.UUID       `json:"product_id"`
	VariantID    *uuid.UUID       `json:"variant_id"`
	ProductName  string           `json:"product_name"`
	ProductSKU   string           `json:"product_sku"`
	ProductImage string           `json:"product_image"`
	VariantName  string           `json:"variant_name"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	Quantity     int              `json:"quantity" binding:"required,min=1"`
}

type AddressRequest struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

func (a AddressRequest) toAddress() service.Address {
	return service.Address{Address: a.Address, City: a.City, State: a.State, Zip: a.Zip, Country: a.Country}
}

type CreateOrderRequest struct {
	AccountID       *uuid.UUID          `json:"account_id"`
	CustomerName    string              `json:"customer_name" binding:"required"`
	CustomerEmail   string              `json:"customer_email" binding:"required,email"`
	CustomerPhone   string              `json:"customer_phone"`
	ShippingAddress AddressRequest      `json:"shipping_address"`
	BillingAddress  AddressRequest      `json:"billing_address"`
	PaymentMethod   model.PaymentMethod `json:"payment_method"`
	PaymentStatus   model.PaymentStatus `json:"payment_status"`
	ShippingCost    decimal.Decimal     `json:"shipping_cost"`
	TaxAmount       decimal.Decimal     `json:"tax_amount"`
	DiscountAmount  decimal.Decimal     `json:"discount_amount"`
	Notes           string              `json:"notes"`
	Items           []OrderItemRequest  `json:"items" binding:"required,min=1,dive"`
}

type UpdateStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required"`
	Note   string            `json:"note"`
}

type UpdateOrderRequest struct {
	Status          *model.OrderStatus   `json:"status"`
	StatusNote      string               `json:"status_note"`
	PaymentStatus   *model.PaymentStatus `json:"payment_status"`
	PaymentMethod   *model.PaymentMethod `json:"payment_method"`
	CustomerPhone   *string              `json:"customer_phone"`
	ShippingAddress *string              `json:"shipping_address"`
	ShippingCity    *string              `json:"shipping_city"`
	ShippingState   *string              `json:"shipping_state"`
	ShippingZip     *string              `json:"shipping_zip"`
	ShippingCountry *string              `json:"shipping_country"`
	TrackingNumber  *string              `json:"tracking_number"`
	ShippingCarrier *string              `json:"shipping_carrier"`
	Notes           *string              `json:"notes"`
	InternalNotes   *string              `json:"internal_notes"`
	ShippingCost    *decimal.Decimal     `json:"shipping_cost"`
	TaxAmount       *decimal.Decimal     `json:"tax_amount"`
	DiscountAmount  *decimal.Decimal     `json:"discount_amount"`
}

// ListOrders lists orders newest first
// @Summary      List orders
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Items per page (default 20)"
// @Param        status          query     string  false  "Order status"
// @Param        payment_status  query     string  false  "Payment status"
// @Param        search          query     string  false  "Order number, customer name or email"
// @Success      200             {object}  response.Response{data=response.Page}
// @Failure      400             {object}  response.Response
// @Router       /api/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.OrderFilter{
		Status:        model.OrderStatus(strings.ToUpper(c.Query("status"))),
		PaymentStatus: model.PaymentStatus(strings.ToUpper(c.Query("payment_status"))),
		Search:        c.Query("search"),
	}
	orders, total, err := h.orderService.List(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, page(orders, total, p)))
}

// Stats returns order counts and revenue
// @Summary      Order statistics
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.OrderStats}
// @Router       /api/orders/stats [get]
func (h *OrderHandler) Stats(c *gin.Context) {
	stats, err := h.orderService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// GetOrder returns an order with items and status history
// @Summary      Get order
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=model.Order}
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.orderService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// GetOrderByNumber looks an order up by its ORD- number
// @Summary      Get order by number
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        number  path      string  true  "Order number"
// @Success      200     {object}  response.Response{data=model.Order}
// @Failure      404     {object}  response.Response
// @Router       /api/orders/number/{number} [get]
func (h *OrderHandler) GetOrderByNumber(c *gin.Context) {
	order, err := h.orderService.GetByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// CreateOrder places an order and takes its stock in one transaction
// @Summary      Create order
// @Description  Creates a PENDING order. Every stocked item writes a SALE adjustment; any shortfall rejects the whole order.
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      CreateOrderRequest  true  "Create Order Payload"
// @Success      201      {object}  response.Response{data=model.Order}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	items := make([]service.CreateOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.CreateOrderItem{
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			ProductName:  item.ProductName,
			ProductSKU:   item.ProductSKU,
			ProductImage: item.ProductImage,
			VariantName:  item.VariantName,
			UnitPrice:    item.UnitPrice,
			Quantity:     item.Quantity,
		})
	}

	order, err := h.orderService.Create(c.Request.Context(), service.CreateOrderInput{
		AccountID:      req.AccountID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		Shipping:       req.ShippingAddress.toAddress(),
		Billing:        req.BillingAddress.toAddress(),
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  req.PaymentStatus,
		ShippingCost:   req.ShippingCost,
		TaxAmount:      req.TaxAmount,
		DiscountAmount: req.DiscountAmount,
		Notes:          req.Notes,
		Items:          items,
		Actor:          middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// UpdateStatus moves an order to a new status
// @Summary      Update order status
// @Description  Cancelling returns stock; leaving CANCELLED takes it again and fails if stock is short.
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true  "Order ID"
// @Param        payload  body      UpdateStatusRequest  true  "New status"
// @Success      200      {object}  response.Response{data=model.Order}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders/{id}/status [patch]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	order, err := h.orderService.Transition(c.Request.Context(), id,
		model.OrderStatus(strings.ToUpper(string(req.Status))), req.Note, middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// UpdateOrder applies a partial update
// @Summary      Update order
// @Description  Updates shipping, payment and cost fields. The total is recomputed when a cost changes.
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string              true  "Order ID"
// @Param        payload  body      UpdateOrderRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=model.Order}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/orders/{id} [patch]
func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	order, err := h.orderService.UpdateDetails(c.Request.Context(), id, service.UpdateOrderInput{
		Status:          req.Status,
		StatusNote:      req.StatusNote,
		PaymentStatus:   req.PaymentStatus,
		PaymentMethod:   req.PaymentMethod,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		ShippingCity:    req.ShippingCity,
		ShippingState:   req.ShippingState,
		ShippingZip:     req.ShippingZip,
		ShippingCountry: req.ShippingCountry,
		TrackingNumber:  req.TrackingNumber,
		ShippingCarrier: req.ShippingCarrier,
		Notes:           req.Notes,
		InternalNotes:   req.InternalNotes,
		ShippingCost:    req.ShippingCost,
		TaxAmount:       req.TaxAmount,
		DiscountAmount:  req.DiscountAmount,
		Actor:           middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// DeleteOrder soft deletes an order
// @Summary      Delete order
// @Description  Items and status history are kept. Stock is not returned; cancel first.
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id} [delete]
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.orderService.Delete(c.Request.Context(), id, middleware.Actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Order deleted successfully"))
}
