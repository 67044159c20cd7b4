package handler

import (
	"net/http"
	"strconv"
	"time"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type InventoryHandler struct {
	ledger    service.StockLedger
	evaluator *service.Evaluator
}

func NewInventoryHandler(ledger service.StockLedger, evaluator *service.Evaluator) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, evaluator: evaluator}
}

func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	view := middleware.RequirePermission(h.evaluator, model.ModuleInventory, model.LevelView)
	edit := middleware.RequirePermission(h.evaluator, model.ModuleInventory, model.LevelEdit)

	inventory := router.Group("/inventory")
	{
		inventory.POST("/adjustments", edit, h.Adjust)
		inventory.POST("/adjustments/bulk", edit, h.BulkAdjust)
		inventory.PUT("/stock", edit, h.SetStock)
		inventory.GET("/history", view, h.History)
		inventory.GET("/products/:id/history", view, h.ProductHistory)
		inventory.GET("/summary", view, h.Summary)
		inventory.GET("/alerts", view, h.LowStockAlerts)
		inventory.GET("/movement", view, h.MovementReport)
	}
}

type AdjustStockRequest struct {
	ProductID *uuid.UUID           `json:"product_id"`
	VariantID *uuid.UUID           `json:"variant_id"`
	Quantity  int                  `json:"quantity" binding:"required"`
	Type      model.AdjustmentType `json:"type" binding:"required"`
	Reason    string               `json:"reason"`
	Notes     string               `json:"notes"`
}

type BulkAdjustRequestItem struct {
	ProductID *uuid.UUID `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity"`
}

type BulkAdjustRequest struct {
	Items  []BulkAdjustRequestItem `json:"items" binding:"required,min=1"`
	Type   model.AdjustmentType    `json:"type" binding:"required"`
	Reason string                  `json:"reason"`
	Notes  string                  `json:"notes"`
}

type SetStockRequest struct {
	ProductID *uuid.UUID `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id"`
	Stock     *int       `json:"stock" binding:"required"`
	Reason    string     `json:"reason"`
	Notes     string     `json:"notes"`
}

// Adjust applies a signed delta to one stock counter
// @Summary      Adjust stock
// @Description  Applies a signed quantity to a product or variant counter and records one ledger row. Rejected when the result would be negative.
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      AdjustStockRequest  true  "Adjustment"
// @Success      201      {object}  response.Response{data=model.StockAdjustment}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/inventory/adjustments [post]
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	adj, err := h.ledger.Adjust(c.Request.Context(), service.AdjustInput{
		Target: service.StockTarget{ProductID: req.ProductID, VariantID: req.VariantID},
		Delta:  req.Quantity,
		Type:   req.Type,
		Reason: req.Reason,
		Notes:  req.Notes,
		Actor:  middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, adj))
}

// BulkAdjust applies the same adjustment type to many counters
// @Summary      Bulk adjust stock
// @Description  Each item commits or fails on its own; the result lists per-item errors.
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      BulkAdjustRequest  true  "Bulk adjustment"
// @Success      200      {object}  response.Response{data=service.BulkAdjustResult}
// @Failure      400      {object}  response.Response
// @Router       /api/inventory/adjustments/bulk [post]
func (h *InventoryHandler) BulkAdjust(c *gin.Context) {
	var req BulkAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	items := make([]service.BulkAdjustItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.BulkAdjustItem{
			Target: service.StockTarget{ProductID: item.ProductID, VariantID: item.VariantID},
			Delta:  item.Quantity,
		})
	}
	result := h.ledger.BulkAdjust(c.Request.Context(), service.BulkAdjustInput{
		Items:  items,
		Type:   req.Type,
		Reason: req.Reason,
		Notes:  req.Notes,
		Actor:  middleware.Actor(c),
	})
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// SetStock moves a counter to an absolute value through a CORRECTION row
// @Summary      Quick stock update
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      SetStockRequest  true  "New stock"
// @Success      200      {object}  response.Response{data=model.StockAdjustment}
// @Failure      400      {object}  response.Response
// @Router       /api/inventory/stock [put]
func (h *InventoryHandler) SetStock(c *gin.Context) {
	var req SetStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	adj, err := h.ledger.SetStock(c.Request.Context(),
		service.StockTarget{ProductID: req.ProductID, VariantID: req.VariantID},
		*req.Stock, req.Reason, req.Notes, middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if adj == nil {
		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Stock unchanged"))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, adj))
}

// History lists ledger rows newest first
// @Summary      Stock adjustment history
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Param        product_id  query     string  false  "Product ID"
// @Param        variant_id  query     string  false  "Variant ID"
// @Param        type        query     string  false  "Adjustment type"
// @Param        start_date  query     string  false  "RFC3339 or YYYY-MM-DD"
// @Param        end_date    query     string  false  "RFC3339 or YYYY-MM-DD"
// @Success      200         {object}  response.Response{data=response.Page}
// @Failure      400         {object}  response.Response
// @Router       /api/inventory/history [get]
func (h *InventoryHandler) History(c *gin.Context) {
	p := pagination.Parse(c)
	q := service.HistoryQuery{Type: model.AdjustmentType(c.Query("type"))}
	var ok bool
	if q.ProductID, ok = queryID(c, "product_id"); !ok {
		return
	}
	if q.VariantID, ok = queryID(c, "variant_id"); !ok {
		return
	}
	if q.From, ok = queryTime(c, "start_date", false); !ok {
		return
	}
	if q.To, ok = queryTime(c, "end_date", true); !ok {
		return
	}

	rows, total, err := h.ledger.History(c.Request.Context(), q, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, page(rows, total, p)))
}

// ProductHistory lists ledger rows of a product and its variants
// @Summary      Product stock history
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        id     path      string  true   "Product ID"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Failure      404    {object}  response.Response
// @Router       /api/inventory/products/{id}/history [get]
func (h *InventoryHandler) ProductHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p := pagination.Parse(c)
	rows, total, err := h.ledger.ProductHistory(c.Request.Context(), id, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, page(rows, total, p)))
}

// Summary returns stock totals
// @Summary      Stock summary
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.StockSummary}
// @Router       /api/inventory/summary [get]
func (h *InventoryHandler) Summary(c *gin.Context) {
	summary, err := h.ledger.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// LowStockAlerts lists counters at or below their threshold
// @Summary      Low stock alerts
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        threshold             query     int   false  "Override every threshold"
// @Param        include_out_of_stock  query     bool  false  "Include counters at zero (default true)"
// @Success      200                   {object}  response.Response{data=[]service.StockAlert}
// @Failure      400                   {object}  response.Response
// @Router       /api/inventory/alerts [get]
func (h *InventoryHandler) LowStockAlerts(c *gin.Context) {
	threshold := 0
	if raw := c.Query("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "Invalid threshold: must be a non-negative integer")
			return
		}
		threshold = n
	}
	includeOut, err := strconv.ParseBool(c.DefaultQuery("include_out_of_stock", "true"))
	if err != nil {
		badRequest(c, "Invalid include_out_of_stock: must be true or false")
		return
	}

	alerts, err := h.ledger.LowStockAlerts(c.Request.Context(), threshold, includeOut)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, alerts))
}

// MovementReport summarises stock movement over recent days
// @Summary      Stock movement report
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        days  query     int  false  "Window in days, 1 to 365 (default 30)"
// @Success      200   {object}  response.Response{data=service.MovementReport}
// @Failure      400   {object}  response.Response
// @Router       /api/inventory/movement [get]
func (h *InventoryHandler) MovementReport(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil {
		badRequest(c, "Invalid days: must be an integer")
		return
	}
	report, err := h.ledger.MovementReport(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// queryTime parses an optional RFC3339 or YYYY-MM-DD parameter. A bare date
// used as an upper bound covers the whole day.
func queryTime(c *gin.Context, name string, endOfDay bool) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		badRequest(c, "Invalid "+name+": use RFC3339 or YYYY-MM-DD")
		return nil, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}
