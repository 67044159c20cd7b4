package handler

import (
	"net/http"
	"strconv"
	"time"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	orderService      service.OrderService
	ledger            service.StockLedger
	evaluator         *service.Evaluator
}

func NewStatisticsHandler(statisticsService service.StatisticsService, orderService service.OrderService, ledger service.StockLedger, evaluator *service.Evaluator) *StatisticsHandler {
	return &StatisticsHandler{
		statisticsService: statisticsService,
		orderService:      orderService,
		ledger:            ledger,
		evaluator:         evaluator,
	}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	view := middleware.RequirePermission(h.evaluator, model.ModuleAnalytics, model.LevelView)
	group := router.Group("/statistics", view)
	{
		group.GET("", h.GetStatistics)
		group.GET("/sales", h.GetSalesReport)
	}
}

// DashboardStatistics is the analytics landing payload.
type DashboardStatistics struct {
	Orders   *service.OrderStats     `json:"orders"`
	Stock    *service.StockSummary   `json:"stock"`
	Movement *service.MovementReport `json:"movement"`
	Sales    *model.SalesReport      `json:"sales"`
}

// GetStatistics returns order, stock, movement and sales figures in one call
// @Summary      Get dashboard statistics
// @Description  Order counts and revenue, stock summary, stock movement and top sellers over the last N days
// @Tags         statistics
// @Security     BearerAuth
// @Produce      json
// @Param        days  query     int  false  "Window in days, 1 to 365 (default 30)"
// @Success      200   {object}  response.Response{data=DashboardStatistics}
// @Failure      400   {object}  response.Response
// @Failure      403   {object}  response.Response
// @Router       /api/statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil {
		badRequest(c, "Invalid days: must be an integer")
		return
	}
	ctx := c.Request.Context()

	movement, err := h.ledger.MovementReport(ctx, days)
	if err != nil {
		respondError(c, err)
		return
	}
	orders, err := h.orderService.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	stock, err := h.ledger.Summary(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	end := time.Now()
	sales, err := h.statisticsService.SalesReport(ctx, end.AddDate(0, 0, -days), end, 0)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, DashboardStatistics{
		Orders:   orders,
		Stock:    stock,
		Movement: movement,
		Sales:    sales,
	}))
}

// GetSalesReport ranks products by units sold in a date range
// @Summary      Get sales report
// @Description  Totals and top selling products for orders created in the range. Cancelled and refunded orders are excluded.
// @Tags         statistics
// @Security     BearerAuth
// @Produce      json
// @Param        start_date  query     string  false  "Start date (YYYY-MM-DD or RFC3339, default 30 days ago)"
// @Param        end_date    query     string  false  "End date (YYYY-MM-DD or RFC3339, default now)"
// @Param        limit       query     int     false  "Number of ranked products, 1 to 50 (default 5)"
// @Success      200         {object}  response.Response{data=model.SalesReport}
// @Failure      400         {object}  response.Response
// @Failure      403         {object}  response.Response
// @Router       /api/statistics/sales [get]
func (h *StatisticsHandler) GetSalesReport(c *gin.Context) {
	start, ok := queryTime(c, "start_date", false)
	if !ok {
		return
	}
	end, ok := queryTime(c, "end_date", true)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil {
		badRequest(c, "Invalid limit: must be an integer")
		return
	}

	endDate := time.Now()
	if end != nil {
		endDate = *end
	}
	startDate := endDate.AddDate(0, 0, -30)
	if start != nil {
		startDate = *start
	}

	report, err := h.statisticsService.SalesReport(c.Request.Context(), startDate, endDate, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}
