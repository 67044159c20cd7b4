package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CatalogHandler struct {
	catalogService service.CatalogService
	evaluator      *service.Evaluator
}

func NewCatalogHandler(catalogService service.CatalogService, evaluator *service.Evaluator) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService, evaluator: evaluator}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	view := middleware.RequirePermission(h.evaluator, model.ModuleProducts, model.LevelView)
	edit := middleware.RequirePermission(h.evaluator, model.ModuleProducts, model.LevelEdit)

	products := router.Group("/products")
	{
		products.GET("", view, h.ListProducts)
		products.GET("/:id", view, h.GetProduct)
		products.POST("", edit, h.CreateProduct)
		products.PUT("/:id", edit, h.UpdateProduct)
		products.DELETE("/:id", edit, h.DeleteProduct)
		products.POST("/:id/variants", edit, h.CreateVariant)
	}

	variants := router.Group("/variants")
	{
		variants.PUT("/:id", edit, h.UpdateVariant)
		variants.DELETE("/:id", edit, h.DeleteVariant)
	}
}

type CreateProductRequest struct {
	Name              string              `json:"name" binding:"required"`
	Slug              string              `json:"slug"`
	SKU               string              `json:"sku"`
	BasePrice         decimal.Decimal     `json:"base_price"`
	Stock             int                 `json:"stock" binding:"min=0"`
	LowStockThreshold *int                `json:"low_stock_threshold"`
	Status            model.ProductStatus `json:"status"`
}

type UpdateProductRequest struct {
	Name              *string              `json:"name"`
	Slug              *string              `json:"slug"`
	SKU               *string              `json:"sku"`
	BasePrice         *decimal.Decimal     `json:"base_price"`
	LowStockThreshold *int                 `json:"low_stock_threshold"`
	Status            *model.ProductStatus `json:"status"`
}

type CreateVariantRequest struct {
	Name              string           `json:"name" binding:"required"`
	SKU               string           `json:"sku"`
	Price             *decimal.Decimal `json:"price"`
	Stock             int              `json:"stock" binding:"min=0"`
	LowStockThreshold *int             `json:"low_stock_threshold"`
	IsActive          *bool            `json:"is_active"`
}

type UpdateVariantRequest struct {
	Name              *string          `json:"name"`
	SKU               *string          `json:"sku"`
	Price             *decimal.Decimal `json:"price"`
	LowStockThreshold *int             `json:"low_stock_threshold"`
	IsActive          *bool            `json:"is_active"`
}

// ListProducts handles retrieving paginated products with their stock
// @Summary      List products
// @Tags         products
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Param        search  query     string  false  "Search by name or SKU"
// @Param        status  query     string  false  "ACTIVE, DRAFT or ARCHIVED"
// @Success      200     {object}  response.Response{data=response.Page}
// @Failure      403     {object}  response.Response
// @Router       /api/products [get]
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.ProductFilter{
		Search: c.Query("search"),
		Status: model.ProductStatus(c.Query("status")),
	}
	products, total, err := h.catalogService.ListProducts(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, page(products, total, p)))
}

// GetProduct returns one product with its variants
// @Summary      Get product
// @Tags         products
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  response.Response{data=model.Product}
// @Failure      404  {object}  response.Response
// @Router       /api/products/{id} [get]
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	product, err := h.catalogService.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// CreateProduct creates a product; initial stock is written to the ledger
// @Summary      Create product
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      CreateProductRequest  true  "Create Product Payload"
// @Success      201      {object}  response.Response{data=model.Product}
// @Failure      400      {object}  response.Response
// @Router       /api/products [post]
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	product, err := h.catalogService.CreateProduct(c.Request.Context(), service.CreateProductInput{
		Name:              req.Name,
		Slug:              req.Slug,
		SKU:               req.SKU,
		BasePrice:         req.BasePrice,
		InitialStock:      req.Stock,
		LowStockThreshold: req.LowStockThreshold,
		Status:            req.Status,
		Actor:             middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, product))
}

// UpdateProduct updates product metadata; stock changes go through inventory
// @Summary      Update product
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Product ID"
// @Param        payload  body      UpdateProductRequest  true  "Update Product Payload"
// @Success      200      {object}  response.Response{data=model.Product}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/products/{id} [put]
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	product, err := h.catalogService.UpdateProduct(c.Request.Context(), id, service.UpdateProductInput{
		Name:              req.Name,
		Slug:              req.Slug,
		SKU:               req.SKU,
		BasePrice:         req.BasePrice,
		LowStockThreshold: req.LowStockThreshold,
		Status:            req.Status,
		Actor:             middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// DeleteProduct soft deletes a product
// @Summary      Delete product
// @Tags         products
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/products/{id} [delete]
func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalogService.DeleteProduct(c.Request.Context(), id, middleware.Actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Product deleted successfully"))
}

// CreateVariant adds a variant to a product
// @Summary      Create variant
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Product ID"
// @Param        payload  body      CreateVariantRequest  true  "Create Variant Payload"
// @Success      201      {object}  response.Response{data=model.ProductVariant}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/products/{id}/variants [post]
func (h *CatalogHandler) CreateVariant(c *gin.Context) {
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CreateVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	variant, err := h.catalogService.CreateVariant(c.Request.Context(), service.CreateVariantInput{
		ProductID:         productID,
		Name:              req.Name,
		SKU:               req.SKU,
		Price:             req.Price,
		InitialStock:      req.Stock,
		LowStockThreshold: req.LowStockThreshold,
		IsActive:          req.IsActive,
		Actor:             middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, variant))
}

// UpdateVariant updates variant metadata
// @Summary      Update variant
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Variant ID"
// @Param        payload  body      UpdateVariantRequest  true  "Update Variant Payload"
// @Success      200      {object}  response.Response{data=model.ProductVariant}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/variants/{id} [put]
func (h *CatalogHandler) UpdateVariant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	variant, err := h.catalogService.UpdateVariant(c.Request.Context(), id, service.UpdateVariantInput{
		Name:              req.Name,
		SKU:               req.SKU,
		Price:             req.Price,
		LowStockThreshold: req.LowStockThreshold,
		IsActive:          req.IsActive,
		Actor:             middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, variant))
}

// DeleteVariant soft deletes a variant
// @Summary      Delete variant
// @Tags         products
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Variant ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/variants/{id} [delete]
func (h *CatalogHandler) DeleteVariant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalogService.DeleteVariant(c.Request.Context(), id, middleware.Actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Variant deleted successfully"))
}
