package handler

import (
	"context"
	"net/http"
	"strconv"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AccountHandler struct {
	accountService service.AccountService
	evaluator      *service.Evaluator
}

// NewAccountHandler sets up the user directory endpoints.
func NewAccountHandler(accountService service.AccountService, evaluator *service.Evaluator) *AccountHandler {
	return &AccountHandler{accountService: accountService, evaluator: evaluator}
}

// RegisterRoutes expects router to already run middleware.Authenticate.
func (h *AccountHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/auth/me", h.GetMe)

	accounts := router.Group("/accounts", middleware.RequireAdmin(h.evaluator))
	{
		accounts.GET("", h.ListAccounts)
		accounts.GET("/:id", h.GetAccount)
		accounts.PATCH("/:id/approval", h.SetApproval)
		accounts.PATCH("/:id/role", h.ChangeRole)
		accounts.PUT("/:id/permissions", h.ReplacePermissions)
		accounts.PATCH("/:id/permissions", h.MergePermissions)
		accounts.DELETE("/:id", h.DeleteAccount)
	}
}

type ApprovalRequest struct {
	IsApproved *bool `json:"is_approved" binding:"required"`
}

type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type PermissionsRequest struct {
	Permissions map[string]string `json:"permissions" binding:"required"`
}

// GetMe returns the authenticated account
// @Summary      Get current account
// @Description  Returns the caller's account with its effective permission matrix
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.AccountResponse}
// @Failure      401  {object}  response.Response
// @Router       /api/auth/me [get]
func (h *AccountHandler) GetMe(c *gin.Context) {
	account := middleware.CurrentAccount(c)
	if account == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, service.NewAccountResponse(account)))
}

// ListAccounts lists accounts
// @Summary      List accounts
// @Tags         accounts
// @Security     BearerAuth
// @Produce      json
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Items per page (default 20)"
// @Param        role         query     string  false  "ADMIN, STAFF or CUSTOMER"
// @Param        is_approved  query     bool    false  "Filter by approval"
// @Param        search       query     string  false  "Search email or name"
// @Success      200          {object}  response.Response{data=response.Page}
// @Failure      403          {object}  response.Response
// @Router       /api/accounts [get]
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.AccountFilter{Search: c.Query("search")}
	if raw := c.Query("role"); raw != "" {
		role, err := model.ParseRole(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.Role = role
	}
	if raw := c.Query("is_approved"); raw != "" {
		approved, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "Invalid is_approved: must be true or false")
			return
		}
		filter.IsApproved = &approved
	}

	accounts, total, err := h.accountService.List(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]service.AccountResponse, 0, len(accounts))
	for i := range accounts {
		items = append(items, service.NewAccountResponse(&accounts[i]))
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, page(items, total, p)))
}

// GetAccount returns one account
// @Summary      Get account
// @Tags         accounts
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Account ID"
// @Success      200  {object}  response.Response{data=service.AccountResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/accounts/{id} [get]
func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	account, err := h.accountService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, service.NewAccountResponse(account)))
}

// SetApproval approves a pending account
// @Summary      Set account approval
// @Description  Approves a pending account. Approved accounts cannot be declined and admins cannot change their own approval.
// @Tags         accounts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string           true  "Account ID"
// @Param        payload  body      ApprovalRequest  true  "Approval"
// @Success      200      {object}  response.Response{data=service.AccountResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/accounts/{id}/approval [patch]
func (h *AccountHandler) SetApproval(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	account, err := h.accountService.SetApproval(c.Request.Context(), middleware.Actor(c), id, *req.IsApproved)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, service.NewAccountResponse(account)))
}

// ChangeRole changes an account's role
// @Summary      Change account role
// @Description  Switching to STAFF installs the default permission matrix; switching away clears it.
// @Tags         accounts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string       true  "Account ID"
// @Param        payload  body      RoleRequest  true  "Role"
// @Success      200      {object}  response.Response{data=service.AccountResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/accounts/{id}/role [patch]
func (h *AccountHandler) ChangeRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	account, err := h.accountService.ChangeRole(c.Request.Context(), middleware.Actor(c), id, role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, service.NewAccountResponse(account)))
}

// ReplacePermissions installs a full permission matrix
// @Summary      Replace staff permissions
// @Description  Modules absent from the payload end up with no access. users:edit is rejected.
// @Tags         accounts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string              true  "Account ID"
// @Param        payload  body      PermissionsRequest  true  "Module to level map (none, view, edit)"
// @Success      200      {object}  response.Response{data=service.AccountResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/accounts/{id}/permissions [put]
func (h *AccountHandler) ReplacePermissions(c *gin.Context) {
	h.writePermissions(c, h.accountService.ReplacePermissions)
}

// MergePermissions overlays modules onto the current matrix
// @Summary      Update staff permissions
// @Tags         accounts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string              true  "Account ID"
// @Param        payload  body      PermissionsRequest  true  "Module to level map (none, view, edit)"
// @Success      200      {object}  response.Response{data=service.AccountResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/accounts/{id}/permissions [patch]
func (h *AccountHandler) MergePermissions(c *gin.Context) {
	h.writePermissions(c, h.accountService.MergePermissions)
}

type permissionWrite func(ctx context.Context, actor service.Actor, id uuid.UUID, raw map[string]string) (*model.Account, error)

func (h *AccountHandler) writePermissions(c *gin.Context, write permissionWrite) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req PermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	account, err := write(c.Request.Context(), middleware.Actor(c), id, req.Permissions)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, service.NewAccountResponse(account)))
}

// DeleteAccount removes an account and its permissions
// @Summary      Delete account
// @Tags         accounts
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Account ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/accounts/{id} [delete]
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.accountService.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Account deleted successfully"))
}
