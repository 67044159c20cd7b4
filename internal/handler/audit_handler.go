package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	evaluator    *service.Evaluator
}

func NewAuditHandler(auditService service.AuditService, evaluator *service.Evaluator) *AuditHandler {
	return &AuditHandler{auditService: auditService, evaluator: evaluator}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/audit-logs", middleware.RequireAdmin(h.evaluator))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs lists audit records newest first
// @Summary      Get audit logs
// @Description  Lists account, catalog and order writes with the acting account
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Param        action     query     string  false  "Action, e.g. UPDATE_ACCOUNT_PERMISSIONS"
// @Param        entity_id  query     string  false  "Entity ID"
// @Success      200        {object}  response.Response{data=response.Page}
// @Failure      403        {object}  response.Response
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.AuditFilter{
		Action:   c.Query("action"),
		EntityID: c.Query("entity_id"),
	}

	logs, total, err := h.auditService.List(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, page(logs, total, p)))
}
