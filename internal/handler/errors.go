package handler

import (
	"errors"
	"net/http"

	"backoffice/internal/service"
	"backoffice/pkg/logger"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError maps domain errors onto the response envelope.
func respondError(c *gin.Context, err error) {
	var (
		denied     *service.DeniedError
		validation *service.ValidationError
		negative   *service.NegativeStockError
		notFound   *service.NotFoundError
	)

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
	case errors.As(err, &denied):
		c.JSON(http.StatusForbidden, response.ErrorWithData(http.StatusForbidden, err.Error(),
			gin.H{"module": denied.Module, "reason": denied.Reason}))
	case errors.As(err, &negative):
		c.JSON(http.StatusBadRequest, response.ErrorWithData(http.StatusBadRequest, err.Error(), negative))
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, service.ErrTransitionConflict):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	default:
		logger.WithCtx(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

// pathID parses the :name path parameter, writing a 400 on failure.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// queryID parses an optional UUID query parameter.
func queryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "Invalid "+name+": must be a UUID")
		return nil, false
	}
	return &id, true
}

func page(items interface{}, total int64, p pagination.Params) response.Page {
	return response.Page{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: p.TotalPages(total),
	}
}
