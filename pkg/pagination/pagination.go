package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// Params holds validated pagination parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse extracts and validates page/limit from query parameters.
// "per_page" is accepted as an alias of "limit".
func Parse(c *gin.Context) Params {
	limitRaw := c.Query("limit")
	if limitRaw == "" {
		limitRaw = c.DefaultQuery("per_page", strconv.Itoa(DefaultLimit))
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	limit, _ := strconv.Atoi(limitRaw)

	return New(page, limit)
}

// New clamps page and limit into the accepted range.
func New(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < MinLimit {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// TotalPages returns the page count for total rows; an empty result still has one page.
func (p Params) TotalPages(total int64) int {
	if total <= 0 {
		return 1
	}
	return int((total + int64(p.Limit) - 1) / int64(p.Limit))
}
