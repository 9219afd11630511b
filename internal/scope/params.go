package scope

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// Pagination bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// SearchParams carries pagination, filtering and sorting for list
// endpoints.
type SearchParams struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string
	Joins   []string
}

// Normalize clamps out-of-range values to defaults instead of erroring.
func (p SearchParams) Normalize() SearchParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.SortDir != "DESC" {
		p.SortDir = "ASC"
	}
	return p
}

// ParamsFromQuery reads page, limit, search, sortBy and sortDir from
// the request query string.
func ParamsFromQuery(c *gin.Context) SearchParams {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	dir := c.Query("sortDir")
	if dir == "desc" {
		dir = "DESC"
	}
	return SearchParams{
		Page:    page,
		Limit:   limit,
		Search:  c.Query("search"),
		SortBy:  c.Query("sortBy"),
		SortDir: dir,
	}.Normalize()
}

// Page is one page of results with pagination metadata.
type Page[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// NewPage assembles a result page, computing TotalPages from the total
// row count.
func NewPage[T any](data []T, total int64, p SearchParams) Page[T] {
	p = p.Normalize()
	if data == nil {
		data = []T{}
	}
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return Page[T]{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: pages,
	}
}
