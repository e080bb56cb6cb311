package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// PaginationParams are the page and per_page query parameters.
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page (default 1) and per_page (default 20, capped at
// 100). Invalid values fall back to the defaults.
func ParsePagination(r *http.Request) PaginationParams {
	q := r.URL.Query()
	p := PaginationParams{Page: 1, PerPage: defaultPerPage}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil && n > 0 {
		p.PerPage = min(n, maxPerPage)
	}
	return p
}

// Offset is the row offset of the first item on the page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Meta builds the pagination block for a result set of total rows.
func (p PaginationParams) Meta(total int64) PaginationMeta {
	pages := 0
	if p.PerPage > 0 {
		pages = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return PaginationMeta{Page: p.Page, PerPage: p.PerPage, Total: total, TotalPages: pages}
}

// PaginationMeta describes the page returned in a list response.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}
