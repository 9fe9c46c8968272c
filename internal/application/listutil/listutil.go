// Package listutil parses paging parameters and computes page metadata.
package listutil

import (
	"net/url"
	"strconv"
)

// PageParams carries pagination parameters parsed from a request.
type PageParams struct {
	Page    int // 1-indexed
	PerPage int
}

// PageInfo carries pagination metadata returned to clients.
type PageInfo struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"perPage"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Paging defaults. Slot history is small: one entry per week.
const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// ParsePageParams extracts page and per_page from URL query values.
// POST: Page >= 1 and 1 <= PerPage <= MaxPerPage
func ParsePageParams(q url.Values) PageParams {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(q.Get("per_page"))
	switch {
	case err != nil || perPage < 1:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return PageParams{Page: page, PerPage: perPage}
}

// NewPageInfo computes pagination metadata.
// A page past the end is kept as requested so the caller gets an empty page, not the last one.
// POST: TotalPages >= 1
func NewPageInfo(p PageParams, total int) PageInfo {
	perPage := p.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	totalPages := max((total+perPage-1)/perPage, 1)
	return PageInfo{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Offset returns the number of rows before the current page.
func (p PageInfo) Offset() int {
	return (p.Page - 1) * p.PerPage
}
