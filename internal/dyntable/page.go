package dyntable

import (
	"strings"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

// PageSize is the fixed number of rows requested per page.
const PageSize = 20

// Page is one fetched page of rows after exclusions.
type Page struct {
	Rows       []model.TableRecord
	TotalCount int
	PageNumber int
	PageSize   int
}

// PageCount returns ceil(totalCount / pageSize).
func PageCount(totalCount int, pageSize int) int {
	if totalCount <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}

// PageCount returns the number of pages for the page's total.
func (page Page) PageCount() int {
	return PageCount(page.TotalCount, page.PageSize)
}

// Layout selects how records are laid out.
type Layout string

const (
	LayoutLandscape Layout = "landscape"
	LayoutPortrait  Layout = "portrait"

	layoutPortraitAlias = "potrait"
)

// ParseLayout maps a URL segment to a layout. Unknown values fall back to landscape.
func ParseLayout(raw string) Layout {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LayoutPortrait), layoutPortraitAlias:
		return LayoutPortrait
	default:
		return LayoutLandscape
	}
}
