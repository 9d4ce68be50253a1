package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/biodata-connect/internal/middleware"
	"github.com/iliyamo/biodata-connect/internal/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 100000
)

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// paging reads ?page=&page_size= (1-based) and returns limit and offset.
// Missing or invalid values fall back to the first page.
func paging(c echo.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	limit, _ = strconv.Atoi(c.QueryParam("page_size"))
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, (page - 1) * limit
}

// principal returns the caller set by the JWT middleware.  Routes that
// call it are always mounted behind JWTAuth.
func principal(c echo.Context) model.Principal {
	p, _ := middleware.CurrentPrincipal(c)
	return p
}
