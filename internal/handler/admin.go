package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/biodata-connect/internal/service"
)

// AdminHandler serves the admin panel operations.
type AdminHandler struct {
	Svc *service.AdminService
}

func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{Svc: svc}
}

type statusReq struct {
	Status string `json:"status"`
}

// Stats returns platform-wide figures.
func (h *AdminHandler) Stats(c echo.Context) error {
	st, err := h.Svc.Stats(c.Request().Context(), principal(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Users lists accounts with their token balances.
func (h *AdminHandler) Users(c echo.Context) error {
	page, limit, offset := paging(c)
	items, err := h.Svc.ListUsers(c.Request().Context(), principal(c), limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "page": page, "page_size": limit})
}

// SetBiodataStatus moves a biodata between Pending, Active, Inactive and
// Rejected.
func (h *AdminHandler) SetBiodataStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req statusReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		return badRequest(c, "status required")
	}
	if err := h.Svc.SetBiodataStatus(c.Request().Context(), principal(c), id, strings.TrimSpace(req.Status)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "status": strings.TrimSpace(req.Status)})
}

// ReconcileViews rebuilds view counters from the view ledger.
func (h *AdminHandler) ReconcileViews(c echo.Context) error {
	n, err := h.Svc.ReconcileViewCounts(c.Request().Context(), principal(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"corrected": n})
}
