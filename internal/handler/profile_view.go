package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/biodata-connect/internal/middleware"
	"github.com/iliyamo/biodata-connect/internal/service"
)

// ViewHandler records and reports profile views.
type ViewHandler struct {
	Svc *service.ViewService
}

func NewViewHandler(svc *service.ViewService) *ViewHandler {
	return &ViewHandler{Svc: svc}
}

// Track records a view of a biodata.  The route sits behind OptionalJWT, so
// anonymous viewers are keyed by IP address.
func (h *ViewHandler) Track(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var viewer *uint64
	if uid, ok := middleware.UserID(c); ok {
		viewer = &uid
	}
	res, err := h.Svc.TrackProfileView(c.Request().Context(), id, viewer, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Count returns the view counter of a biodata.
func (h *ViewHandler) Count(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	n, err := h.Svc.GetProfileViewCount(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"biodata_id": id, "view_count": n})
}

// MyStats returns view statistics for the caller's own biodata.
func (h *ViewHandler) MyStats(c echo.Context) error {
	stats, err := h.Svc.GetUserProfileViewStats(c.Request().Context(), principal(c).UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
