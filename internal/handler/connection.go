package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/biodata-connect/internal/service"
)

// ConnectionHandler exposes the connection ledger.
type ConnectionHandler struct {
	Svc *service.ConnectionService
}

func NewConnectionHandler(svc *service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{Svc: svc}
}

type purchaseReq struct {
	BiodataID uint64 `json:"biodata_id"`
}

// Purchase spends one token to unlock a biodata's contact fields.
func (h *ConnectionHandler) Purchase(c echo.Context) error {
	var req purchaseReq
	if err := c.Bind(&req); err != nil || req.BiodataID == 0 {
		return badRequest(c, "biodata_id required")
	}
	res, err := h.Svc.PurchaseContact(c.Request().Context(), principal(c).UserID, req.BiodataID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// List returns the caller's active connections with contacts.
func (h *ConnectionHandler) List(c echo.Context) error {
	items, err := h.Svc.GetUserConnections(c.Request().Context(), principal(c).UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Stats returns the caller's statistics by default, another user's with
// ?user_id= and the global figures with ?scope=global.
func (h *ConnectionHandler) Stats(c echo.Context) error {
	p := principal(c)
	var userID *uint64
	switch {
	case c.QueryParam("scope") == "global":
	case c.QueryParam("user_id") != "":
		id, err := strconv.ParseUint(c.QueryParam("user_id"), 10, 64)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		userID = &id
	default:
		userID = &p.UserID
	}
	stats, err := h.Svc.GetConnectionStats(c.Request().Context(), p, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// Access reports whether the caller may see a biodata's contacts.
func (h *ConnectionHandler) Access(c echo.Context) error {
	id, ok := pathID(c, "biodataId")
	if !ok {
		return badRequest(c, "invalid biodata id")
	}
	has, err := h.Svc.HasContactAccess(c.Request().Context(), principal(c).UserID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"biodata_id": id, "has_access": has})
}

// All lists every connection.  Superadmin only.
func (h *ConnectionHandler) All(c echo.Context) error {
	page, limit, offset := paging(c)
	items, err := h.Svc.GetAllConnections(c.Request().Context(), principal(c), limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "page": page, "page_size": limit})
}
