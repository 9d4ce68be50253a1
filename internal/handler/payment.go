package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/biodata-connect/internal/service"
)

// PaymentHandler exposes token top-ups through bKash.
type PaymentHandler struct {
	Svc *service.PaymentService
}

func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{Svc: svc}
}

type createPaymentReq struct {
	Amount decimal.Decimal `json:"amount"`
	Tokens int64           `json:"tokens"`
	Intent string          `json:"intent"`
}

type executePaymentReq struct {
	PaymentID string `json:"payment_id"`
}

// Packages lists the token packages on sale.
func (h *PaymentHandler) Packages(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"items": h.Svc.Packages()})
}

// Create opens a bKash checkout for a token package.
func (h *PaymentHandler) Create(c echo.Context) error {
	var req createPaymentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Tokens <= 0 || !req.Amount.IsPositive() {
		return badRequest(c, "amount and tokens must be positive")
	}
	res, err := h.Svc.CreatePayment(c.Request().Context(), principal(c).UserID, req.Amount, req.Tokens, strings.TrimSpace(req.Intent))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Execute confirms a checkout after the payer approved it.
func (h *PaymentHandler) Execute(c echo.Context) error {
	var req executePaymentReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.PaymentID) == "" {
		return badRequest(c, "payment_id required")
	}
	res, err := h.Svc.ExecutePayment(c.Request().Context(), principal(c).UserID, strings.TrimSpace(req.PaymentID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// List returns the caller's payments, newest first.
func (h *PaymentHandler) List(c echo.Context) error {
	items, err := h.Svc.GetUserPayments(c.Request().Context(), principal(c).UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Status asks bKash for the current state of a payment.
func (h *PaymentHandler) Status(c echo.Context) error {
	res, err := h.Svc.QueryPaymentStatus(c.Request().Context(), principal(c), c.Param("paymentID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// All lists every payment.  Superadmin only.
func (h *PaymentHandler) All(c echo.Context) error {
	page, limit, offset := paging(c)
	items, err := h.Svc.GetAllPayments(c.Request().Context(), principal(c), limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "page": page, "page_size": limit})
}
