package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/biodata-connect/internal/service"
)

// errorStatus maps a service error to an HTTP status and a stable machine
// code.  More specific sentinels are checked before the ones they wrap.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "insufficient_balance"
	case errors.Is(err, service.ErrAlreadyGranted):
		return http.StatusConflict, "already_granted"
	case errors.Is(err, service.ErrInvalidOperation):
		return http.StatusBadRequest, "invalid_operation"
	case errors.Is(err, service.ErrAccessDenied):
		return http.StatusForbidden, "access_denied"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrPaymentExecutionFailed):
		return http.StatusPaymentRequired, "payment_execution_failed"
	case errors.Is(err, service.ErrPaymentGatewayTimeout):
		return http.StatusGatewayTimeout, "payment_gateway_timeout"
	case errors.Is(err, service.ErrPaymentInitFailed):
		return http.StatusBadGateway, "payment_init_failed"
	case errors.Is(err, service.ErrPaymentGateway):
		return http.StatusBadGateway, "payment_gateway_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError renders err as {"error","code"}.  Internal errors are logged
// with the request logger and hidden from the client.
func writeError(c echo.Context, err error) error {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "bad_request"})
}
