package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/biodata-connect/internal/handler"
	"github.com/iliyamo/biodata-connect/internal/middleware"
)

// MemberHandlers groups the handlers behind the authenticated member API.
type MemberHandlers struct {
	Biodata     *handler.BiodataHandler
	Views       *handler.ViewHandler
	Connections *handler.ConnectionHandler
	Payments    *handler.PaymentHandler
}

// RegisterMember registers endpoints for signed-in users under /v1.  Routes
// that spend tokens or reach the payment provider also pass through the
// rate limiter.
func RegisterMember(e *echo.Echo, h MemberHandlers, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(memberRoles...),
	)

	// ---- Own biodata ----
	g.GET("/me/biodata", h.Biodata.GetMine)
	g.PUT("/me/biodata", h.Biodata.SaveMine)
	g.GET("/me/profile-views/stats", h.Views.MyStats)
	g.GET("/biodata/:id/contact", h.Biodata.Contact)

	// ---- Connections ----
	g.POST("/connections", h.Connections.Purchase, limiter)
	g.GET("/connections", h.Connections.List)
	g.GET("/connections/stats", h.Connections.Stats)
	g.GET("/connections/access/:biodataId", h.Connections.Access)

	// ---- Payments ----
	g.GET("/payments/packages", h.Payments.Packages)
	g.POST("/payments", h.Payments.Create, limiter)
	g.POST("/payments/execute", h.Payments.Execute, limiter)
	g.GET("/payments", h.Payments.List)
	g.GET("/payments/:paymentID/status", h.Payments.Status)
}
