package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/biodata-connect/internal/handler"
	"github.com/iliyamo/biodata-connect/internal/middleware"
	"github.com/iliyamo/biodata-connect/internal/model"
)

// RegisterAdmin registers the admin panel under /v1/admin.  The route
// admits admins and superadmins; the services re-check superadmin-only
// operations.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, c *handler.ConnectionHandler, p *handler.PaymentHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleSuperAdmin),
	)

	g.GET("/stats", a.Stats)
	g.GET("/users", a.Users)
	g.PATCH("/biodata/:id/status", a.SetBiodataStatus)
	g.POST("/profile-views/reconcile", a.ReconcileViews)

	// superadmin only
	g.GET("/connections", c.All)
	g.GET("/payments", p.All)
}
