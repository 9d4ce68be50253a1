package router // package router defines how HTTP routes are registered for the API

import (
	"net"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/biodata-connect/internal/handler"
	"github.com/iliyamo/biodata-connect/internal/middleware"
	"github.com/iliyamo/biodata-connect/internal/model"
)

// memberRoles may use every authenticated endpoint.
var memberRoles = []string{model.RoleUser, model.RoleAdmin, model.RoleSuperAdmin}

// UseCommon installs the middleware every request passes through: panic
// recovery, request ids and the structured access log.  Client addresses
// come from the socket unless the peer is one of trustedProxies, in which
// case X-Forwarded-For is walked back to the first untrusted hop.
func UseCommon(e *echo.Echo, trustedProxies []*net.IPNet) {
	e.HideBanner = true
	e.IPExtractor = ipExtractor(trustedProxies)
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger())
}

func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// RegisterRoutes registers non-authenticated infrastructure routes.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers the authentication routes.  Register, login and
// refresh need no session; logout accepts either a refresh token or a
// bearer token; /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, middleware.OptionalJWT(jwtSecret))

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret), middleware.RequireRole(memberRoles...))
}

// RegisterPublic registers the guest-facing catalogue.  Listing responses
// never depend on the caller and go through the response cache; view
// tracking identifies the viewer by token when one is sent.
func RegisterPublic(e *echo.Echo, b *handler.BiodataHandler, v *handler.ViewHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	e.GET("/v1/biodata", b.List, cache)
	e.GET("/v1/biodata/:id", b.Get)
	e.POST("/v1/biodata/:id/views", v.Track, middleware.OptionalJWT(jwtSecret))
	e.GET("/v1/biodata/:id/views/count", v.Count)
}
