package middleware // middleware contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/utils"
)

// Context keys set by the JWT middleware.
const (
	CtxUserID = "user_id" // uint64
	CtxRole   = "role"    // string
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the subject and role claims in the request context.  Requests
// without a valid token are rejected with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "unauthorized"})
			}
			if !authenticate(c, secret, raw) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "unauthorized"})
			}
			return next(c)
		}
	}
}

// OptionalJWT is like JWTAuth but lets anonymous requests through.  A
// malformed or expired token is treated as anonymous.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw, ok := bearer(c); ok {
				authenticate(c, secret, raw)
			}
			return next(c)
		}
	}
}

func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

func authenticate(c echo.Context, secret, raw string) bool {
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil || !model.ValidRole(claims.Role) {
		return false
	}
	id, _ := claims.UserID()
	c.Set(CtxUserID, id)
	c.Set(CtxRole, claims.Role)
	return true
}

// UserID returns the authenticated user id, if any.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(CtxUserID).(uint64)
	return id, ok
}

// CurrentPrincipal returns the acting identity set by JWTAuth.
func CurrentPrincipal(c echo.Context) (model.Principal, bool) {
	id, ok := UserID(c)
	if !ok {
		return model.Principal{}, false
	}
	role, _ := c.Get(CtxRole).(string)
	return model.Principal{UserID: id, Role: role}, true
}
