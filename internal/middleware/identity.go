package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// identity returns a stable label for the caller used in rate limit keys:
// the user id when authenticated, "anon" otherwise.
func identity(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
