package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler is used by load balancers and monitoring systems to verify
// that the service and its database are reachable.
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client // optional
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb}
}

// Health answers 200 when the database responds and 503 otherwise.  Redis
// is reported but never fails the check, since every Redis feature
// degrades to a no-op.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	body := echo.Map{"status": "ok", "database": "ok"}
	status := http.StatusOK
	if err := h.DB.PingContext(ctx); err != nil {
		body["status"], body["database"] = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	}
	switch {
	case h.Redis == nil:
		body["redis"] = "disabled"
	case h.Redis.Ping(ctx).Err() != nil:
		body["redis"] = "unreachable"
	default:
		body["redis"] = "ok"
	}
	return c.JSON(status, body)
}
