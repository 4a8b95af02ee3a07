package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports readiness of the stores a scan depends on.
type HealthHandler struct {
	DB    Pinger
	Redis func(ctx context.Context) error
}

// Health returns "ok" when every dependency answers within a second.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
	defer cancel()
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "down", "db": err.Error()})
		}
	}
	if h.Redis != nil {
		if err := h.Redis(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "down", "redis": err.Error()})
		}
	}
	return c.String(http.StatusOK, "ok")
}
