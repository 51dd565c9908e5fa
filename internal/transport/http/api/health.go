package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health returns health status. A degraded service still answers 200.
// GET /api/health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Health(c.Request().Context()))
}
