// Package http provides the HTTP server implementation for the chat service.
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/xiaot623/gogo/chatbot/internal/config"
	"github.com/xiaot623/gogo/chatbot/internal/metrics"
	"github.com/xiaot623/gogo/chatbot/internal/service"
	"github.com/xiaot623/gogo/chatbot/internal/transport/http/api"
)

// NewServer creates and configures the public HTTP server. m and gatherer
// may be nil, in which case no request metrics are recorded and /metrics is
// not served.
func NewServer(svc *service.Service, cfg *config.Config, m *metrics.Metrics, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
	}))
	e.Use(requestMetrics(m))
	if cfg.RateLimitRPS > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: skipHealthChecks,
			Store:   middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimitRPS)),
		}))
	}

	// Register Routes
	api.NewHandler(svc).RegisterRoutes(e.Group("/api"))
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(gatherer)))
	}

	return e
}

// skipHealthChecks exempts health checks and scrapes from rate limiting.
func skipHealthChecks(c echo.Context) bool {
	switch c.Path() {
	case "/api/health", "/metrics":
		return true
	}
	return false
}

// requestMetrics records every request against its route template.
func requestMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RecordHTTPRequest(c.Request().Method, path, strconv.Itoa(status), time.Since(start))
			return err
		}
	}
}
