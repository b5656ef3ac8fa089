package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	apperrors "github.com/pscheid92/sheetpulse/internal/platform/errors"
)

func (s *Server) registerRoutes() {
	var errorsTotal *prometheus.CounterVec
	if s.httpMetrics != nil {
		errorsTotal = s.httpMetrics.ErrorsTotal
	}

	s.echo.Use(correlationMiddleware())
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(apperrors.Middleware(errorsTotal))
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	s.registerAPIRoutes()

	wsLimiter := newRateLimiter(s.config.WSConnectRate, s.config.WSConnectBurst, s.wsMetrics)
	s.echo.GET("/ws", s.handleWebSocket, wsLimiter)

	if s.prometheus != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.prometheus)))
	}
}
